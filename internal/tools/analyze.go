package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/budget"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/provider"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/rank"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/resultcache"
)

// StructuredModel produces JSON documents matching a schema.
type StructuredModel interface {
	CompleteStructured(ctx context.Context, messages []provider.Message, schema provider.Schema) (json.RawMessage, error)
}

var ErrUnknownOperation = errors.New("unknown analyze operation")

// analysis is one higher-level analyzer: its instructions and the shape of
// its answer.
type analysis struct {
	instructions string
	schema       provider.Schema
}

var analyses = map[budget.Operation]analysis{
	budget.OpLifelongPattern: {
		instructions: "Find recurring patterns across the user's history in the items below. Cite item ids as evidence and say over which period each pattern holds.",
		schema: provider.Schema{
			Name:        "lifelong_pattern",
			Description: "Recurring patterns with evidence",
			Definition: object(map[string]any{
				"patterns": array(object(map[string]any{
					"name":        typed("string"),
					"description": typed("string"),
					"period":      typed("string"),
					"evidence":    array(typed("string")),
					"confidence":  typed("number"),
				}, "name", "description", "evidence")),
				"summary": typed("string"),
			}, "patterns", "summary"),
		},
	},
	budget.OpDecisionMatrix: {
		instructions: "Build a decision matrix for the options in the config from the user's own history below. Score each option per criterion from 1 to 5 and cite item ids.",
		schema: provider.Schema{
			Name:        "decision_matrix",
			Description: "Options scored against criteria",
			Definition: object(map[string]any{
				"options": array(object(map[string]any{
					"name": typed("string"),
					"criteria": array(object(map[string]any{
						"name":      typed("string"),
						"score":     typed("number"),
						"rationale": typed("string"),
					}, "name", "score")),
					"total": typed("number"),
				}, "name", "criteria")),
				"recommendation": typed("string"),
			}, "options", "recommendation"),
		},
	},
	budget.OpActionSynthesis: {
		instructions: "Propose a short list of concrete next actions grounded in the items below. Prioritize and cite item ids.",
		schema: provider.Schema{
			Name:        "action_synthesis",
			Description: "Prioritized next actions",
			Definition: object(map[string]any{
				"actions": array(object(map[string]any{
					"title":     typed("string"),
					"rationale": typed("string"),
					"priority":  map[string]any{"type": "string", "enum": []any{"high", "medium", "low"}},
					"sourceIds": array(typed("string")),
				}, "title", "priority")),
				"summary": typed("string"),
			}, "actions", "summary"),
		},
	},
}

// ParseOperation accepts underscore or hyphen spellings.
func ParseOperation(s string) (budget.Operation, error) {
	op := budget.Operation(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if _, ok := analyses[op]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
	return op, nil
}

type analyzeArgs struct {
	Op     string            `json:"op"`
	Inputs []json.RawMessage `json:"inputs"`
	Config map[string]any    `json:"config,omitempty"`
}

// ContextReport says how much of the input reached the analyzer.
type ContextReport struct {
	Sources []string `json:"sources,omitempty"`
	budget.Trimmed
}

// AnalyzeResult is the analyzer's structured answer.
type AnalyzeResult struct {
	Op      budget.Operation `json:"op"`
	Result  json.RawMessage  `json:"result"`
	Context ContextReport    `json:"context"`
}

// AnalyzeTool runs an analyzer over cached retrieval results and inline
// objects, trimmed to the operation's token budget.
type AnalyzeTool struct {
	cache  *resultcache.Cache
	model  StructuredModel
	budget budget.Manager
}

func NewAnalyzeTool(cache *resultcache.Cache, model StructuredModel, b budget.Manager) *AnalyzeTool {
	return &AnalyzeTool{cache: cache, model: model, budget: b}
}

func (t *AnalyzeTool) Name() string { return "analyze" }

func (t *AnalyzeTool) Description() string {
	return "Run a deeper analysis over earlier results. op is lifelong_pattern, decision_matrix or action_synthesis. " +
		"inputs lists resultIds from retrieve previews or inline objects. config carries op settings such as the options to compare."
}

func (t *AnalyzeTool) ReadOnly() bool { return true }

func (t *AnalyzeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"op": map[string]any{
				"type": "string",
				"enum": []string{string(budget.OpLifelongPattern), string(budget.OpDecisionMatrix), string(budget.OpActionSynthesis)},
			},
			"inputs": map[string]any{
				"type":        "array",
				"description": "resultId strings or objects",
				"items":       map[string]any{},
			},
			"config": map[string]any{"type": "object"},
		},
		"required": []string{"op", "inputs"},
	}
}

func (t *AnalyzeTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a analyzeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	op, err := ParseOperation(a.Op)
	if err != nil {
		return nil, err
	}
	if len(a.Inputs) == 0 {
		return nil, errors.New("analyze needs at least one input")
	}

	items, extras, sources, err := t.resolve(a.Inputs)
	if err != nil {
		return nil, err
	}
	trimmed := t.budget.Trim(items, op)

	spec := analyses[op]
	payload, err := json.Marshal(map[string]any{
		"items":   trimmed.Items,
		"objects": extras,
		"config":  a.Config,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze input: %w", err)
	}

	doc, err := t.model.CompleteStructured(ctx, []provider.Message{
		provider.SystemMessage(spec.instructions),
		provider.UserMessage(string(payload)),
	}, spec.schema)
	if err != nil {
		return nil, fmt.Errorf("%s analysis: %w", op, err)
	}

	return AnalyzeResult{
		Op:      op,
		Result:  doc,
		Context: ContextReport{Sources: sources, Trimmed: trimmed},
	}, nil
}

// resolve turns inputs into ranked items plus any objects that carry no
// items. String inputs must name a cached result.
func (t *AnalyzeTool) resolve(inputs []json.RawMessage) ([]rank.Item, []json.RawMessage, []string, error) {
	var items []rank.Item
	var extras []json.RawMessage
	var sources []string

	for _, in := range inputs {
		var id string
		if json.Unmarshal(in, &id) == nil {
			payload, err := t.cache.Resolve(id)
			if err != nil {
				return nil, nil, nil, err
			}
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("marshal cached result %s: %w", id, err)
			}
			got, err := itemsOf(raw)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("cached result %s: %w", id, err)
			}
			items = append(items, got...)
			sources = append(sources, id)
			continue
		}

		got, err := itemsOf(in)
		if err != nil || len(got) == 0 {
			extras = append(extras, in)
			continue
		}
		items = append(items, got...)
	}
	return items, extras, sources, nil
}

func itemsOf(raw json.RawMessage) ([]rank.Item, error) {
	var shape struct {
		Items []rank.Item `json:"items"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, err
	}
	return shape.Items, nil
}

func typed(t string) map[string]any {
	return map[string]any{"type": t}
}

func array(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func object(props map[string]any, required ...string) map[string]any {
	o := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}
