package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/rank"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/retrieval"
)

// Retriever runs validated queries.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// RetrieveTool exposes the retrieval query model to the agent.
type RetrieveTool struct {
	retriever Retriever
}

func NewRetrieveTool(r Retriever) *RetrieveTool {
	return &RetrieveTool{retriever: r}
}

func (t *RetrieveTool) Name() string { return "retrieve" }

func (t *RetrieveTool) Description() string {
	return "Search the user's data. scope picks the source: chunks (journal passages), entries (one best passage per journal entry), " +
		"memory (saved notes), analytics (daily metrics, optionally bucketed by timeGranularity) or summaries (periodic summaries). " +
		"Use similarTo for meaning, keyword for exact words, and sort/limit to shape the list. Large results come back as a preview with a resultId."
}

// ReadOnly is true: the only write is a best-effort note access update.
func (t *RetrieveTool) ReadOnly() bool { return true }

func (t *RetrieveTool) Parameters() map[string]any {
	str := func(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
	strs := func(desc string) map[string]any {
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scope": map[string]any{
				"type": "string",
				"enum": []string{"chunks", "entries", "memory", "analytics", "summaries"},
			},
			"filter": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dateFrom":        str("Start date, YYYY-MM-DD or RFC3339"),
					"dateTo":          str("End date, inclusive"),
					"ids":             strs("Exact record ids"),
					"entities":        strs("People, places or things mentioned"),
					"topics":          strs("Topics to match"),
					"sentiment":       str("positive, negative or neutral"),
					"metric":          str("Metric name for analytics and summaries, e.g. mood, sleep_hours, stress"),
					"similarTo":       str("Text to compare meaning against"),
					"keyword":         str("Words to match literally"),
					"minSimilarity":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"timeGranularity": map[string]any{"type": "string", "enum": []string{"day", "week", "month", "year"}},
					"recencyHalfLife": map[string]any{"type": "number", "description": "Days for recency to halve. Small favors recent, very large ignores age."},
				},
			},
			"sort": map[string]any{
				"type": "string",
				"enum": []string{
					string(rank.SortHybrid), string(rank.SortDateDesc), string(rank.SortDateAsc),
					string(rank.SortSimilarity), string(rank.SortMagnitudeDesc),
				},
			},
			"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": retrieval.MaxLimit},
			"view":  map[string]any{"type": "string", "enum": []string{"raw", "timeline", "stats", "histogram"}},
		},
		"required": []string{"scope"},
	}
}

func (t *RetrieveTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var raw map[string]any
	if err := decodeArgs(args, &raw); err != nil {
		return nil, err
	}
	q, err := retrieval.ParseQuery(raw)
	if err != nil {
		return nil, err
	}
	res, err := t.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", q.Scope, err)
	}
	return res, nil
}
