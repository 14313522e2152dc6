package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/guard"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/observe"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/provider"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/resultcache"
)

// ErrInvalidResponse is returned when the model answers with neither text
// nor tool calls.
var ErrInvalidResponse = errors.New("model returned neither text nor tool calls")

const (
	// DefaultSystemPrompt frames the model as an analyst over the user's data.
	DefaultSystemPrompt = `You are a personal analyst with access to the user's journal, daily metrics, periodic summaries and saved notes.
Use the retrieve tool to look things up before answering. Large results are cached and shown as a preview with a resultId; pass resultIds to analyze for deeper work.
Use remember to save durable insights, facts, preferences, goals or patterns about the user.
Ground every claim in retrieved data and say so when the data is missing.`

	// ExhaustedAnswer is returned when a run reaches the iteration ceiling.
	ExhaustedAnswer = "I'm sorry, I wasn't able to finish answering within the allowed number of steps. Try asking a narrower question."

	previewItems   = 2
	previewTextLen = 200
)

// Metadata describes how a run went.
type Metadata struct {
	Iterations       int           `json:"iterations"`
	Elapsed          time.Duration `json:"elapsed"`
	ToolsUsed        []string      `json:"toolsUsed"`
	TokenEstimate    int           `json:"tokenEstimate"`
	HitMaxIterations bool          `json:"hitMaxIterations"`
}

// Answer is the outcome of a run. Messages is the full history, including
// the seed history, for the caller to carry into the next turn.
type Answer struct {
	Text     string             `json:"text"`
	Messages []provider.Message `json:"-"`
	Metadata Metadata           `json:"metadata"`
}

// Agent runs the reason/act/observe loop.
type Agent struct {
	provider     provider.Provider
	registry     *ToolRegistry
	cache        *resultcache.Cache
	guard        *guard.Guard
	observe      *observe.Observer
	events       *EventBus
	systemPrompt string
	now          func() time.Time
	newID        func() string
}

// Option configures an Agent.
type Option func(*Agent)

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		if prompt != "" {
			a.systemPrompt = prompt
		}
	}
}

// WithEventBus publishes run events to eb.
func WithEventBus(eb *EventBus) Option {
	return func(a *Agent) {
		if eb != nil {
			a.events = eb
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

func NewAgent(p provider.Provider, reg *ToolRegistry, cache *resultcache.Cache, g *guard.Guard, o *observe.Observer, opts ...Option) *Agent {
	a := &Agent{
		provider:     p,
		registry:     reg,
		cache:        cache,
		guard:        g,
		observe:      o,
		events:       NewEventBus(),
		systemPrompt: DefaultSystemPrompt,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Events returns the bus the agent publishes to.
func (a *Agent) Events() *EventBus {
	return a.events
}

// Run answers userMsg given the prior conversation. Tool failures are fed
// back to the model; only model-call failures and invalid responses fail
// the run.
func (a *Agent) Run(ctx context.Context, history []provider.Message, userMsg string) (*Answer, error) {
	ctx, span := a.observe.StartSpan(ctx, "Agent.Run")
	defer span.End()

	run := newRun(a.newID(), history, a.now())
	run.Append(provider.UserMessage(userMsg))
	schemas := a.registry.Schemas()

	log := a.observe.Log()
	log.Info().Str("run", run.ID).Int("history", len(history)).Int("tools", len(schemas)).Msg("starting run")
	a.events.PublishSimple(EventRunStart, run.ID)

	for {
		if err := ctx.Err(); err != nil {
			return nil, a.fail(ctx, run, fmt.Errorf("run cancelled: %w", err))
		}

		if v := a.guard.CheckIteration(run.Iteration + 1); v != nil {
			run.Transition(StateExhausted)
			run.Append(provider.AssistantMessage(ExhaustedAnswer))
			log.Warn().Str("run", run.ID).Str("violation", v.Rule).Int("iterations", run.Iteration).Msg("iteration limit reached")
			a.events.PublishWithData(EventRunExhausted, run.ID, map[string]any{"iterations": run.Iteration})
			a.observe.Metrics().RecordRun(ctx, "exhausted", run.Iteration)
			return a.answer(run, ExhaustedAnswer), nil
		}

		run.Iteration++
		run.Transition(StateReasoning)
		iterLog := log.With().Int("iteration", run.Iteration).Logger()
		a.events.PublishWithData(EventIterationStart, run.ID, map[string]any{"iteration": run.Iteration})

		if v := a.guard.CheckTokens(run.TokenEstimate); v != nil {
			iterLog.Warn().Str("violation", v.Rule).Int("tokens", run.TokenEstimate).Msg(v.Message)
			a.events.PublishWithData(EventGuardViolation, run.ID, map[string]any{"rule": v.Rule})
		}

		messages := make([]provider.Message, 0, len(run.messages)+1)
		messages = append(messages, provider.SystemMessage(a.systemPrompt))
		messages = append(messages, run.messages...)

		a.events.PublishWithData(EventProviderRequest, run.ID, map[string]any{"messages": len(messages)})
		resp, err := a.provider.Complete(ctx, messages, schemas)
		if err != nil {
			iterLog.Error().Err(err).Msg("provider call failed")
			return nil, a.fail(ctx, run, fmt.Errorf("model call failed on iteration %d: %w", run.Iteration, err))
		}
		a.events.PublishWithData(EventProviderResponse, run.ID, map[string]any{
			"toolCalls": len(resp.ToolCalls),
			"tokens":    resp.Usage.TotalTokens,
		})

		if len(resp.ToolCalls) == 0 {
			if strings.TrimSpace(resp.Content) == "" {
				iterLog.Error().Msg("empty model response")
				return nil, a.fail(ctx, run, fmt.Errorf("iteration %d: %w", run.Iteration, ErrInvalidResponse))
			}
			run.Append(provider.AssistantMessage(resp.Content))
			run.Transition(StateDone)
			iterLog.Info().Int("tokens", run.TokenEstimate).Msg("run complete")
			a.events.PublishWithData(EventRunComplete, run.ID, map[string]any{"iterations": run.Iteration})
			a.observe.Metrics().RecordRun(ctx, "done", run.Iteration)
			return a.answer(run, resp.Content), nil
		}

		run.Transition(StateActing)
		iterLog.Debug().Int("calls", len(resp.ToolCalls)).Msg("executing tool calls")
		a.act(ctx, run, resp)
		run.Transition(StateObserving)
		a.events.PublishWithData(EventIterationEnd, run.ID, map[string]any{"iteration": run.Iteration})
	}
}

func (a *Agent) fail(ctx context.Context, run *Run, err error) error {
	a.events.PublishWithData(EventRunError, run.ID, map[string]any{"error": err.Error()})
	a.observe.Metrics().RecordRun(ctx, "error", run.Iteration)
	return err
}

func (a *Agent) answer(run *Run, text string) *Answer {
	return &Answer{
		Text:     text,
		Messages: run.Messages(),
		Metadata: run.Metadata(a.now()),
	}
}

// act executes the calls of one model turn and appends each call followed
// by its result, in request order. Runs of consecutive read-only calls are
// executed concurrently.
func (a *Agent) act(ctx context.Context, run *Run, resp *provider.Response) {
	calls := resp.ToolCalls
	results := make([]string, len(calls))
	ran := make([]bool, len(calls))

	for i := 0; i < len(calls); {
		j := i + 1
		if a.readOnly(calls[i].Name) {
			for j < len(calls) && a.readOnly(calls[j].Name) {
				j++
			}
		}

		if j-i == 1 {
			results[i], ran[i] = a.invoke(ctx, run.ID, calls[i])
		} else {
			g, gctx := errgroup.WithContext(ctx)
			for k := i; k < j; k++ {
				g.Go(func() error {
					results[k], ran[k] = a.invoke(gctx, run.ID, calls[k])
					return nil
				})
			}
			_ = g.Wait()
		}
		i = j
	}

	for i, call := range calls {
		text := ""
		if i == 0 {
			text = resp.Content
		}
		run.Append(
			provider.ToolCallMessage(text, call),
			provider.ToolResultMessage(call.ID, call.Name, results[i]),
		)
		if ran[i] {
			run.MarkToolUsed(call.Name)
		}
	}
}

func (a *Agent) readOnly(name string) bool {
	t, ok := a.registry.Get(name)
	return ok && IsReadOnly(t) && a.guard.CheckTool(name) == nil
}

// invoke runs one call and returns the tool result content. ran reports
// whether the tool was executed, which is false for denied or unknown tools.
func (a *Agent) invoke(ctx context.Context, runID string, call provider.ToolCall) (content string, ran bool) {
	log := a.observe.Log()
	a.events.PublishWithData(EventToolCallStart, runID, map[string]any{"tool": call.Name, "id": call.ID})

	if v := a.guard.CheckTool(call.Name); v != nil {
		log.Warn().Str("tool", call.Name).Str("violation", v.Rule).Msg("tool call blocked")
		a.events.PublishWithData(EventGuardViolation, runID, map[string]any{"rule": v.Rule, "tool": call.Name})
		a.observe.Metrics().RecordToolCall(ctx, call.Name, true)
		return errorPayload(call.Name, errors.New(v.Message)), false
	}

	result, err := a.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		log.Warn().Str("tool", call.Name).Err(err).Msg("tool call failed")
		a.events.PublishWithData(EventToolCallFailed, runID, map[string]any{"tool": call.Name, "error": err.Error()})
		a.observe.Metrics().RecordToolCall(ctx, call.Name, true)
		var notFound *ToolNotFoundError
		return errorPayload(call.Name, err), !errors.As(err, &notFound)
	}

	content, err = a.fold(ctx, runID, result)
	if err != nil {
		log.Warn().Str("tool", call.Name).Err(err).Msg("tool result not serializable")
		a.observe.Metrics().RecordToolCall(ctx, call.Name, true)
		return errorPayload(call.Name, err), true
	}

	a.observe.Metrics().RecordToolCall(ctx, call.Name, false)
	a.events.PublishWithData(EventToolCallEnd, runID, map[string]any{"tool": call.Name, "id": call.ID, "bytes": len(content)})
	return content, true
}

// Preview stands in for a cached result in the conversation.
type Preview struct {
	ResultID string           `json:"resultId"`
	Count    int              `json:"count"`
	Preview  []map[string]any `json:"preview"`
	Note     string           `json:"note"`
}

// fold serializes a tool result and accounts for cached results.
func (a *Agent) fold(ctx context.Context, runID string, result any) (string, error) {
	content, preview, err := Fold(a.cache, result)
	if err != nil {
		return "", err
	}
	if preview != nil {
		a.observe.Metrics().CachedResults.Add(ctx, 1)
		a.events.PublishWithData(EventResultCached, runID, map[string]any{"resultId": preview.ResultID, "count": preview.Count})
	}
	return content, nil
}

// Fold serializes a tool result to JSON for the conversation. Results shaped
// {items, metadata} are stored in cache and replaced by a Preview, which is
// also returned.
func Fold(cache *resultcache.Cache, result any) (string, *Preview, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return "", nil, fmt.Errorf("marshal tool result: %w", err)
	}

	var shape struct {
		Items    []map[string]any `json:"items"`
		Metadata json.RawMessage  `json:"metadata"`
	}
	if json.Unmarshal(raw, &shape) != nil || shape.Items == nil || len(shape.Metadata) == 0 {
		return string(raw), nil, nil
	}

	id := cache.Store(result)
	preview := &Preview{
		ResultID: id,
		Count:    len(shape.Items),
		Preview:  make([]map[string]any, 0, previewItems),
		Note:     fmt.Sprintf("Showing %d of %d items. Pass %q in analyze inputs to work with the full result.", min(previewItems, len(shape.Items)), len(shape.Items), id),
	}
	for i := 0; i < len(shape.Items) && i < previewItems; i++ {
		item := shape.Items[i]
		if text, ok := item["text"].(string); ok {
			item["text"] = truncate(text, previewTextLen)
		}
		preview.Preview = append(preview.Preview, item)
	}

	out, err := json.Marshal(preview)
	if err != nil {
		return "", nil, fmt.Errorf("marshal preview: %w", err)
	}
	return string(out), preview, nil
}

func errorPayload(tool string, err error) string {
	out, _ := json.Marshal(map[string]string{"error": err.Error(), "tool": tool})
	return string(out)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
