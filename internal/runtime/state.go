package runtime

import (
	"time"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/provider"
)

// State is the phase of an agent run.
type State string

const (
	StateReasoning State = "reasoning"
	StateActing    State = "acting"
	StateObserving State = "observing"
	StateDone      State = "done"
	StateExhausted State = "exhausted"
)

// Terminal reports whether no further iterations follow.
func (s State) Terminal() bool {
	return s == StateDone || s == StateExhausted
}

// Run is the state of one Agent.Run call. It is not shared between
// goroutines.
type Run struct {
	ID            string
	State         State
	Iteration     int
	TokenEstimate int
	StartedAt     time.Time

	messages  []provider.Message
	toolsUsed []string
	seen      map[string]struct{}
}

func newRun(id string, history []provider.Message, now time.Time) *Run {
	r := &Run{
		ID:        id,
		State:     StateReasoning,
		StartedAt: now,
		messages:  make([]provider.Message, 0, len(history)+1),
		seen:      make(map[string]struct{}),
	}
	r.Append(history...)
	return r
}

// Append adds messages to the history. Messages are never modified once
// appended.
func (r *Run) Append(msgs ...provider.Message) {
	for _, m := range msgs {
		r.messages = append(r.messages, m)
		r.TokenEstimate += EstimateTokens(m)
	}
}

// Messages returns a copy of the history.
func (r *Run) Messages() []provider.Message {
	out := make([]provider.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// MarkToolUsed records a tool name once, in first-use order.
func (r *Run) MarkToolUsed(name string) {
	if _, ok := r.seen[name]; ok {
		return
	}
	r.seen[name] = struct{}{}
	r.toolsUsed = append(r.toolsUsed, name)
}

// ToolsUsed returns the distinct tools called so far.
func (r *Run) ToolsUsed() []string {
	out := make([]string, len(r.toolsUsed))
	copy(out, r.toolsUsed)
	return out
}

// Transition moves the run to state s.
func (r *Run) Transition(s State) {
	r.State = s
}

// Metadata summarizes the run at time now.
func (r *Run) Metadata(now time.Time) Metadata {
	return Metadata{
		Iterations:       r.Iteration,
		Elapsed:          now.Sub(r.StartedAt),
		ToolsUsed:        r.ToolsUsed(),
		TokenEstimate:    r.TokenEstimate,
		HitMaxIterations: r.State == StateExhausted,
	}
}

// EstimateTokens approximates a message's size as characters / 4, counting
// content and tool call arguments.
func EstimateTokens(m provider.Message) int {
	n := len(m.Content)
	for _, tc := range m.ToolCalls {
		n += len(tc.Name) + len(tc.Arguments)
	}
	return n / 4
}
