// Package memory writes notes the agent decides to keep across conversations.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

// Kind classifies a note.
type Kind string

const (
	KindInsight    Kind = "insight"
	KindFact       Kind = "fact"
	KindPreference Kind = "preference"
	KindGoal       Kind = "goal"
	KindPattern    Kind = "pattern"
)

// Kinds lists every accepted kind.
var Kinds = []Kind{KindInsight, KindFact, KindPreference, KindGoal, KindPattern}

// DefaultConfidence is used when a write does not state one.
const DefaultConfidence = 0.8

var (
	ErrEmptyContent = errors.New("memory content is empty")
	ErrUnknownKind  = errors.New("unknown memory kind")
)

// Saver persists notes.
type Saver interface {
	SaveNote(ctx context.Context, n *store.Note) error
}

// WriteRequest is a note the agent asked to save.
type WriteRequest struct {
	Kind       string   `json:"kind"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	RelatedIDs []string `json:"relatedIds,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Validate checks the request without touching storage.
func (r WriteRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	if !validKind(Kind(r.Kind)) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return fmt.Errorf("confidence %v outside [0,1]", *r.Confidence)
	}
	return nil
}

func validKind(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Writer validates and saves notes.
type Writer struct {
	saver Saver
	now   func() time.Time
	newID func() string
}

// NewWriter creates a Writer that stamps notes with the wall clock and
// random UUIDs.
func NewWriter(saver Saver) *Writer {
	return &Writer{
		saver: saver,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Write saves a note built from req.
func (w *Writer) Write(ctx context.Context, req WriteRequest) (*store.Note, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	confidence := DefaultConfidence
	if req.Confidence != nil {
		confidence = *req.Confidence
	}

	note := &store.Note{
		ID:         w.newID(),
		Kind:       req.Kind,
		Content:    strings.TrimSpace(req.Content),
		Tags:       normalizeTags(req.Tags),
		RelatedIDs: req.RelatedIDs,
		Confidence: confidence,
		CreatedAt:  w.now().UTC(),
	}
	if err := w.saver.SaveNote(ctx, note); err != nil {
		return nil, fmt.Errorf("save note: %w", err)
	}
	return note, nil
}

// normalizeTags lower-cases, trims and de-duplicates tags, keeping order.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
