package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

type fakeCorpus struct {
	chunks    []store.Chunk
	keyword   map[string]float64
	analytics []store.AnalyticsRow
	notes     []store.Note

	touchErr error
	mu       sync.Mutex
	touched  []string
	calls    []string
}

func (f *fakeCorpus) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func inRange(t time.Time, r store.TimeRange) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

func (f *fakeCorpus) ChunksByDateRange(_ context.Context, r store.TimeRange) ([]store.Chunk, error) {
	f.record("ChunksByDateRange")
	var out []store.Chunk
	for _, c := range f.chunks {
		if inRange(c.OccurredAt, r) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCorpus) ChunksByIDs(_ context.Context, ids []string) ([]store.Chunk, error) {
	f.record("ChunksByIDs")
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []store.Chunk
	for _, c := range f.chunks {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCorpus) KeywordSearch(_ context.Context, query string, limit int) ([]store.KeywordHit, error) {
	f.record("KeywordSearch")
	var hits []store.KeywordHit
	for id, score := range f.keyword {
		hits = append(hits, store.KeywordHit{ChunkID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	return hits, nil
}

func (f *fakeCorpus) AnalyticsByDateRange(_ context.Context, granularity string, r store.TimeRange) ([]store.AnalyticsRow, error) {
	f.record("AnalyticsByDateRange:" + granularity)
	var out []store.AnalyticsRow
	for _, row := range f.analytics {
		if row.Granularity == granularity && inRange(row.OccurredAt, r) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeCorpus) NotesByTagOverlap(_ context.Context, tags []string, limit int) ([]store.Note, error) {
	f.record("NotesByTagOverlap")
	var out []store.Note
	for _, n := range f.notes {
		if overlaps(n.Tags, tags) {
			out = append(out, n)
		}
	}
	return capNotes(out, limit), nil
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}

func (f *fakeCorpus) NotesByDateRange(_ context.Context, r store.TimeRange, limit int) ([]store.Note, error) {
	f.record("NotesByDateRange")
	var out []store.Note
	for _, n := range f.notes {
		if inRange(n.CreatedAt, r) {
			out = append(out, n)
		}
	}
	return capNotes(out, limit), nil
}

func (f *fakeCorpus) RecentNotes(_ context.Context, limit int) ([]store.Note, error) {
	f.record("RecentNotes")
	out := append([]store.Note(nil), f.notes...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return capNotes(out, limit), nil
}

func capNotes(n []store.Note, limit int) []store.Note {
	if len(n) > limit {
		return n[:limit]
	}
	return n
}

func (f *fakeCorpus) TouchNotes(_ context.Context, ids []string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	f.touched = append(f.touched, ids...)
	return nil
}

type fakeEmbedder map[string][]float32

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := f[text]
	if !ok {
		return nil, errors.New("no embedding for " + text)
	}
	return v, nil
}
