// Package retrieval turns a structured query into ranked items by dispatching
// on scope to the corpus store and the ranking engine.
package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/observe"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/rank"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

// Corpus is the storage the retriever reads.
type Corpus interface {
	ChunksByDateRange(ctx context.Context, r store.TimeRange) ([]store.Chunk, error)
	ChunksByIDs(ctx context.Context, ids []string) ([]store.Chunk, error)
	KeywordSearch(ctx context.Context, query string, limit int) ([]store.KeywordHit, error)
	AnalyticsByDateRange(ctx context.Context, granularity string, r store.TimeRange) ([]store.AnalyticsRow, error)
	NotesByTagOverlap(ctx context.Context, tags []string, limit int) ([]store.Note, error)
	NotesByDateRange(ctx context.Context, r store.TimeRange, limit int) ([]store.Note, error)
	RecentNotes(ctx context.Context, limit int) ([]store.Note, error)
	TouchNotes(ctx context.Context, ids []string, at time.Time) error
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	keywordFetchLimit = 500
	touchTimeout      = 5 * time.Second
)

// Option configures a Retriever.
type Option func(*Retriever)

// WithClock fixes the retriever's notion of now.
func WithClock(now func() time.Time) Option {
	return func(r *Retriever) { r.now = now }
}

// Retriever answers queries against a corpus.
type Retriever struct {
	corpus   Corpus
	embedder Embedder
	obs      *observe.Observer
	now      func() time.Time
	ranker   *rank.Ranker

	pending sync.WaitGroup
}

// New creates a Retriever. embedder may be nil, in which case similarTo
// queries fail.
func New(corpus Corpus, embedder Embedder, obs *observe.Observer, opts ...Option) *Retriever {
	if obs == nil {
		obs = observe.Discard()
	}
	r := &Retriever{
		corpus:   corpus,
		embedder: embedder,
		obs:      obs,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ranker = rank.NewRanker(r.now)
	return r
}

// Retrieve runs q.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Result, error) {
	ctx, span := r.obs.StartSpan(ctx, "retrieval.retrieve")
	defer span.End()

	var (
		res *Result
		err error
	)
	switch q.Scope {
	case ScopeChunks, ScopeEntries:
		res, err = r.retrieveChunks(ctx, q)
	case ScopeMemory:
		res, err = r.retrieveMemory(ctx, q)
	case ScopeAnalytics, ScopeSummaries:
		res, err = r.retrieveAnalytics(ctx, q)
	default:
		return nil, invalid("unknown scope %q", q.Scope)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", q.Scope, err)
	}

	if res.Empty {
		r.obs.Log().Debug().Str("scope", string(q.Scope)).Str("reason", res.Reason).Msg("retrieval returned nothing")
	} else {
		r.obs.Log().Debug().Str("scope", string(q.Scope)).Int("count", res.Metadata.Count).Str("profile", res.Metadata.Profile).Msg("retrieval complete")
	}
	return res, nil
}

// Wait blocks until background access updates have finished.
func (r *Retriever) Wait() {
	r.pending.Wait()
}

func (r *Retriever) queryEmbedding(ctx context.Context, q Query) ([]float32, error) {
	if q.Filter.SimilarTo == "" {
		return nil, nil
	}
	if r.embedder == nil {
		return nil, fmt.Errorf("similarTo needs an embedding provider")
	}
	vec, err := r.embedder.Embed(ctx, q.Filter.SimilarTo)
	if err != nil {
		return nil, fmt.Errorf("embed similarTo: %w", err)
	}
	return vec, nil
}

func (r *Retriever) rankOptions(q Query, profile rank.Profile, embedding []float32) rank.Options {
	return rank.Options{
		Profile:        profile,
		QueryEmbedding: embedding,
		HalfLifeDays:   q.Filter.RecencyHalfLife,
		Sort:           q.Sort,
		MinSimilarity:  q.Filter.MinSimilarity,
		Limit:          q.Limit,
	}
}
