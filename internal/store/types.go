package store

import (
	"context"
	"time"
)

// TimeRange bounds a query. A zero From or To leaves that side open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Chunk is one segment of a journal entry.
type Chunk struct {
	ID         string
	EntryID    string
	Text       string
	Embedding  []float32
	OccurredAt time.Time
	Entities   []string
	Topics     []string
	Sentiment  string
}

// AnalyticsRow holds scalar metrics for one period. Day rows carry raw
// daily values; month and year rows are stored summaries.
type AnalyticsRow struct {
	ID          string
	OccurredAt  time.Time
	Granularity string
	Summary     string
	Metrics     map[string]float64
}

// Note is a saved memory written by the agent.
type Note struct {
	ID             string
	Kind           string
	Content        string
	Tags           []string
	RelatedIDs     []string
	Confidence     float64
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
}

// KeywordHit is a full-text match with its raw bm25 score. Lower is better.
type KeywordHit struct {
	ChunkID string
	Score   float64
}

// Storage defines the interface for persistence
type Storage interface {
	// Chunks
	SaveChunk(ctx context.Context, c *Chunk) error
	ChunksByDateRange(ctx context.Context, r TimeRange) ([]Chunk, error)
	ChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error)
	KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordHit, error)

	// Analytics and summaries
	SaveAnalytics(ctx context.Context, row *AnalyticsRow) error
	AnalyticsByDateRange(ctx context.Context, granularity string, r TimeRange) ([]AnalyticsRow, error)

	// Notes
	SaveNote(ctx context.Context, n *Note) error
	NotesByTagOverlap(ctx context.Context, tags []string, limit int) ([]Note, error)
	NotesByDateRange(ctx context.Context, r TimeRange, limit int) ([]Note, error)
	RecentNotes(ctx context.Context, limit int) ([]Note, error)
	TouchNotes(ctx context.Context, ids []string, at time.Time) error

	// Configuration Management
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)

	Close() error
}
