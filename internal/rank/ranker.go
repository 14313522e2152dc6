package rank

import (
	"sort"
	"time"
)

// SortKey orders ranked items.
type SortKey string

const (
	SortHybrid        SortKey = "hybrid"
	SortDateDesc      SortKey = "date_desc"
	SortDateAsc       SortKey = "date_asc"
	SortSimilarity    SortKey = "similarity_desc"
	SortMagnitudeDesc SortKey = "magnitude_desc"
)

// Valid reports whether k is a known sort key.
func (k SortKey) Valid() bool {
	switch k {
	case SortHybrid, SortDateDesc, SortDateAsc, SortSimilarity, SortMagnitudeDesc:
		return true
	}
	return false
}

// IsDate reports whether k orders by timestamp.
func (k SortKey) IsDate() bool {
	return k == SortDateDesc || k == SortDateAsc
}

// Provenance records where a ranked item came from.
type Provenance struct {
	Scope   string `json:"scope"`
	EntryID string `json:"entryId,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// Candidate is one item fetched from storage, awaiting a score.
type Candidate struct {
	ID         string
	Timestamp  time.Time
	Text       string
	Embedding  []float32
	Keyword    *float64 // raw bm25, nil when no keyword filter applied
	Magnitude  *float64 // already normalized to [0,1]
	Provenance Provenance
}

// Components are the per-signal scores of an item, each in [0,1].
type Components struct {
	Similarity      *float64 `json:"similarity,omitempty"`
	RecencyDecay    float64  `json:"recencyDecay"`
	KeywordMatch    *float64 `json:"keywordMatch,omitempty"`
	MetricMagnitude *float64 `json:"metricMagnitude,omitempty"`
}

// Item is a scored candidate.
type Item struct {
	ID         string     `json:"id"`
	Date       time.Time  `json:"date"`
	Text       string     `json:"text,omitempty"`
	Score      float64    `json:"score"`
	Components Components `json:"components"`
	Provenance Provenance `json:"provenance"`
}

// Options control one ranking pass.
type Options struct {
	Profile        Profile
	QueryEmbedding []float32
	HalfLifeDays   float64
	Sort           SortKey
	// MinSimilarity drops items whose similarity is below it. Items without
	// a similarity component are kept.
	MinSimilarity float64
	// Limit truncates the result; 0 keeps everything.
	Limit int
}

// Ranker scores candidates against a fixed clock.
type Ranker struct {
	now func() time.Time
}

// NewRanker creates a ranker. A nil clock means time.Now.
func NewRanker(now func() time.Time) *Ranker {
	if now == nil {
		now = time.Now
	}
	return &Ranker{now: now}
}

// Rank scores, filters, orders and truncates candidates. Ties keep the
// candidates' input order.
func (r *Ranker) Rank(candidates []Candidate, opts Options) []Item {
	now := r.now()
	items := make([]Item, 0, len(candidates))

	for _, c := range candidates {
		comp := Components{
			RecencyDecay: RecencyDecay(AgeDays(c.Timestamp, now), opts.HalfLifeDays),
		}
		if len(opts.QueryEmbedding) > 0 && len(c.Embedding) > 0 {
			sim := CosineSimilarity(opts.QueryEmbedding, c.Embedding)
			comp.Similarity = &sim
		}
		if c.Keyword != nil {
			kw := KeywordScore(*c.Keyword)
			comp.KeywordMatch = &kw
		}
		if c.Magnitude != nil {
			mag := clamp01(*c.Magnitude)
			comp.MetricMagnitude = &mag
		}

		if comp.Similarity != nil && *comp.Similarity < opts.MinSimilarity {
			continue
		}

		prov := c.Provenance
		prov.Profile = opts.Profile.Name
		items = append(items, Item{
			ID:         c.ID,
			Date:       c.Timestamp,
			Text:       c.Text,
			Score:      opts.Profile.Score(comp),
			Components: comp,
			Provenance: prov,
		})
	}

	sort.SliceStable(items, less(items, opts.Sort))

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

func less(items []Item, key SortKey) func(i, j int) bool {
	switch key {
	case SortDateDesc:
		return func(i, j int) bool { return items[i].Date.After(items[j].Date) }
	case SortDateAsc:
		return func(i, j int) bool { return items[i].Date.Before(items[j].Date) }
	case SortSimilarity:
		return func(i, j int) bool {
			return value(items[i].Components.Similarity) > value(items[j].Components.Similarity)
		}
	case SortMagnitudeDesc:
		return func(i, j int) bool {
			return value(items[i].Components.MetricMagnitude) > value(items[j].Components.MetricMagnitude)
		}
	default:
		return func(i, j int) bool { return items[i].Score > items[j].Score }
	}
}

func value(p *float64) float64 {
	if p == nil {
		return -1
	}
	return *p
}
