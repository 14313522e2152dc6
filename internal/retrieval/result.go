package retrieval

import (
	"github.com/MuslimSoftware/LifeOS-sub001/internal/rank"
)

// Stats summarizes one metric over a range.
type Stats struct {
	Metric string  `json:"metric"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	Scope      Scope   `json:"scope"`
	Count      int     `json:"count"`
	Candidates int     `json:"candidates"`
	Confidence float64 `json:"confidence"`
	Profile    string  `json:"profile,omitempty"`
	Sort       string  `json:"sort,omitempty"`
	View       View    `json:"view,omitempty"`
	Stats      *Stats  `json:"stats,omitempty"`
}

// Result is either a list of items with metadata or an explained empty result.
type Result struct {
	Items    []rank.Item `json:"items,omitempty"`
	Metadata *Metadata   `json:"metadata,omitempty"`
	Empty    bool        `json:"empty,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

func emptyResult(reason string) *Result {
	return &Result{Empty: true, Reason: reason}
}

func newResult(q Query, profile string, items []rank.Item, candidates int) *Result {
	return &Result{
		Items: items,
		Metadata: &Metadata{
			Scope:      q.Scope,
			Count:      len(items),
			Candidates: candidates,
			Confidence: confidence(items),
			Profile:    profile,
			Sort:       string(q.Sort),
			View:       q.View,
		},
	}
}

// confidence is the mean item score.
func confidence(items []rank.Item) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += it.Score
	}
	return sum / float64(len(items))
}
