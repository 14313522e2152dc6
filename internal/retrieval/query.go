package retrieval

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/rank"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

// Scope selects the data family a query reads.
type Scope string

const (
	ScopeChunks    Scope = "chunks"
	ScopeEntries   Scope = "entries"
	ScopeMemory    Scope = "memory"
	ScopeAnalytics Scope = "analytics"
	ScopeSummaries Scope = "summaries"
)

// Scopes lists every scope.
var Scopes = []Scope{ScopeChunks, ScopeEntries, ScopeMemory, ScopeAnalytics, ScopeSummaries}

// View shapes analytics and summaries results.
type View string

const (
	ViewRaw       View = "raw"
	ViewTimeline  View = "timeline"
	ViewStats     View = "stats"
	ViewHistogram View = "histogram"
)

// Granularity is the period length of a metrics row.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

const (
	DefaultLimit         = 10
	MaxLimit             = 200
	DefaultMinSimilarity = 0.4
	DefaultHalfLifeDays  = 30.0
)

const dateLayout = "2006-01-02"

// Filter narrows and weights a query.
type Filter struct {
	DateFrom        time.Time
	DateTo          time.Time
	IDs             []string
	Entities        []string
	Topics          []string
	Sentiment       string
	Metric          string
	SimilarTo       string
	Keyword         string
	MinSimilarity   float64
	TimeGranularity Granularity
	RecencyHalfLife float64
}

// Query is a validated retrieval request.
type Query struct {
	Scope  Scope
	Filter Filter
	Sort   rank.SortKey
	Limit  int
	View   View
}

// Shape is what profile selection sees of the query.
func (q Query) Shape() rank.Shape {
	return rank.Shape{
		RecencyHalfLife: q.Filter.RecencyHalfLife,
		Sort:            q.Sort,
		HasSimilarTo:    q.Filter.SimilarTo != "",
		HasKeyword:      q.Filter.Keyword != "",
	}
}

// Range is the query's date range for storage calls.
func (q Query) Range() store.TimeRange {
	return store.TimeRange{From: q.Filter.DateFrom, To: q.Filter.DateTo}
}

// ParseQuery validates an untyped argument map, as decoded from a tool call,
// into a Query. Defaults are filled in; nothing out of range is clamped.
func ParseQuery(args map[string]any) (Query, error) {
	q := Query{
		Sort:  rank.SortHybrid,
		Limit: DefaultLimit,
		View:  ViewRaw,
		Filter: Filter{
			MinSimilarity:   DefaultMinSimilarity,
			RecencyHalfLife: DefaultHalfLifeDays,
		},
	}

	scope, ok, err := stringArg(args, "scope")
	if err != nil {
		return Query{}, err
	}
	if !ok || scope == "" {
		return Query{}, invalid("scope is required")
	}
	q.Scope = Scope(scope)
	if !q.Scope.valid() {
		return Query{}, invalid("unknown scope %q", scope)
	}

	if s, ok, err := stringArg(args, "sort"); err != nil {
		return Query{}, err
	} else if ok {
		q.Sort = rank.SortKey(s)
		if !q.Sort.Valid() {
			return Query{}, invalid("unknown sort %q", s)
		}
	}

	if n, ok, err := numberArg(args, "limit"); err != nil {
		return Query{}, err
	} else if ok {
		if n != math.Trunc(n) || n < 1 || n > MaxLimit {
			return Query{}, invalid("limit must be an integer between 1 and %d, got %v", MaxLimit, n)
		}
		q.Limit = int(n)
	}

	if s, ok, err := stringArg(args, "view"); err != nil {
		return Query{}, err
	} else if ok {
		q.View = View(s)
		if !q.View.valid() {
			return Query{}, invalid("unknown view %q", s)
		}
	}

	if raw, ok := args["filter"]; ok && raw != nil {
		fm, isMap := raw.(map[string]any)
		if !isMap {
			return Query{}, invalid("filter must be an object")
		}
		if err := parseFilter(fm, &q.Filter); err != nil {
			return Query{}, err
		}
	}

	if err := q.validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

func parseFilter(m map[string]any, f *Filter) error {
	var err error

	if f.DateFrom, err = dateArg(m, "dateFrom", false); err != nil {
		return err
	}
	if f.DateTo, err = dateArg(m, "dateTo", true); err != nil {
		return err
	}
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateFrom.After(f.DateTo) {
		return invalid("dateFrom is after dateTo")
	}

	for key, dst := range map[string]*[]string{"ids": &f.IDs, "entities": &f.Entities, "topics": &f.Topics} {
		if *dst, err = stringsArg(m, key); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*string{"sentiment": &f.Sentiment, "metric": &f.Metric, "similarTo": &f.SimilarTo, "keyword": &f.Keyword} {
		s, _, err := stringArg(m, key)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(s)
	}

	if n, ok, err := numberArg(m, "minSimilarity"); err != nil {
		return err
	} else if ok {
		if n < 0 || n > 1 {
			return invalid("minSimilarity must be between 0 and 1, got %v", n)
		}
		f.MinSimilarity = n
	}

	if n, ok, err := numberArg(m, "recencyHalfLife"); err != nil {
		return err
	} else if ok {
		if n <= 0 {
			return invalid("recencyHalfLife must be positive, got %v", n)
		}
		f.RecencyHalfLife = n
	}

	if s, ok, err := stringArg(m, "timeGranularity"); err != nil {
		return err
	} else if ok {
		f.TimeGranularity = Granularity(s)
		if !f.TimeGranularity.valid() {
			return invalid("unknown timeGranularity %q", s)
		}
	}
	return nil
}

func (q Query) validate() error {
	analytic := q.Scope == ScopeAnalytics || q.Scope == ScopeSummaries
	if q.View != ViewRaw && !analytic {
		return invalid("view %s is only supported for analytics and summaries", q.View)
	}
	if (q.View == ViewTimeline || q.View == ViewStats) && q.Filter.Metric == "" {
		return invalid("view %s requires filter.metric", q.View)
	}

	if q.Scope == ScopeSummaries {
		switch q.Filter.TimeGranularity {
		case GranularityMonth, GranularityYear:
		case "":
			return invalid("summaries scope requires filter.timeGranularity (month or year)")
		default:
			return &UnsupportedGranularityError{Scope: q.Scope, Granularity: q.Filter.TimeGranularity}
		}
	}
	return nil
}

func (s Scope) valid() bool {
	for _, known := range Scopes {
		if s == known {
			return true
		}
	}
	return false
}

func (v View) valid() bool {
	switch v {
	case ViewRaw, ViewTimeline, ViewStats, ViewHistogram:
		return true
	}
	return false
}

func (g Granularity) valid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
		return true
	}
	return false
}

func stringArg(m map[string]any, key string) (string, bool, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", false, invalid("%s must be a string", key)
	}
	return s, true, nil
}

func stringsArg(m map[string]any, key string) ([]string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, isString := item.(string)
			if !isString {
				return nil, invalid("%s must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalid("%s must be a list of strings", key)
	}
}

func numberArg(m map[string]any, key string) (float64, bool, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false, invalid("%s must be a number", key)
		}
		return f, true, nil
	default:
		return 0, false, invalid("%s must be a number", key)
	}
}

// dateArg parses an ISO-8601 date or timestamp. A bare date used as an upper
// bound covers the whole day.
func dateArg(m map[string]any, key string, endOfDay bool) (time.Time, error) {
	s, ok, err := stringArg(m, key)
	if err != nil || !ok || s == "" {
		return time.Time{}, err
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, &InvalidDateError{Field: key, Value: s}
}
