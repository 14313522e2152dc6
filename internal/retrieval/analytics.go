package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/rank"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

// Stress derives a 0-100 stress level from emotion intensities.
func Stress(m map[string]float64) float64 {
	return rank.Clamp(50+m["anxiety"]*20+m["sadness"]*15+m["anger"]*10, 0, 100)
}

// Energy derives a 0-100 energy level from emotion intensities.
func Energy(m map[string]float64) float64 {
	return rank.Clamp(50+m["arousal"]*30+m["joy"]*15, 0, 100)
}

var derived = map[string]struct {
	inputs []string
	fn     func(map[string]float64) float64
}{
	"stress": {[]string{"anxiety", "sadness", "anger"}, Stress},
	"energy": {[]string{"arousal", "joy"}, Energy},
}

// metricValue reads metric from a row. Derived metrics are computed from
// their inputs when any input is present.
func metricValue(row store.AnalyticsRow, metric string) (float64, bool) {
	if d, ok := derived[metric]; ok {
		for _, in := range d.inputs {
			if _, has := row.Metrics[in]; has {
				return d.fn(row.Metrics), true
			}
		}
	}
	v, ok := row.Metrics[metric]
	return v, ok
}

func (r *Retriever) retrieveAnalytics(ctx context.Context, q Query) (*Result, error) {
	if q.View == ViewHistogram {
		return emptyResult("histogram view is not implemented"), nil
	}

	rows, err := r.fetchRows(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return emptyResult(fmt.Sprintf("no %s rows in the requested range", q.Scope)), nil
	}

	metric := q.Filter.Metric
	values := make(map[string]float64, len(rows))
	lo, hi := math.Inf(1), math.Inf(-1)
	if metric != "" {
		for _, row := range rows {
			if v, ok := metricValue(row, metric); ok {
				values[row.ID] = v
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
		}
		if len(values) == 0 {
			return emptyResult(fmt.Sprintf("no rows carry metric %q", metric)), nil
		}
	}

	if q.View == ViewStats {
		return statsResult(q, rows, values), nil
	}

	candidates := make([]rank.Candidate, 0, len(rows))
	for _, row := range rows {
		cand := rank.Candidate{
			ID:         row.ID,
			Timestamp:  row.OccurredAt,
			Text:       rowText(row),
			Provenance: rank.Provenance{Scope: string(q.Scope), Kind: row.Granularity},
		}
		if v, ok := values[row.ID]; ok {
			mag := rank.MinMax(v, lo, hi)
			cand.Magnitude = &mag
		} else if q.View == ViewTimeline {
			continue
		}
		candidates = append(candidates, cand)
	}

	profile := rank.SelectProfile(q.Shape())
	items := r.ranker.Rank(candidates, r.rankOptions(q, profile, nil))
	if len(items) == 0 {
		return emptyResult("no rows left after ranking"), nil
	}

	if q.View == ViewTimeline {
		sort.SliceStable(items, func(i, j int) bool { return items[i].Date.Before(items[j].Date) })
		for i := range items {
			items[i].Score = *items[i].Components.MetricMagnitude
			items[i].Text = fmt.Sprintf("%s=%s", metric, formatFloat(values[items[i].ID]))
		}
	}

	return newResult(q, profile.Name, items, len(candidates)), nil
}

func (r *Retriever) fetchRows(ctx context.Context, q Query) ([]store.AnalyticsRow, error) {
	g := q.Filter.TimeGranularity
	if q.Scope == ScopeSummaries {
		return r.corpus.AnalyticsByDateRange(ctx, string(g), periodRange(q.Range(), g))
	}

	switch g {
	case GranularityWeek, GranularityMonth, GranularityYear:
		rows, err := r.corpus.AnalyticsByDateRange(ctx, string(GranularityDay), periodRange(q.Range(), g))
		if err != nil {
			return nil, err
		}
		return bucket(rows, g), nil
	}
	return r.corpus.AnalyticsByDateRange(ctx, string(GranularityDay), q.Range())
}

// periodRange widens From back to the start of its period, so a period that
// overlaps the range is read whole.
func periodRange(tr store.TimeRange, g Granularity) store.TimeRange {
	if !tr.From.IsZero() {
		tr.From = periodStart(tr.From, g)
	}
	return tr
}

// statsResult summarizes the metric over every fetched row, not only the
// ones that would survive the limit.
func statsResult(q Query, rows []store.AnalyticsRow, values map[string]float64) *Result {
	st := &Stats{Metric: q.Filter.Metric, Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	var last time.Time
	for _, row := range rows {
		v, ok := values[row.ID]
		if !ok {
			continue
		}
		sum += v
		st.Count++
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
		if row.OccurredAt.After(last) {
			last = row.OccurredAt
		}
	}
	st.Mean = sum / float64(st.Count)

	item := rank.Item{
		ID:   "stats:" + st.Metric,
		Date: last,
		Text: fmt.Sprintf("%s over %d rows: mean %s, min %s, max %s",
			st.Metric, st.Count, formatFloat(st.Mean), formatFloat(st.Min), formatFloat(st.Max)),
		Score:      1,
		Components: rank.Components{RecencyDecay: 1},
		Provenance: rank.Provenance{Scope: string(q.Scope), Kind: "stats"},
	}
	res := newResult(q, "", []rank.Item{item}, len(rows))
	res.Metadata.Stats = st
	return res
}

// bucket averages day rows into week, month or year periods, oldest first.
func bucket(rows []store.AnalyticsRow, g Granularity) []store.AnalyticsRow {
	type acc struct {
		start  time.Time
		sums   map[string]float64
		counts map[string]int
	}
	periods := map[time.Time]*acc{}
	var order []time.Time

	for _, row := range rows {
		start := periodStart(row.OccurredAt, g)
		a, ok := periods[start]
		if !ok {
			a = &acc{start: start, sums: map[string]float64{}, counts: map[string]int{}}
			periods[start] = a
			order = append(order, start)
		}
		for k, v := range row.Metrics {
			a.sums[k] += v
			a.counts[k]++
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	out := make([]store.AnalyticsRow, 0, len(order))
	for _, start := range order {
		a := periods[start]
		metrics := make(map[string]float64, len(a.sums))
		for k, sum := range a.sums {
			metrics[k] = sum / float64(a.counts[k])
		}
		out = append(out, store.AnalyticsRow{
			ID:          string(g) + ":" + start.Format(dateLayout),
			OccurredAt:  start,
			Granularity: string(g),
			Metrics:     metrics,
		})
	}
	return out
}

func periodStart(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case GranularityWeek:
		offset := (int(day.Weekday()) + 6) % 7 // Monday starts the week
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case GranularityYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

func rowText(row store.AnalyticsRow) string {
	if row.Summary != "" {
		return row.Summary
	}
	keys := make([]string, 0, len(row.Metrics))
	for k := range row.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatFloat(row.Metrics[k]))
	}
	return strings.Join(parts, " ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
