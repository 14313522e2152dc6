package rank

import (
	"math"
	"reflect"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testCandidates() []Candidate {
	return []Candidate{
		{ID: "c1", Timestamp: day("2025-05-01"), Text: "walked by the river", Embedding: []float32{1, 0, 0}},
		{ID: "c2", Timestamp: day("2025-06-15"), Text: "long day at work", Embedding: []float32{0, 1, 0}},
		{ID: "c3", Timestamp: day("2025-06-01"), Text: "river again", Embedding: []float32{0.9, 0.1, 0}},
	}
}

func TestRanker_DateDescLatest(t *testing.T) {
	r := NewRanker(func() time.Time { return fixedNow })
	shape := Shape{RecencyHalfLife: 30, Sort: SortDateDesc}

	items := r.Rank(testCandidates(), Options{
		Profile:      SelectProfile(shape),
		HalfLifeDays: 30,
		Sort:         SortDateDesc,
		Limit:        1,
	})

	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].ID != "c2" {
		t.Errorf("expected the 2025-06-15 chunk, got %s", items[0].ID)
	}
	if items[0].Provenance.Profile != "latest" {
		t.Errorf("profile = %s", items[0].Provenance.Profile)
	}
}

func TestRanker_Deterministic(t *testing.T) {
	r := NewRanker(func() time.Time { return fixedNow })
	opts := Options{
		Profile:        DefaultProfile,
		QueryEmbedding: []float32{1, 0, 0},
		HalfLifeDays:   30,
		Sort:           SortHybrid,
	}

	first := r.Rank(testCandidates(), opts)
	second := r.Rank(testCandidates(), opts)
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated ranking produced different results")
	}
	for i := 1; i < len(first); i++ {
		if first[i].Score > first[i-1].Score {
			t.Errorf("items not sorted by score at %d", i)
		}
	}
}

func TestRanker_StableTies(t *testing.T) {
	r := NewRanker(func() time.Time { return fixedNow })
	ts := day("2025-06-01")
	cands := []Candidate{
		{ID: "a", Timestamp: ts},
		{ID: "b", Timestamp: ts},
		{ID: "c", Timestamp: ts},
	}

	items := r.Rank(cands, Options{Profile: DefaultProfile, HalfLifeDays: 30})
	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Errorf("ties reordered: %v", ids)
	}
}

func TestRanker_LifelongIgnoresAge(t *testing.T) {
	r := NewRanker(func() time.Time { return fixedNow })
	cands := []Candidate{
		{ID: "recent", Timestamp: fixedNow.AddDate(0, 0, -10)},
		{ID: "old", Timestamp: fixedNow.AddDate(0, 0, -3000)},
	}
	profile := SelectProfile(Shape{RecencyHalfLife: 9999})

	items := r.Rank(cands, Options{Profile: profile, HalfLifeDays: 9999})

	contribution := func(it Item) float64 { return it.Components.RecencyDecay * profile.Weights.Recency }
	var recent, old Item
	for _, it := range items {
		if it.ID == "recent" {
			recent = it
		} else {
			old = it
		}
	}
	if diff := math.Abs(contribution(recent) - contribution(old)); diff >= 0.01 {
		t.Errorf("recency contribution differs by %v", diff)
	}
}

func TestRanker_MinSimilarity(t *testing.T) {
	r := NewRanker(func() time.Time { return fixedNow })
	cands := append(testCandidates(), Candidate{ID: "no-vector", Timestamp: day("2025-06-20")})

	items := r.Rank(cands, Options{
		Profile:        SemanticProfile,
		QueryEmbedding: []float32{1, 0, 0},
		HalfLifeDays:   30,
		MinSimilarity:  0.4,
	})

	got := map[string]bool{}
	for _, it := range items {
		got[it.ID] = true
	}
	if got["c2"] {
		t.Error("orthogonal chunk should be filtered")
	}
	if !got["c1"] || !got["c3"] {
		t.Errorf("similar chunks missing: %v", got)
	}
	if !got["no-vector"] {
		t.Error("items without similarity must be kept")
	}
}

func TestRanker_ComponentsInRange(t *testing.T) {
	r := NewRanker(func() time.Time { return fixedNow })
	raw := -35.0
	mag := 1.7
	cands := []Candidate{{
		ID:        "x",
		Timestamp: fixedNow.AddDate(0, 0, 3),
		Embedding: []float32{-1, 0, 0},
		Keyword:   &raw,
		Magnitude: &mag,
	}}

	items := r.Rank(cands, Options{Profile: DefaultProfile, QueryEmbedding: []float32{1, 0, 0}, HalfLifeDays: 30})
	c := items[0].Components
	for name, v := range map[string]float64{
		"similarity": *c.Similarity,
		"recency":    c.RecencyDecay,
		"keyword":    *c.KeywordMatch,
		"magnitude":  *c.MetricMagnitude,
	} {
		if v < 0 || v > 1 {
			t.Errorf("%s = %v out of [0,1]", name, v)
		}
	}
	if items[0].Score < 0 || items[0].Score > 1 {
		t.Errorf("score %v out of [0,1]", items[0].Score)
	}
}

func TestRanker_Limit(t *testing.T) {
	r := NewRanker(func() time.Time { return fixedNow })
	items := r.Rank(testCandidates(), Options{Profile: DefaultProfile, HalfLifeDays: 30, Limit: 2})
	if len(items) != 2 {
		t.Errorf("got %d items, want 2", len(items))
	}
}

func TestSortKey_Valid(t *testing.T) {
	if !SortMagnitudeDesc.Valid() || SortKey("random").Valid() {
		t.Error("unexpected validity")
	}
}
