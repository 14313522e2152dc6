package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

var testNow = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestRetriever(c Corpus, e Embedder) *Retriever {
	return New(c, e, nil, WithClock(func() time.Time { return testNow }))
}

func journalCorpus() *fakeCorpus {
	return &fakeCorpus{
		chunks: []store.Chunk{
			{ID: "c1", EntryID: "e1", Text: "Morning run by the lake", OccurredAt: day("2025-05-01"), Embedding: []float32{1, 0}, Entities: []string{"Lake Merritt"}, Topics: []string{"running"}, Sentiment: "positive"},
			{ID: "c2", EntryID: "e1", Text: "Then a long meeting", OccurredAt: day("2025-05-01").Add(time.Hour), Embedding: []float32{0, 1}, Topics: []string{"work"}},
			{ID: "c3", EntryID: "e2", Text: "Evening run, legs tired", OccurredAt: day("2025-06-15"), Embedding: []float32{0.9, 0.2}, Topics: []string{"Running"}, Sentiment: "neutral"},
		},
	}
}

func mustParse(t *testing.T, s string) Query {
	t.Helper()
	q, err := ParseQuery(decode(t, s))
	if err != nil {
		t.Fatalf("ParseQuery(%s): %v", s, err)
	}
	return q
}

func TestRetrieve_LatestChunk(t *testing.T) {
	r := newTestRetriever(journalCorpus(), nil)

	res, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"chunks","sort":"date_desc","limit":1}`))
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if res.Empty {
		t.Fatalf("unexpected empty result: %s", res.Reason)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "c3" {
		t.Fatalf("expected the 2025-06-15 chunk, got %+v", res.Items)
	}
	if res.Metadata.Profile != "latest" {
		t.Errorf("profile = %s, want latest", res.Metadata.Profile)
	}
}

func TestRetrieve_ChunkFilters(t *testing.T) {
	r := newTestRetriever(journalCorpus(), nil)
	ctx := context.Background()

	res, err := r.Retrieve(ctx, mustParse(t, `{"scope":"chunks","filter":{"topics":["run"]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.Count != 2 {
		t.Errorf("substring topic match: got %d items", res.Metadata.Count)
	}

	res, err = r.Retrieve(ctx, mustParse(t, `{"scope":"chunks","filter":{"entities":["merritt"],"sentiment":"POSITIVE"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.Count != 1 || res.Items[0].ID != "c1" {
		t.Errorf("entity + sentiment filter: %+v", res.Items)
	}

	res, err = r.Retrieve(ctx, mustParse(t, `{"scope":"chunks","filter":{"topics":["gardening"]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Empty || res.Reason == "" {
		t.Errorf("expected empty result with reason, got %+v", res)
	}
}

func TestRetrieve_ByIDs(t *testing.T) {
	corpus := journalCorpus()
	r := newTestRetriever(corpus, nil)

	res, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"chunks","filter":{"ids":["c2"]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.Count != 1 || res.Items[0].ID != "c2" {
		t.Errorf("unexpected items: %+v", res.Items)
	}
	if corpus.calls[0] != "ChunksByIDs" {
		t.Errorf("expected id lookup, got %v", corpus.calls)
	}
}

func TestRetrieve_Semantic(t *testing.T) {
	r := newTestRetriever(journalCorpus(), fakeEmbedder{"running": {1, 0}})

	res, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"chunks","filter":{"similarTo":"running"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.Profile != "semantic" {
		t.Errorf("profile = %s", res.Metadata.Profile)
	}
	for _, it := range res.Items {
		if it.ID == "c2" {
			t.Error("orthogonal chunk should fall under minSimilarity")
		}
	}
	if res.Items[0].Components.Similarity == nil {
		t.Error("similarity component missing")
	}
}

func TestRetrieve_SimilarToNeedsEmbedder(t *testing.T) {
	r := newTestRetriever(journalCorpus(), nil)
	if _, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"chunks","filter":{"similarTo":"x"}}`)); err == nil {
		t.Error("expected error without an embedder")
	}
}

func TestRetrieve_Keyword(t *testing.T) {
	corpus := journalCorpus()
	corpus.keyword = map[string]float64{"c2": -18}
	r := newTestRetriever(corpus, nil)

	res, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"chunks","filter":{"keyword":"meeting"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Items[0].ID != "c2" {
		t.Errorf("keyword match should rank first, got %s", res.Items[0].ID)
	}
	kw := res.Items[0].Components.KeywordMatch
	if kw == nil || math.Abs(*kw-0.9) > 1e-9 {
		t.Errorf("keyword component = %v, want 0.9", kw)
	}
}

func TestRetrieve_EntriesDedupe(t *testing.T) {
	r := newTestRetriever(journalCorpus(), nil)

	res, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"entries","sort":"date_desc"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.Count != 2 {
		t.Fatalf("expected one item per entry, got %+v", res.Items)
	}
	if res.Items[0].ID != "c3" || res.Items[1].ID != "c2" {
		t.Errorf("expected first-seen chunk per entry in ranked order, got %s, %s", res.Items[0].ID, res.Items[1].ID)
	}
}

func notesCorpus() *fakeCorpus {
	return &fakeCorpus{notes: []store.Note{
		{ID: "n1", Kind: "insight", Content: "Runs lift mood", Tags: []string{"running", "mood"}, CreatedAt: day("2025-05-01")},
		{ID: "n2", Kind: "goal", Content: "Sleep by 11", Tags: []string{"sleep"}, CreatedAt: day("2025-06-01")},
		{ID: "n3", Kind: "fact", Content: "Allergic to cats", CreatedAt: day("2025-06-20")},
	}}
}

func TestRetrieve_Memory(t *testing.T) {
	ctx := context.Background()

	t.Run("by tags", func(t *testing.T) {
		corpus := notesCorpus()
		r := newTestRetriever(corpus, nil)
		res, err := r.Retrieve(ctx, mustParse(t, `{"scope":"memory","filter":{"topics":["MOOD"]}}`))
		if err != nil {
			t.Fatal(err)
		}
		r.Wait()
		if res.Metadata.Count != 1 || res.Items[0].ID != "n1" {
			t.Errorf("unexpected items: %+v", res.Items)
		}
		if res.Items[0].Provenance.Kind != "insight" {
			t.Errorf("kind not carried: %+v", res.Items[0].Provenance)
		}
		if len(corpus.touched) != 1 || corpus.touched[0] != "n1" {
			t.Errorf("access not recorded: %v", corpus.touched)
		}
	})

	t.Run("by date range", func(t *testing.T) {
		corpus := notesCorpus()
		r := newTestRetriever(corpus, nil)
		res, err := r.Retrieve(ctx, mustParse(t, `{"scope":"memory","sort":"date_asc","filter":{"dateFrom":"2025-05-15","dateTo":"2025-06-30"}}`))
		if err != nil {
			t.Fatal(err)
		}
		r.Wait()
		if res.Metadata.Count != 2 || res.Items[0].ID != "n2" {
			t.Errorf("expected ascending notes in range, got %+v", res.Items)
		}
		if corpus.calls[0] != "NotesByDateRange" {
			t.Errorf("calls = %v", corpus.calls)
		}
	})

	t.Run("most recent", func(t *testing.T) {
		corpus := notesCorpus()
		r := newTestRetriever(corpus, nil)
		res, err := r.Retrieve(ctx, mustParse(t, `{"scope":"memory","limit":2}`))
		if err != nil {
			t.Fatal(err)
		}
		r.Wait()
		if res.Metadata.Count != 2 || res.Items[0].ID != "n3" {
			t.Errorf("unexpected items: %+v", res.Items)
		}
	})

	t.Run("touch failure is swallowed", func(t *testing.T) {
		corpus := notesCorpus()
		corpus.touchErr = errors.New("database is locked")
		r := newTestRetriever(corpus, nil)
		res, err := r.Retrieve(ctx, mustParse(t, `{"scope":"memory"}`))
		r.Wait()
		if err != nil || res.Empty {
			t.Errorf("touch failure leaked: %v %+v", err, res)
		}
	})

	t.Run("none", func(t *testing.T) {
		r := newTestRetriever(&fakeCorpus{}, nil)
		res, err := r.Retrieve(ctx, mustParse(t, `{"scope":"memory"}`))
		if err != nil {
			t.Fatal(err)
		}
		if !res.Empty || res.Reason == "" {
			t.Errorf("expected explained empty result, got %+v", res)
		}
	})
}

func analyticsCorpus() *fakeCorpus {
	return &fakeCorpus{analytics: []store.AnalyticsRow{
		{ID: "d1", OccurredAt: day("2025-06-02"), Granularity: "day", Metrics: map[string]float64{"anxiety": 1, "sadness": 0, "anger": 0, "mood": 3}},
		{ID: "d2", OccurredAt: day("2025-06-03"), Granularity: "day", Metrics: map[string]float64{"anxiety": 0, "sadness": 2, "anger": 1, "mood": 5}},
		{ID: "d3", OccurredAt: day("2025-06-10"), Granularity: "day", Metrics: map[string]float64{"mood": 4}},
		{ID: "m1", OccurredAt: day("2025-06-01"), Granularity: "month", Summary: "June was busy"},
	}}
}

func TestRetrieve_AnalyticsStats(t *testing.T) {
	r := newTestRetriever(analyticsCorpus(), nil)

	res, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"analytics","view":"stats","filter":{"metric":"stress"}}`))
	if err != nil {
		t.Fatal(err)
	}
	st := res.Metadata.Stats
	if st == nil {
		t.Fatal("stats missing")
	}
	// d1: 50+20 = 70, d2: 50+30+10 = 90, d3 has no inputs.
	if st.Count != 2 || st.Min != 70 || st.Max != 90 || st.Mean != 80 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if len(res.Items) != 1 {
		t.Errorf("stats view returns one synthetic item, got %d", len(res.Items))
	}
}

func TestRetrieve_AnalyticsTimeline(t *testing.T) {
	r := newTestRetriever(analyticsCorpus(), nil)

	res, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"analytics","view":"timeline","filter":{"metric":"mood"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("got %d items", len(res.Items))
	}
	for i := 1; i < len(res.Items); i++ {
		if res.Items[i].Date.Before(res.Items[i-1].Date) {
			t.Error("timeline not chronological")
		}
	}
	// mood 3,5,4 normalizes to 0, 1, 0.5
	want := []float64{0, 1, 0.5}
	for i, it := range res.Items {
		if math.Abs(it.Score-want[i]) > 1e-9 {
			t.Errorf("item %d score = %v, want %v", i, it.Score, want[i])
		}
	}
}

func TestRetrieve_AnalyticsBuckets(t *testing.T) {
	r := newTestRetriever(analyticsCorpus(), nil)

	res, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"analytics","view":"stats","filter":{"metric":"mood","timeGranularity":"week"}}`))
	if err != nil {
		t.Fatal(err)
	}
	// Week of 2 June averages to 4, week of 9 June is 4.
	if st := res.Metadata.Stats; st.Count != 2 || st.Mean != 4 {
		t.Errorf("unexpected weekly stats: %+v", st)
	}
}

func TestRetrieve_Histogram(t *testing.T) {
	r := newTestRetriever(analyticsCorpus(), nil)
	res, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"analytics","view":"histogram"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Empty || res.Reason == "" {
		t.Errorf("histogram should be an explained empty result, got %+v", res)
	}
}

func TestRetrieve_Summaries(t *testing.T) {
	corpus := analyticsCorpus()
	r := newTestRetriever(corpus, nil)

	res, err := r.Retrieve(context.Background(), mustParse(t, `{"scope":"summaries","filter":{"timeGranularity":"month"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.Count != 1 || res.Items[0].Text != "June was busy" {
		t.Errorf("unexpected summaries: %+v", res.Items)
	}
	if corpus.calls[0] != "AnalyticsByDateRange:month" {
		t.Errorf("calls = %v", corpus.calls)
	}
}

func TestRetrieve_PeriodOverlapsRange(t *testing.T) {
	corpus := &fakeCorpus{analytics: []store.AnalyticsRow{
		{ID: "m3", OccurredAt: day("2025-03-01"), Granularity: "month", Summary: "March was hard"},
		{ID: "m5", OccurredAt: day("2025-05-01"), Granularity: "month", Summary: "May was calm"},
		{ID: "d1", OccurredAt: day("2025-03-03"), Granularity: "day", Metrics: map[string]float64{"mood": 2}},
		{ID: "d2", OccurredAt: day("2025-03-20"), Granularity: "day", Metrics: map[string]float64{"mood": 6}},
		{ID: "d3", OccurredAt: day("2025-04-02"), Granularity: "day", Metrics: map[string]float64{"mood": 5}},
	}}
	r := newTestRetriever(corpus, nil)
	ctx := context.Background()

	t.Run("summaries", func(t *testing.T) {
		res, err := r.Retrieve(ctx, mustParse(t, `{"scope":"summaries","filter":{"timeGranularity":"month","dateFrom":"2025-03-15","dateTo":"2025-04-10"}}`))
		if err != nil {
			t.Fatal(err)
		}
		if res.Empty || len(res.Items) != 1 || res.Items[0].Text != "March was hard" {
			t.Errorf("expected the March summary, got %+v", res)
		}
	})

	t.Run("monthly buckets", func(t *testing.T) {
		res, err := r.Retrieve(ctx, mustParse(t, `{"scope":"analytics","view":"timeline","filter":{"metric":"mood","timeGranularity":"month","dateFrom":"2025-03-15","dateTo":"2025-04-10"}}`))
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Items) != 2 {
			t.Fatalf("expected March and April buckets, got %+v", res.Items)
		}
		// March averages both of its days, not only the one after the 15th.
		if res.Items[0].Text != "mood=4.00" {
			t.Errorf("expected a whole-month March average, got %q", res.Items[0].Text)
		}
	})
}

func TestDerivedMetrics(t *testing.T) {
	if got := Stress(map[string]float64{"anxiety": 3, "sadness": 1, "anger": 1}); got != 100 {
		t.Errorf("stress should clamp to 100, got %v", got)
	}
	if got := Stress(map[string]float64{"anxiety": -5}); got != 0 {
		t.Errorf("stress should clamp to 0, got %v", got)
	}
	if got := Energy(map[string]float64{"arousal": 0.5, "joy": 1}); got != 80 {
		t.Errorf("energy = %v, want 80", got)
	}
}
