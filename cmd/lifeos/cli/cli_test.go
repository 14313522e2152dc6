package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/config"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/memory"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/observe"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/provider"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/runtime"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "lifeos.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SaveAnalytics(ctx, &store.AnalyticsRow{
		ID: "d1", OccurredAt: day, Granularity: "day", Metrics: map[string]float64{"mood": 7},
	}); err != nil {
		t.Fatal(err)
	}

	stub := provider.NewStubProvider(
		provider.Response{ToolCalls: []provider.ToolCall{{
			ID: "c1", Name: "retrieve", Arguments: json.RawMessage(`{"scope":"analytics"}`),
		}}},
		provider.Response{Content: "Your mood was 7 on March 1st."},
	)

	cfg := config.Default()
	r := NewRunner(cfg, observe.Discard(), s, stub)
	defer r.Close()

	ans, err := r.Ask(ctx, nil, "How was my mood in March?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if ans.Text != "Your mood was 7 on March 1st." {
		t.Errorf("unexpected answer %q", ans.Text)
	}
	if len(ans.Metadata.ToolsUsed) != 1 || ans.Metadata.ToolsUsed[0] != "retrieve" {
		t.Errorf("expected retrieve in tools used, got %v", ans.Metadata.ToolsUsed)
	}
	if ans.Metadata.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", ans.Metadata.Iterations)
	}

	reqs := stub.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 provider requests, got %d", len(reqs))
	}
	if len(reqs[0].Tools) != 3 {
		t.Errorf("expected 3 tools offered, got %d", len(reqs[0].Tools))
	}
}

func TestRunner_GuardPolicyFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Agent.MaxIterations = 4
	cfg.Tools.Denied = []string{"remember"}

	r := NewRunner(cfg, observe.Discard(), newTestStore(t), provider.NewStubProvider())
	p := r.Guard.Policy()
	if p.MaxIterations != 4 {
		t.Errorf("expected 4 iterations, got %d", p.MaxIterations)
	}
	if v := r.Guard.CheckTool("remember"); v == nil {
		t.Error("expected remember to be denied")
	}
	if !r.Registry.Has("analyze") {
		t.Error("expected analyze to be registered")
	}
}

func TestImport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conf := 0.6

	doc := &ImportDoc{
		Chunks: []ImportChunk{
			{ID: "c1", EntryID: "e1", Text: "Went hiking with Sam.", Date: "2024-03-01", Topics: []string{"outdoors"}},
			{ID: "c2", Text: "Long day at work.", Date: "2024-03-02T18:00:00Z", Embedding: []float32{1, 0}},
		},
		Analytics: []ImportAnalytics{
			{ID: "a1", Date: "2024-03-01", Granularity: "day", Metrics: map[string]float64{"mood": 8}},
		},
		Notes: []ImportNote{
			{ID: "n1", Kind: "preference", Content: " Likes hiking ", Confidence: &conf, CreatedAt: "2024-03-03"},
		},
	}

	stats, err := Import(ctx, s, provider.NewStubProvider(), observe.Discard(), doc)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	want := ImportStats{Chunks: 2, Embedded: 1, Analytics: 1, Notes: 1}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}

	chunks, err := s.ChunksByIDs(ctx, []string{"c1", "c2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		switch c.ID {
		case "c1":
			if len(c.Embedding) != provider.StubDimensions {
				t.Errorf("expected c1 embedded with %d dims, got %d", provider.StubDimensions, len(c.Embedding))
			}
		case "c2":
			if c.EntryID != "c2" {
				t.Errorf("expected entry id to default to chunk id, got %q", c.EntryID)
			}
			if len(c.Embedding) != 2 {
				t.Errorf("expected given embedding kept, got %v", c.Embedding)
			}
		}
	}

	notes, err := s.RecentNotes(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Content != "Likes hiking" || notes[0].Confidence != 0.6 {
		t.Errorf("unexpected notes %+v", notes)
	}
}

type noEmbed struct{}

func (noEmbed) Embed(context.Context, string) ([]float32, error) {
	return nil, provider.ErrEmbeddingsUnsupported
}

func TestImport_EmbeddingsUnsupported(t *testing.T) {
	doc := &ImportDoc{Chunks: []ImportChunk{
		{Text: "one", Date: "2024-01-01"},
		{Text: "two", Date: "2024-01-02"},
	}}
	stats, err := Import(context.Background(), newTestStore(t), noEmbed{}, observe.Discard(), doc)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if stats.Chunks != 2 || stats.Embedded != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestImport_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  ImportDoc
		want string
	}{
		{"bad chunk date", ImportDoc{Chunks: []ImportChunk{{Text: "x", Date: "March 1"}}}, "invalid date"},
		{"empty chunk", ImportDoc{Chunks: []ImportChunk{{Text: " ", Date: "2024-01-01"}}}, "empty text"},
		{"bad granularity", ImportDoc{Analytics: []ImportAnalytics{{Date: "2024-01-01", Granularity: "hour"}}}, "unknown granularity"},
		{"bad note kind", ImportDoc{Notes: []ImportNote{{Kind: "rumor", Content: "x"}}}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(context.Background(), newTestStore(t), nil, observe.Discard(), &tt.doc)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	_, err := Import(context.Background(), newTestStore(t), nil, observe.Discard(),
		&ImportDoc{Notes: []ImportNote{{Kind: "fact"}}})
	if !errors.Is(err, memory.ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-02-29")
	if err != nil || !d.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected %v, %v", d, err)
	}
	d, err = parseDate("2024-02-29T10:00:00+02:00")
	if err != nil || d.Hour() != 8 || d.Location() != time.UTC {
		t.Errorf("unexpected %v, %v", d, err)
	}
	if _, err := parseDate("29/02/2024"); err == nil {
		t.Error("expected error")
	}
}

func TestPrintAnswer(t *testing.T) {
	ans := &runtime.Answer{
		Text: "You slept better in spring.",
		Metadata: runtime.Metadata{
			Iterations: 3, Elapsed: 1500 * time.Millisecond, ToolsUsed: []string{"retrieve", "analyze"}, TokenEstimate: 420,
		},
	}

	var buf bytes.Buffer
	if err := printAnswer(&buf, ans); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"You slept better in spring.", "3 iterations", "retrieve, analyze", "~420 tokens"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCLI_Root(t *testing.T) {
	want := map[string]bool{"ask": false, "config": false, "import": false, "mcp": false, "tools": false}
	for _, cmd := range RootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s command not registered", name)
		}
	}
}

// execute runs the root command against a config file in a temp dir.
func execute(t *testing.T, cfgFile string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(io.Discard)
	RootCmd.SetArgs(append([]string{"--config", cfgFile}, args...))
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	return out.String()
}

func testConfigFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfg := config.Default()
	cfg.Provider.Name = "stub"
	cfg.Store.Path = filepath.Join(dir, "lifeos.db")
	path := filepath.Join(dir, "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLI_Config(t *testing.T) {
	cfgFile := testConfigFile(t)

	if out := execute(t, cfgFile, "config", "get", "openai.api_key"); strings.TrimSpace(out) != "(not set)" {
		t.Errorf("expected (not set), got %q", out)
	}

	execute(t, cfgFile, "config", "set", "openai.api_key", "sk-test-1234567890")
	if out := execute(t, cfgFile, "config", "get", "openai.api_key"); strings.TrimSpace(out) != "sk-t...7890" {
		t.Errorf("expected masked key, got %q", out)
	}

	execute(t, cfgFile, "config", "set", "ui.theme", "dark")
	if out := execute(t, cfgFile, "config", "get", "ui.theme"); strings.TrimSpace(out) != "dark" {
		t.Errorf("expected dark, got %q", out)
	}
}

func TestCLI_Tools(t *testing.T) {
	out := execute(t, testConfigFile(t), "tools")

	var schemas []provider.ToolSchema
	if err := json.Unmarshal([]byte(out), &schemas); err != nil {
		t.Fatalf("expected JSON schemas, got %q: %v", out, err)
	}
	if len(schemas) != 3 || schemas[0].Name != "analyze" {
		t.Errorf("unexpected schemas %+v", schemas)
	}
}
