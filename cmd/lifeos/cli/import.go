package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/memory"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/observe"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/provider"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/retrieval"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

// ImportDoc is the file format accepted by the import command.
type ImportDoc struct {
	Chunks    []ImportChunk     `json:"chunks"`
	Analytics []ImportAnalytics `json:"analytics"`
	Notes     []ImportNote      `json:"notes"`
}

type ImportChunk struct {
	ID        string    `json:"id"`
	EntryID   string    `json:"entryId"`
	Text      string    `json:"text"`
	Date      string    `json:"date"`
	Embedding []float32 `json:"embedding,omitempty"`
	Entities  []string  `json:"entities,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	Sentiment string    `json:"sentiment,omitempty"`
}

type ImportAnalytics struct {
	ID          string             `json:"id"`
	Date        string             `json:"date"`
	Granularity string             `json:"granularity"`
	Summary     string             `json:"summary,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

type ImportNote struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	RelatedIDs []string `json:"relatedIds,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	CreatedAt  string   `json:"createdAt,omitempty"`
}

// ImportStats counts what an import saved.
type ImportStats struct {
	Chunks    int `json:"chunks"`
	Embedded  int `json:"embedded"`
	Analytics int `json:"analytics"`
	Notes     int `json:"notes"`
}

var importCmd = &cobra.Command{
	Use:   "import [file.json]",
	Short: "Import journal chunks, analytics rows and notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var doc ImportDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}

		r, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := Import(cmd.Context(), r.Store, r.Provider, r.Observer, &doc)
		if err != nil {
			return err
		}
		if ciMode {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d chunks (%d embedded), %d analytics rows, %d notes\n",
			stats.Chunks, stats.Embedded, stats.Analytics, stats.Notes)
		return nil
	},
}

// Import saves doc into s. Chunks without an embedding are embedded with e;
// if e cannot embed, they are stored without one and only keyword search
// will find them.
func Import(ctx context.Context, s store.Storage, e retrieval.Embedder, o *observe.Observer, doc *ImportDoc) (ImportStats, error) {
	var stats ImportStats

	canEmbed := e != nil
	for i, ic := range doc.Chunks {
		at, err := parseDate(ic.Date)
		if err != nil {
			return stats, fmt.Errorf("chunk %d: %w", i, err)
		}
		if strings.TrimSpace(ic.Text) == "" {
			return stats, fmt.Errorf("chunk %d: empty text", i)
		}
		c := &store.Chunk{
			ID:         orNewID(ic.ID),
			EntryID:    ic.EntryID,
			Text:       ic.Text,
			Embedding:  ic.Embedding,
			OccurredAt: at,
			Entities:   ic.Entities,
			Topics:     ic.Topics,
			Sentiment:  ic.Sentiment,
		}
		if c.EntryID == "" {
			c.EntryID = c.ID
		}
		if len(c.Embedding) == 0 && canEmbed {
			vec, err := e.Embed(ctx, c.Text)
			switch {
			case errors.Is(err, provider.ErrEmbeddingsUnsupported):
				o.Log().Warn().Msg("provider cannot embed, chunks will only match keyword search")
				canEmbed = false
			case err != nil:
				return stats, fmt.Errorf("embed chunk %s: %w", c.ID, err)
			default:
				c.Embedding = vec
				stats.Embedded++
			}
		}
		if err := s.SaveChunk(ctx, c); err != nil {
			return stats, err
		}
		stats.Chunks++
	}

	for i, ia := range doc.Analytics {
		at, err := parseDate(ia.Date)
		if err != nil {
			return stats, fmt.Errorf("analytics %d: %w", i, err)
		}
		switch ia.Granularity {
		case string(retrieval.GranularityDay), string(retrieval.GranularityMonth), string(retrieval.GranularityYear):
		default:
			return stats, fmt.Errorf("analytics %d: unknown granularity %q", i, ia.Granularity)
		}
		row := &store.AnalyticsRow{
			ID:          orNewID(ia.ID),
			OccurredAt:  at,
			Granularity: ia.Granularity,
			Summary:     ia.Summary,
			Metrics:     ia.Metrics,
		}
		if err := s.SaveAnalytics(ctx, row); err != nil {
			return stats, err
		}
		stats.Analytics++
	}

	for i, in := range doc.Notes {
		req := memory.WriteRequest{
			Kind:       in.Kind,
			Content:    in.Content,
			Tags:       in.Tags,
			RelatedIDs: in.RelatedIDs,
			Confidence: in.Confidence,
		}
		if err := req.Validate(); err != nil {
			return stats, fmt.Errorf("note %d: %w", i, err)
		}
		created := time.Now().UTC()
		if in.CreatedAt != "" {
			t, err := parseDate(in.CreatedAt)
			if err != nil {
				return stats, fmt.Errorf("note %d: %w", i, err)
			}
			created = t
		}
		confidence := memory.DefaultConfidence
		if in.Confidence != nil {
			confidence = *in.Confidence
		}
		n := &store.Note{
			ID:         orNewID(in.ID),
			Kind:       in.Kind,
			Content:    strings.TrimSpace(in.Content),
			Tags:       in.Tags,
			RelatedIDs: in.RelatedIDs,
			Confidence: confidence,
			CreatedAt:  created,
		}
		if err := s.SaveNote(ctx, n); err != nil {
			return stats, err
		}
		stats.Notes++
	}

	o.Log().Info().Int("chunks", stats.Chunks).Int("analytics", stats.Analytics).Int("notes", stats.Notes).Msg("import finished")
	return stats, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD or RFC3339", s)
	}
	return t.UTC(), nil
}

func orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func init() {
	RootCmd.AddCommand(importCmd)
}
