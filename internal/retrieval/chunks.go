package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/rank"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

func (r *Retriever) retrieveChunks(ctx context.Context, q Query) (*Result, error) {
	var (
		chunks []store.Chunk
		err    error
	)
	if len(q.Filter.IDs) > 0 {
		chunks, err = r.corpus.ChunksByIDs(ctx, q.Filter.IDs)
	} else {
		chunks, err = r.corpus.ChunksByDateRange(ctx, q.Range())
	}
	if err != nil {
		return nil, err
	}

	chunks = filterChunks(chunks, q.Filter)
	if len(chunks) == 0 {
		return emptyResult("no chunks matched the date range and filters"), nil
	}

	keyword, err := r.keywordScores(ctx, q.Filter.Keyword)
	if err != nil {
		return nil, err
	}
	embedding, err := r.queryEmbedding(ctx, q)
	if err != nil {
		return nil, err
	}

	candidates := make([]rank.Candidate, 0, len(chunks))
	for _, c := range chunks {
		cand := rank.Candidate{
			ID:         c.ID,
			Timestamp:  c.OccurredAt,
			Text:       c.Text,
			Embedding:  c.Embedding,
			Provenance: rank.Provenance{Scope: string(q.Scope), EntryID: c.EntryID},
		}
		if keyword != nil {
			// Chunks the index did not return score 0 rather than absent.
			raw := keyword[c.ID]
			cand.Keyword = &raw
		}
		candidates = append(candidates, cand)
	}

	profile := rank.SelectProfile(q.Shape())
	opts := r.rankOptions(q, profile, embedding)

	var items []rank.Item
	if q.Scope == ScopeEntries {
		opts.Limit = 0
		items = firstPerEntry(r.ranker.Rank(candidates, opts))
		if len(items) > q.Limit {
			items = items[:q.Limit]
		}
	} else {
		items = r.ranker.Rank(candidates, opts)
	}

	if len(items) == 0 {
		return emptyResult(fmt.Sprintf("no chunks reached the similarity threshold %.2f", q.Filter.MinSimilarity)), nil
	}
	return newResult(q, profile.Name, items, len(candidates)), nil
}

// keywordScores maps chunk ids to raw bm25 scores. It returns nil when no
// keyword was given.
func (r *Retriever) keywordScores(ctx context.Context, keyword string) (map[string]float64, error) {
	if keyword == "" {
		return nil, nil
	}
	hits, err := r.corpus.KeywordSearch(ctx, keyword, keywordFetchLimit)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		scores[h.ChunkID] = h.Score
	}
	return scores, nil
}

func filterChunks(chunks []store.Chunk, f Filter) []store.Chunk {
	if len(f.Entities) == 0 && len(f.Topics) == 0 && f.Sentiment == "" {
		return chunks
	}
	out := chunks[:0:0]
	for _, c := range chunks {
		if len(f.Entities) > 0 && !anyContains(c.Entities, f.Entities) {
			continue
		}
		if len(f.Topics) > 0 && !anyContains(c.Topics, f.Topics) {
			continue
		}
		if f.Sentiment != "" && !strings.EqualFold(c.Sentiment, f.Sentiment) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// anyContains reports whether any value contains any needle, ignoring case.
func anyContains(values, needles []string) bool {
	for _, v := range values {
		lv := strings.ToLower(v)
		for _, n := range needles {
			if strings.Contains(lv, strings.ToLower(n)) {
				return true
			}
		}
	}
	return false
}

// firstPerEntry keeps the first item seen for each source entry.
func firstPerEntry(items []rank.Item) []rank.Item {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, it := range items {
		key := it.Provenance.EntryID
		if key == "" {
			key = it.ID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}
