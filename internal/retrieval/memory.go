package retrieval

import (
	"context"
	"sort"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/rank"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

func (r *Retriever) retrieveMemory(ctx context.Context, q Query) (*Result, error) {
	var (
		notes []store.Note
		err   error
	)
	switch {
	case len(q.Filter.Topics) > 0:
		notes, err = r.corpus.NotesByTagOverlap(ctx, q.Filter.Topics, q.Limit)
	case !q.Filter.DateFrom.IsZero() && !q.Filter.DateTo.IsZero():
		notes, err = r.corpus.NotesByDateRange(ctx, q.Range(), q.Limit)
	default:
		notes, err = r.corpus.RecentNotes(ctx, q.Limit)
	}
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return emptyResult("no saved memories matched the tags or date range"), nil
	}

	ascending := q.Sort == rank.SortDateAsc
	sort.SliceStable(notes, func(i, j int) bool {
		if ascending {
			return notes[i].CreatedAt.Before(notes[j].CreatedAt)
		}
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	if len(notes) > q.Limit {
		notes = notes[:q.Limit]
	}

	now := r.now()
	items := make([]rank.Item, 0, len(notes))
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		decay := rank.RecencyDecay(rank.AgeDays(n.CreatedAt, now), q.Filter.RecencyHalfLife)
		items = append(items, rank.Item{
			ID:         n.ID,
			Date:       n.CreatedAt,
			Text:       n.Content,
			Score:      decay,
			Components: rank.Components{RecencyDecay: decay},
			Provenance: rank.Provenance{Scope: string(ScopeMemory), Kind: n.Kind},
		})
		ids = append(ids, n.ID)
	}

	r.touchLater(ctx, ids)
	return newResult(q, "", items, len(notes)), nil
}

// touchLater records access to notes without holding up the caller. Failures
// are logged and counted.
func (r *Retriever) touchLater(ctx context.Context, ids []string) {
	at := r.now()
	bg := context.WithoutCancel(ctx)

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()

		tctx, cancel := context.WithTimeout(bg, touchTimeout)
		defer cancel()

		if err := r.corpus.TouchNotes(tctx, ids, at); err != nil {
			r.obs.Metrics().TouchFailures.Add(tctx, 1)
			r.obs.Log().Warn().Err(err).Int("notes", len(ids)).Msg("failed to record memory access")
		}
	}()
}
