package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const noteColumns = `id, kind, content, tags, related_ids, confidence, created_at, last_accessed_at, access_count`

// SaveNote inserts a new note.
func (s *SQLiteStore) SaveNote(ctx context.Context, n *Note) error {
	tags, err := json.Marshal(nonNil(n.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	related, err := json.Marshal(nonNil(n.RelatedIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal related ids: %w", err)
	}

	var lastAccessed sql.NullInt64
	if !n.LastAccessedAt.IsZero() {
		lastAccessed = sql.NullInt64{Int64: toMillis(n.LastAccessedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Kind, n.Content, string(tags), string(related), n.Confidence,
		toMillis(n.CreatedAt), lastAccessed, n.AccessCount)
	if err != nil {
		return fmt.Errorf("failed to save note %s: %w", n.ID, err)
	}
	return nil
}

// NotesByTagOverlap returns notes sharing at least one tag (case-insensitive),
// newest first.
func (s *SQLiteStore) NotesByTagOverlap(ctx context.Context, tags []string, limit int) ([]Note, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(tags)+1)
	for _, t := range tags {
		args = append(args, strings.ToLower(t))
	}
	args = append(args, limit)

	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE lower(json_each.value) IN (` + placeholders(len(tags)) + `))
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	return s.queryNotes(ctx, query, args...)
}

// NotesByDateRange returns notes created in r, newest first.
func (s *SQLiteStore) NotesByDateRange(ctx context.Context, r TimeRange, limit int) ([]Note, error) {
	where, args := rangeClause("created_at", r, nil, nil)
	args = append(args, limit)
	query := `SELECT ` + noteColumns + ` FROM notes` + whereSQL(where) + ` ORDER BY created_at DESC, id DESC LIMIT ?`
	return s.queryNotes(ctx, query, args...)
}

// RecentNotes returns the newest notes.
func (s *SQLiteStore) RecentNotes(ctx context.Context, limit int) ([]Note, error) {
	return s.NotesByDateRange(ctx, TimeRange{}, limit)
}

// TouchNotes records an access of each note.
func (s *SQLiteStore) TouchNotes(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{toMillis(at)}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE notes SET last_accessed_at = ?, access_count = access_count + 1 WHERE id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to touch notes: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryNotes(ctx context.Context, query string, args ...any) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var (
			n             Note
			tags, related string
			created       int64
			lastAccessed  sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.Kind, &n.Content, &tags, &related, &n.Confidence, &created, &lastAccessed, &n.AccessCount); err != nil {
			return nil, err
		}
		n.CreatedAt = fromMillis(created)
		if lastAccessed.Valid {
			n.LastAccessedAt = fromMillis(lastAccessed.Int64)
		}
		if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
			return nil, fmt.Errorf("note %s tags: %w", n.ID, err)
		}
		if err := json.Unmarshal([]byte(related), &n.RelatedIDs); err != nil {
			return nil, fmt.Errorf("note %s related ids: %w", n.ID, err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
