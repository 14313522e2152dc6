package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

const chunkColumns = `id, entry_id, text, embedding, occurred_at, entities, topics, sentiment`

// SaveChunk inserts or replaces a chunk and its full-text row.
func (s *SQLiteStore) SaveChunk(ctx context.Context, c *Chunk) error {
	vec, err := encodeVector(c.Embedding)
	if err != nil {
		return err
	}
	entities, err := json.Marshal(nonNil(c.Entities))
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}
	topics, err := json.Marshal(nonNil(c.Topics))
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.EntryID, c.Text, vec, toMillis(c.OccurredAt), string(entities), string(topics), c.Sentiment,
	); err != nil {
		return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`, c.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chunks_fts (chunk_id, text) VALUES (?, ?)`, c.ID, c.Text); err != nil {
		return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
	}
	return tx.Commit()
}

// ChunksByDateRange returns chunks in r, oldest first.
func (s *SQLiteStore) ChunksByDateRange(ctx context.Context, r TimeRange) ([]Chunk, error) {
	where, args := rangeClause("occurred_at", r, nil, nil)
	query := `SELECT ` + chunkColumns + ` FROM chunks` + whereSQL(where) + ` ORDER BY occurred_at, id`
	return s.queryChunks(ctx, query, args...)
}

// ChunksByIDs returns the chunks with the given ids, oldest first. Unknown
// ids are skipped.
func (s *SQLiteStore) ChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY occurred_at, id`
	return s.queryChunks(ctx, query, args...)
}

func (s *SQLiteStore) queryChunks(ctx context.Context, query string, args ...any) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c                Chunk
			vec              []byte
			occurred         int64
			entities, topics string
		)
		if err := rows.Scan(&c.ID, &c.EntryID, &c.Text, &vec, &occurred, &entities, &topics, &c.Sentiment); err != nil {
			return nil, err
		}
		c.OccurredAt = fromMillis(occurred)
		if c.Embedding, err = decodeVector(vec); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(entities), &c.Entities); err != nil {
			return nil, fmt.Errorf("chunk %s entities: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(topics), &c.Topics); err != nil {
			return nil, fmt.Errorf("chunk %s topics: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// KeywordSearch runs a full-text query over chunk text. Scores are raw bm25
// values, more negative for better matches.
func (s *SQLiteStore) KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var h KeywordHit
		if err := rows.Scan(&h.ChunkID, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ftsQuery quotes every term so user input cannot inject FTS5 syntax. Terms
// are OR-ed together.
func ftsQuery(q string) string {
	var terms []string
	for _, f := range strings.Fields(q) {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}

func encodeVector(v []float32) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob has %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &v); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return v, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
