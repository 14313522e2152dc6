package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// SaveAnalytics inserts or replaces a metrics row.
func (s *SQLiteStore) SaveAnalytics(ctx context.Context, row *AnalyticsRow) error {
	metrics := row.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}
	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO analytics (id, occurred_at, granularity, summary, metrics) VALUES (?, ?, ?, ?, ?)`,
		row.ID, toMillis(row.OccurredAt), row.Granularity, row.Summary, string(data))
	if err != nil {
		return fmt.Errorf("failed to save analytics %s: %w", row.ID, err)
	}
	return nil
}

// AnalyticsByDateRange returns rows of one granularity in r, oldest first.
func (s *SQLiteStore) AnalyticsByDateRange(ctx context.Context, granularity string, r TimeRange) ([]AnalyticsRow, error) {
	where, args := rangeClause("occurred_at", r, []string{"granularity = ?"}, []any{granularity})
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, occurred_at, granularity, summary, metrics FROM analytics`+whereSQL(where)+` ORDER BY occurred_at, id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalyticsRow
	for rows.Next() {
		var (
			row      AnalyticsRow
			occurred int64
			metrics  string
		)
		if err := rows.Scan(&row.ID, &occurred, &row.Granularity, &row.Summary, &metrics); err != nil {
			return nil, err
		}
		row.OccurredAt = fromMillis(occurred)
		if err := json.Unmarshal([]byte(metrics), &row.Metrics); err != nil {
			return nil, fmt.Errorf("analytics %s metrics: %w", row.ID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
