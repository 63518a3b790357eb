package storage

import (
	"context"
	"fmt"
)

// DailyStats represents statistics for a single day
type DailyStats struct {
	Date         string `json:"date"`
	Total        int    `json:"total"`
	SuccessCount int    `json:"successCount"`
	FailureCount int    `json:"failureCount"`
	InputChars   int64  `json:"inputChars"`
}

// ProviderStats represents statistics grouped by provider and model
type ProviderStats struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	Total          int     `json:"total"`
	SuccessCount   int     `json:"successCount"`
	FailureCount   int     `json:"failureCount"`
	AvgTransformMs float64 `json:"avgTransformMs"`
}

// FailureStats counts failures of one kind
type FailureStats struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// OverallStats represents overall statistics
type OverallStats struct {
	Total             int     `json:"total"`
	SuccessCount      int     `json:"successCount"`
	FailureCount      int     `json:"failureCount"`
	ReplaceCount      int     `json:"replaceCount"`
	DisplayCount      int     `json:"displayCount"`
	TotalInputChars   int64   `json:"totalInputChars"`
	TotalOutputChars  int64   `json:"totalOutputChars"`
	AvgCaptureMs      float64 `json:"avgCaptureMs"`
	AvgTransformMs    float64 `json:"avgTransformMs"`
	AvgApplyMs        float64 `json:"avgApplyMs"`
	AvgTotalLatencyMs float64 `json:"avgTotalLatencyMs"`
}

// GetDailyStats retrieves statistics grouped by date for the last N days
func (db *DB) GetDailyStats(ctx context.Context, days int) ([]DailyStats, error) {
	query := `
		SELECT
			DATE(timestamp) as date,
			COUNT(*) as total,
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) as success_count,
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END) as failure_count,
			COALESCE(SUM(input_chars), 0) as input_chars
		FROM invocations
		WHERE timestamp >= datetime('now', '-' || ? || ' days')
		GROUP BY DATE(timestamp)
		ORDER BY date DESC
	`

	rows, err := db.conn.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	stats := []DailyStats{}
	for rows.Next() {
		var s DailyStats
		if err := rows.Scan(&s.Date, &s.Total, &s.SuccessCount, &s.FailureCount, &s.InputChars); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetProviderStats retrieves statistics grouped by provider and model for the last N days
func (db *DB) GetProviderStats(ctx context.Context, days int) ([]ProviderStats, error) {
	query := `
		SELECT
			provider,
			model,
			COUNT(*) as total,
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) as success_count,
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END) as failure_count,
			COALESCE(AVG(transform_ms), 0) as avg_transform_ms
		FROM invocations
		WHERE timestamp >= datetime('now', '-' || ? || ' days')
			AND provider != ''
		GROUP BY provider, model
		ORDER BY total DESC
	`

	rows, err := db.conn.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider stats: %w", err)
	}
	defer rows.Close()

	stats := []ProviderStats{}
	for rows.Next() {
		var s ProviderStats
		err := rows.Scan(&s.Provider, &s.Model, &s.Total, &s.SuccessCount, &s.FailureCount, &s.AvgTransformMs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetFailureStats counts failures by kind for the last N days
func (db *DB) GetFailureStats(ctx context.Context, days int) ([]FailureStats, error) {
	query := `
		SELECT error_kind, COUNT(*) as count
		FROM invocations
		WHERE success = 0
			AND error_kind IS NOT NULL
			AND timestamp >= datetime('now', '-' || ? || ' days')
		GROUP BY error_kind
		ORDER BY count DESC, error_kind
	`

	rows, err := db.conn.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query failure stats: %w", err)
	}
	defer rows.Close()

	stats := []FailureStats{}
	for rows.Next() {
		var s FailureStats
		if err := rows.Scan(&s.Kind, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan failure stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetOverallStats retrieves overall statistics for the last N days
func (db *DB) GetOverallStats(ctx context.Context, days int) (*OverallStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0) as success_count,
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0) as failure_count,
			COALESCE(SUM(CASE WHEN mode = 'replace' THEN 1 ELSE 0 END), 0) as replace_count,
			COALESCE(SUM(CASE WHEN mode = 'display' THEN 1 ELSE 0 END), 0) as display_count,
			COALESCE(SUM(input_chars), 0) as total_input_chars,
			COALESCE(SUM(output_chars), 0) as total_output_chars,
			COALESCE(AVG(capture_ms), 0) as avg_capture_ms,
			COALESCE(AVG(transform_ms), 0) as avg_transform_ms,
			COALESCE(AVG(apply_ms), 0) as avg_apply_ms,
			COALESCE(AVG(total_ms), 0) as avg_total_latency_ms
		FROM invocations
		WHERE timestamp >= datetime('now', '-' || ? || ' days')
	`

	var stats OverallStats
	err := db.conn.QueryRowContext(ctx, query, days).Scan(
		&stats.Total,
		&stats.SuccessCount,
		&stats.FailureCount,
		&stats.ReplaceCount,
		&stats.DisplayCount,
		&stats.TotalInputChars,
		&stats.TotalOutputChars,
		&stats.AvgCaptureMs,
		&stats.AvgTransformMs,
		&stats.AvgApplyMs,
		&stats.AvgTotalLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query overall stats: %w", err)
	}

	return &stats, nil
}
