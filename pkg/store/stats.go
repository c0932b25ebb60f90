package store

import (
	"context"
	"fmt"
	"time"
)

// DBStats holds aggregated statistics for the whole store.
type DBStats struct {
	Templates int                    `json:"templates"` // Number of stored templates
	Revisions int                    `json:"revisions"` // Number of revisions across all templates
	Renders   map[string]RenderStats `json:"renders"`   // Render statistics keyed by template name
}

// RenderStats holds the render counters of a single template.
type RenderStats struct {
	Renders       int           `json:"renders"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	LastRender    time.Time     `json:"last_render"`
}

// AverageDuration returns the mean render time, or zero before the first
// render.
func (rs RenderStats) AverageDuration() time.Duration {
	if rs.Renders == 0 {
		return 0
	}
	return rs.TotalDuration / time.Duration(rs.Renders)
}

// RecordRender adds one render of the named template to its statistics.
// failed marks renders that returned an error.
func (s *Store) RecordRender(ctx context.Context, name string, took time.Duration, failed bool) error {
	failures := 0
	if failed {
		failures = 1
	}
	res, err := s.stmtRecordRender.ExecContext(ctx, failures, took.Nanoseconds(), s.now().UnixNano(), name)
	if err != nil {
		return fmt.Errorf("could not record render of %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// GetStats returns a snapshot of statistics for the entire store.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{Renders: make(map[string]RenderStats)}
	if err := s.stmtCounts.QueryRowContext(ctx).Scan(&stats.Templates, &stats.Revisions); err != nil {
		return nil, err
	}

	rows, err := s.stmtRenderStats.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			name        string
			rs          RenderStats
			totalNs     int64
			lastRenders int64
		)
		if err = rows.Scan(&name, &rs.Renders, &rs.Failures, &totalNs, &lastRenders); err != nil {
			return nil, err
		}
		rs.TotalDuration = time.Duration(totalNs)
		rs.LastRender = time.Unix(0, lastRenders).UTC()
		stats.Renders[name] = rs
	}
	return stats, rows.Err()
}
