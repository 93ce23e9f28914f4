package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/arxiv-crawler/internal/crawler"
)

// ProgressStore persists the crawl cursor and per-unit completion records.
// The cursor lives in a single-row table keyed by a constant id so that
// concurrent schedulers cannot fork the crawl position.
type ProgressStore struct {
	pool querier
}

// NewProgressStore connects a ProgressStore to Postgres.
func NewProgressStore(ctx context.Context, cfg PoolConfig) (*ProgressStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ProgressStore{pool: pool}, nil
}

// NewProgressStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewProgressStoreWithPool(pool querier) (*ProgressStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ProgressStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ProgressStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// LoadCursor returns the singleton cursor or crawler.ErrNotFound before the
// first run.
func (s *ProgressStore) LoadCursor(ctx context.Context) (crawler.Cursor, error) {
	query := `
		SELECT current_date_utc, category_index, categories, is_active,
		       total_found, total_stored, last_activity_at, created_at, updated_at
		FROM crawl_cursor
		WHERE id = 1;
	`
	var c crawler.Cursor
	err := s.pool.QueryRow(ctx, query).Scan(
		&c.CurrentDate,
		&c.CategoryIndex,
		&c.Categories,
		&c.Active,
		&c.TotalFound,
		&c.TotalStored,
		&c.LastActivityAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Cursor{}, crawler.ErrNotFound
		}
		return crawler.Cursor{}, fmt.Errorf("load cursor: %w", err)
	}
	return c, nil
}

// SaveCursor writes the singleton cursor, creating it on first save.
func (s *ProgressStore) SaveCursor(ctx context.Context, cursor crawler.Cursor) error {
	query := `
		INSERT INTO crawl_cursor (
			id, current_date_utc, category_index, categories, is_active,
			total_found, total_stored, last_activity_at, created_at, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET current_date_utc = EXCLUDED.current_date_utc,
		    category_index = EXCLUDED.category_index,
		    categories = EXCLUDED.categories,
		    is_active = EXCLUDED.is_active,
		    total_found = EXCLUDED.total_found,
		    total_stored = EXCLUDED.total_stored,
		    last_activity_at = EXCLUDED.last_activity_at,
		    updated_at = EXCLUDED.updated_at;
	`
	_, err := s.pool.Exec(ctx, query,
		cursor.CurrentDate,
		cursor.CategoryIndex,
		cursor.Categories,
		cursor.Active,
		cursor.TotalFound,
		cursor.TotalStored,
		cursor.LastActivityAt,
		cursor.CreatedAt,
		cursor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// GetUnit loads progress for one (category, date) pair or returns
// crawler.ErrNotFound.
func (s *ProgressStore) GetUnit(ctx context.Context, category string, date time.Time) (crawler.UnitProgress, error) {
	query := `
		SELECT category, date_utc, completed, papers_found, papers_stored,
		       error_message, started_at, completed_at
		FROM unit_progress
		WHERE category = $1 AND date_utc = $2;
	`
	var up crawler.UnitProgress
	err := s.pool.QueryRow(ctx, query, category, crawler.Day(date)).Scan(
		&up.Category,
		&up.Date,
		&up.Completed,
		&up.PapersFound,
		&up.PapersStored,
		&up.ErrorMessage,
		&up.StartedAt,
		&up.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.UnitProgress{}, crawler.ErrNotFound
		}
		return crawler.UnitProgress{}, fmt.Errorf("get unit progress: %w", err)
	}
	return up, nil
}

// StartUnit records the first attempt of a unit; re-running an already
// attempted unit leaves the original row intact.
func (s *ProgressStore) StartUnit(ctx context.Context, category string, date time.Time, startedAt time.Time) error {
	query := `
		INSERT INTO unit_progress (category, date_utc, completed, started_at)
		VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (category, date_utc) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, query, category, crawler.Day(date), startedAt)
	if err != nil {
		return fmt.Errorf("start unit: %w", err)
	}
	return nil
}

// CompleteUnit marks a unit finished with its counts and optional error.
func (s *ProgressStore) CompleteUnit(ctx context.Context, progress crawler.UnitProgress) error {
	query := `
		INSERT INTO unit_progress (
			category, date_utc, completed, papers_found, papers_stored,
			error_message, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (category, date_utc) DO UPDATE
		SET completed = EXCLUDED.completed,
		    papers_found = EXCLUDED.papers_found,
		    papers_stored = EXCLUDED.papers_stored,
		    error_message = EXCLUDED.error_message,
		    completed_at = EXCLUDED.completed_at;
	`
	_, err := s.pool.Exec(ctx, query,
		progress.Category,
		crawler.Day(progress.Date),
		progress.Completed,
		progress.PapersFound,
		progress.PapersStored,
		progress.ErrorMessage,
		progress.StartedAt,
		progress.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("complete unit: %w", err)
	}
	return nil
}

// CountUnits tallies completed units, splitting out the ones that finished
// with a recorded error.
func (s *ProgressStore) CountUnits(ctx context.Context) (crawler.UnitCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE completed AND error_message = ''),
			COUNT(*) FILTER (WHERE completed AND error_message <> '')
		FROM unit_progress;
	`
	var counts crawler.UnitCounts
	if err := s.pool.QueryRow(ctx, query).Scan(&counts.Completed, &counts.Failed); err != nil {
		return crawler.UnitCounts{}, fmt.Errorf("count units: %w", err)
	}
	return counts, nil
}
