// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/arxiv-crawler/internal/crawler"
)

const pgUniqueViolation = "23505"

// querier is the slice of pgxpool.Pool the stores need; pgxmock satisfies it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool builds a pgx pool from cfg.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// PaperStore persists papers and the failed-paper quarantine.
type PaperStore struct {
	pool querier
}

// NewPaperStore connects a PaperStore to Postgres.
func NewPaperStore(ctx context.Context, cfg PoolConfig) (*PaperStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PaperStore{pool: pool}, nil
}

// NewPaperStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewPaperStoreWithPool(pool querier) (*PaperStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PaperStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PaperStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetByArxivID loads one paper or returns crawler.ErrNotFound.
func (s *PaperStore) GetByArxivID(ctx context.Context, arxivID string) (crawler.Paper, error) {
	query := `
		SELECT arxiv_id, title, abstract, authors, primary_category, categories,
		       abs_url, pdf_url, published_at, updated_at
		FROM papers
		WHERE arxiv_id = $1;
	`
	var p crawler.Paper
	err := s.pool.QueryRow(ctx, query, arxivID).Scan(
		&p.ArxivID,
		&p.Title,
		&p.Abstract,
		&p.Authors,
		&p.PrimaryCategory,
		&p.Categories,
		&p.AbsURL,
		&p.PDFURL,
		&p.PublishedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Paper{}, crawler.ErrNotFound
		}
		return crawler.Paper{}, fmt.Errorf("get paper: %w", err)
	}
	return p, nil
}

// Insert stores a new paper, returning crawler.ErrDuplicate when the arXiv ID
// already exists.
func (s *PaperStore) Insert(ctx context.Context, paper crawler.Paper) error {
	query := `
		INSERT INTO papers (
			arxiv_id, title, abstract, authors, primary_category, categories,
			abs_url, pdf_url, published_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);
	`
	_, err := s.pool.Exec(ctx, query,
		paper.ArxivID,
		paper.Title,
		paper.Abstract,
		paper.Authors,
		paper.PrimaryCategory,
		paper.Categories,
		paper.AbsURL,
		paper.PDFURL,
		paper.PublishedAt,
		paper.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return crawler.ErrDuplicate
		}
		return fmt.Errorf("insert paper: %w", err)
	}
	return nil
}

// UpsertFailed records or refreshes a quarantine entry. New rows start with
// retry_count 0; repeats bump the count and overwrite the error message.
func (s *PaperStore) UpsertFailed(ctx context.Context, failed crawler.FailedPaper) error {
	query := `
		INSERT INTO failed_papers (arxiv_id, category, error_message, retry_count, last_retry_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (arxiv_id) DO UPDATE
		SET error_message = EXCLUDED.error_message,
		    retry_count = failed_papers.retry_count + 1,
		    last_retry_at = EXCLUDED.last_retry_at;
	`
	_, err := s.pool.Exec(ctx, query,
		failed.ArxivID,
		failed.Category,
		failed.ErrorMessage,
		failed.LastRetryAt,
	)
	if err != nil {
		return fmt.Errorf("upsert failed paper: %w", err)
	}
	return nil
}

// List returns papers for one category (or all when category is empty),
// newest first.
func (s *PaperStore) List(ctx context.Context, category string, limit, offset int) ([]crawler.Paper, error) {
	query := `
		SELECT arxiv_id, title, abstract, authors, primary_category, categories,
		       abs_url, pdf_url, published_at, updated_at
		FROM papers
		WHERE ($1 = '' OR primary_category = $1)
		ORDER BY published_at DESC, arxiv_id
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, category, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	var papers []crawler.Paper
	for rows.Next() {
		var p crawler.Paper
		err := rows.Scan(
			&p.ArxivID,
			&p.Title,
			&p.Abstract,
			&p.Authors,
			&p.PrimaryCategory,
			&p.Categories,
			&p.AbsURL,
			&p.PDFURL,
			&p.PublishedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan paper row: %w", err)
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}
