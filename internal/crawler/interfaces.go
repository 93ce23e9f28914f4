package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher issues one paginated query against the paper metadata source. An
// empty-result day returns a nil slice and nil error; transport failures come
// back as *TransientError or *FatalError.
type Fetcher interface {
	Fetch(ctx context.Context, category string, date time.Time, offset, limit int) ([]Paper, error)
}

// PaperStore is the item-storage sink consumed by the StorageWriter.
type PaperStore interface {
	// GetByArxivID returns ErrNotFound when no paper with the ID exists.
	GetByArxivID(ctx context.Context, arxivID string) (Paper, error)
	// Insert returns ErrDuplicate if the arXiv ID is already stored.
	Insert(ctx context.Context, paper Paper) error
	// UpsertFailed creates a quarantine record with RetryCount 0, or bumps
	// RetryCount and overwrites the error message on an existing one.
	UpsertFailed(ctx context.Context, failed FailedPaper) error
}

// ProgressStore is the durability layer for the crawl cursor and per-unit
// completion records. A failure here is the only storage failure allowed to
// halt the scheduler.
type ProgressStore interface {
	// LoadCursor returns ErrNotFound before the first scheduler run.
	LoadCursor(ctx context.Context) (Cursor, error)
	SaveCursor(ctx context.Context, cursor Cursor) error
	// GetUnit returns ErrNotFound for a (category, date) pair never attempted.
	GetUnit(ctx context.Context, category string, date time.Time) (UnitProgress, error)
	// StartUnit records the first attempt of a unit; calling it again for the
	// same pair is a no-op.
	StartUnit(ctx context.Context, category string, date time.Time, startedAt time.Time) error
	CompleteUnit(ctx context.Context, progress UnitProgress) error
	CountUnits(ctx context.Context) (UnitCounts, error)
}

// Waiter gates calls against the external source's rate limit.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Publisher pushes unit-completion events to Pub/Sub (or similar) for
// downstream consumers such as the summarization pipeline.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives raw feed responses and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
