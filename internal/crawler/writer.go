package crawler

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Writer persists discovered papers idempotently and quarantines the ones
// that fail. One paper's failure never aborts the rest of a batch.
type Writer struct {
	papers PaperStore
	clock  Clock
	logger *zap.Logger
}

// NewWriter builds a Writer over the given paper store.
func NewWriter(papers PaperStore, clock Clock, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{papers: papers, clock: clock, logger: logger}
}

// Store persists one paper. It returns stored=false without touching storage
// when the arXiv ID already exists. On a persistence failure other than a
// duplicate key it upserts a quarantine record and returns the error.
func (w *Writer) Store(ctx context.Context, paper Paper) (bool, error) {
	_, err := w.papers.GetByArxivID(ctx, paper.ArxivID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, w.quarantine(ctx, paper, err)
	}

	if err := w.papers.Insert(ctx, paper); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with another writer; the paper is stored.
			return false, nil
		}
		return false, w.quarantine(ctx, paper, err)
	}
	return true, nil
}

// StoreBatch applies Store to each paper independently and returns how many
// were newly stored.
func (w *Writer) StoreBatch(ctx context.Context, papers []Paper) int {
	stored := 0
	for _, paper := range papers {
		ok, err := w.Store(ctx, paper)
		if err != nil {
			w.logger.Warn("paper store failed",
				zap.String("arxiv_id", paper.ArxivID),
				zap.Error(err),
			)
			PapersQuarantined.Inc()
			continue
		}
		if ok {
			stored++
			PapersStored.Inc()
		} else {
			PapersDuplicate.Inc()
		}
	}
	return stored
}

func (w *Writer) quarantine(ctx context.Context, paper Paper, cause error) error {
	failed := FailedPaper{
		ArxivID:      paper.ArxivID,
		Category:     paper.PrimaryCategory,
		ErrorMessage: cause.Error(),
		LastRetryAt:  w.clock.Now(),
	}
	if err := w.papers.UpsertFailed(ctx, failed); err != nil {
		w.logger.Error("quarantine upsert failed",
			zap.String("arxiv_id", paper.ArxivID),
			zap.Error(err),
		)
	}
	return cause
}
