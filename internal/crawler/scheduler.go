package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-crawler/internal/progress"
)

// SchedulerConfig governs one historical crawl.
type SchedulerConfig struct {
	// StartDate is where a fresh cursor begins; zero means yesterday.
	StartDate time.Time
	// BatchSize is the page size requested from the metadata source.
	BatchSize int
	// MaxPagesPerUnit caps paging within one unit; 0 means no cap.
	MaxPagesPerUnit int
	// Topic is the publisher topic for unit completions; empty disables
	// publishing.
	Topic string
}

// Scheduler drives the historical crawl: a single sequential loop that walks
// the cursor backward through (date, category) units, fetching and storing
// each unit exactly once. All durable writes for a unit happen before the
// cursor advances, so a crash or stop resumes at the last committed unit.
type Scheduler struct {
	cfg       SchedulerConfig
	traversal *Traversal
	fetcher   Fetcher
	writer    *Writer
	store     ProgressStore
	limiter   Waiter
	retryer   *Retryer
	clock     Clock
	logger    *zap.Logger
	emitter   progress.Emitter
	publisher Publisher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// ErrAlreadyRunning is returned by Start when the scheduler loop is active.
var ErrAlreadyRunning = errors.New("scheduler is already running")

// NewScheduler wires the scheduler's collaborators. fetcher, writer, store,
// limiter, retryer, and clock are required; emitter and publisher may be nil.
func NewScheduler(
	cfg SchedulerConfig,
	traversal *Traversal,
	fetcher Fetcher,
	writer *Writer,
	store ProgressStore,
	limiter Waiter,
	retryer *Retryer,
	clock Clock,
	emitter progress.Emitter,
	publisher Publisher,
	logger *zap.Logger,
) (*Scheduler, error) {
	if traversal == nil || fetcher == nil || writer == nil || store == nil ||
		limiter == nil || retryer == nil || clock == nil {
		return nil, errors.New("scheduler requires traversal, fetcher, writer, store, limiter, retryer, and clock")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		traversal: traversal,
		fetcher:   fetcher,
		writer:    writer,
		store:     store,
		limiter:   limiter,
		retryer:   retryer,
		clock:     clock,
		emitter:   emitter,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Start launches the crawl loop in the background. It returns
// ErrAlreadyRunning if a loop is active.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		if err := s.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("crawl loop exited with error", zap.Error(err))
		}
	}()
	return nil
}

// Stop cancels the running loop and waits for it to finish or for ctx to
// expire. Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduler stop: %w", ctx.Err())
	}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run executes the crawl loop until the floor date is reached or ctx is
// canceled. The stop signal is observed at the top of each cycle, never
// between a unit's completion record and the matching cursor advance.
func (s *Scheduler) Run(ctx context.Context) error {
	cursor, err := s.loadOrCreateCursor(ctx)
	if err != nil {
		return err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	run := progress.UUIDToBytes(runID)
	s.emit(progress.Event{RunID: run, TS: s.clock.Now(), Stage: progress.StageCrawlStart})
	s.logger.Info("historical crawl starting",
		zap.String("run_id", runID.String()),
		zap.String("current_date", cursor.CurrentDate.Format(DateLayout)),
		zap.Strings("categories", cursor.Categories),
		zap.String("floor_date", s.traversal.FloorDate().Format(DateLayout)),
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		unit, ok := s.traversal.NextUnit(cursor)
		if !ok {
			cursor.Active = false
			s.touch(&cursor)
			if err := s.store.SaveCursor(ctx, cursor); err != nil {
				return fmt.Errorf("save cursor at completion: %w", err)
			}
			s.emit(progress.Event{RunID: run, TS: s.clock.Now(), Stage: progress.StageCrawlDone})
			s.logger.Info("historical crawl complete",
				zap.Int64("total_found", cursor.TotalFound),
				zap.Int64("total_stored", cursor.TotalStored),
			)
			return nil
		}

		skipped, err := s.skipIfCompleted(ctx, run, unit, &cursor)
		if err != nil {
			return err
		}
		if skipped {
			continue
		}

		if err := s.runUnit(ctx, run, unit, &cursor); err != nil {
			return err
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}
}

// skipIfCompleted advances past a unit that already has a completion record.
// Resume safety depends on this: re-running the scheduler over finished
// units performs zero fetch and store calls.
func (s *Scheduler) skipIfCompleted(ctx context.Context, run [16]byte, unit Unit, cursor *Cursor) (bool, error) {
	prior, err := s.store.GetUnit(ctx, unit.Category, unit.Date)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load unit progress: %w", err)
	}
	if !prior.Completed {
		return false, nil
	}
	s.traversal.Advance(cursor)
	s.touch(cursor)
	if err := s.store.SaveCursor(ctx, *cursor); err != nil {
		return false, fmt.Errorf("save cursor after skip: %w", err)
	}
	UnitsSkipped.Inc()
	s.emit(progress.Event{
		RunID:    run,
		TS:       s.clock.Now(),
		Stage:    progress.StageUnitSkip,
		Category: unit.Category,
		Date:     unit.Date.Format(DateLayout),
	})
	s.logger.Debug("unit already completed, skipping",
		zap.String("category", unit.Category),
		zap.String("date", unit.Date.Format(DateLayout)),
	)
	return true, nil
}

// runUnit fetches and stores one unit, records its outcome, and advances the
// cursor. Fetch failures are recorded on the unit and skipped forward;
// only progress-store failures propagate and halt the loop.
func (s *Scheduler) runUnit(ctx context.Context, run [16]byte, unit Unit, cursor *Cursor) error {
	started := s.clock.Now()
	if err := s.store.StartUnit(ctx, unit.Category, unit.Date, started); err != nil {
		return fmt.Errorf("start unit: %w", err)
	}
	s.emit(progress.Event{
		RunID:    run,
		TS:       started,
		Stage:    progress.StageUnitStart,
		Category: unit.Category,
		Date:     unit.Date.Format(DateLayout),
	})

	papers, fetchErr := s.fetchUnit(ctx, unit)
	if err := ctx.Err(); err != nil {
		// Canceled mid-unit: leave the unit incomplete so a restart
		// refetches it from scratch.
		return err
	}

	stored := s.writer.StoreBatch(ctx, papers)
	PapersFound.Add(float64(len(papers)))

	completed := s.clock.Now()
	prog := UnitProgress{
		Category:     unit.Category,
		Date:         unit.Date,
		Completed:    true,
		PapersFound:  len(papers),
		PapersStored: stored,
		StartedAt:    started,
		CompletedAt:  completed,
	}
	stage := progress.StageUnitDone
	result := "ok"
	if fetchErr != nil {
		prog.ErrorMessage = fetchErr.Error()
		stage = progress.StageUnitError
		result = "error"
		s.logger.Warn("unit completed with error",
			zap.String("category", unit.Category),
			zap.String("date", unit.Date.Format(DateLayout)),
			zap.Int("papers_found", len(papers)),
			zap.Error(fetchErr),
		)
	} else {
		s.logger.Info("unit completed",
			zap.String("category", unit.Category),
			zap.String("date", unit.Date.Format(DateLayout)),
			zap.Int("papers_found", len(papers)),
			zap.Int("papers_stored", stored),
		)
	}

	if err := s.store.CompleteUnit(ctx, prog); err != nil {
		return fmt.Errorf("complete unit: %w", err)
	}

	cursor.TotalFound += int64(len(papers))
	cursor.TotalStored += int64(stored)
	s.traversal.Advance(cursor)
	s.touch(cursor)
	if err := s.store.SaveCursor(ctx, *cursor); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}

	UnitsCompleted.WithLabelValues(result).Inc()
	s.emit(progress.Event{
		RunID:    run,
		TS:       completed,
		Stage:    stage,
		Category: unit.Category,
		Date:     unit.Date.Format(DateLayout),
		Found:    int64(len(papers)),
		Stored:   int64(stored),
		Dur:      completed.Sub(started),
		Note:     prog.ErrorMessage,
	})
	s.publishUnit(ctx, run, prog)
	return nil
}

// fetchUnit pages through the source for one unit, accumulating results until
// a short page signals the end of the day. On a page failing past its retry
// budget the partial results gathered so far are returned with the error.
func (s *Scheduler) fetchUnit(ctx context.Context, unit Unit) ([]Paper, error) {
	var papers []Paper
	limit := s.cfg.BatchSize
	for offset := 0; ; offset += limit {
		if s.cfg.MaxPagesPerUnit > 0 && offset >= s.cfg.MaxPagesPerUnit*limit {
			break
		}
		var page []Paper
		op := fmt.Sprintf("fetch %s %s offset=%d", unit.Category, unit.Date.Format(DateLayout), offset)
		err := s.retryer.Execute(ctx, op, func(ctx context.Context) error {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			batch, fetchErr := s.fetcher.Fetch(ctx, unit.Category, unit.Date, offset, limit)
			if fetchErr != nil {
				return fetchErr
			}
			page = batch
			return nil
		})
		if err != nil {
			FetchErrors.Inc()
			return papers, err
		}
		FetchPages.Inc()
		papers = append(papers, page...)
		if len(page) < limit {
			break
		}
	}
	return papers, nil
}

// Summary assembles the operator-facing progress snapshot from durable state.
func (s *Scheduler) Summary(ctx context.Context) (Summary, error) {
	counts, err := s.store.CountUnits(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("count units: %w", err)
	}
	summary := Summary{
		Categories:     s.traversal.Categories(),
		FloorDate:      s.traversal.FloorDate().Format(DateLayout),
		CompletedUnits: counts.Completed,
		FailedUnits:    counts.Failed,
	}
	cursor, err := s.store.LoadCursor(ctx)
	if errors.Is(err, ErrNotFound) {
		return summary, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("load cursor: %w", err)
	}
	summary.Active = cursor.Active
	summary.CurrentDate = cursor.CurrentDate.Format(DateLayout)
	summary.CurrentCategory = cursor.CurrentCategory()
	summary.TotalPapersFound = cursor.TotalFound
	summary.TotalPapersStored = cursor.TotalStored
	return summary, nil
}

func (s *Scheduler) loadOrCreateCursor(ctx context.Context) (Cursor, error) {
	now := s.clock.Now()
	cursor, err := s.store.LoadCursor(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		cursor = s.traversal.NewCursor(s.startDate(now), now)
		s.logger.Info("created new crawl cursor",
			zap.String("start_date", cursor.CurrentDate.Format(DateLayout)),
		)
	case err != nil:
		return Cursor{}, fmt.Errorf("load cursor: %w", err)
	case !s.traversal.CategoriesMatch(cursor):
		// A changed category list invalidates all positional state: rewind
		// the cursor and zero the counters.
		s.logger.Info("category list changed, resetting crawl cursor",
			zap.Strings("stored", cursor.Categories),
			zap.Strings("configured", s.traversal.Categories()),
		)
		cursor = s.traversal.NewCursor(s.startDate(now), now)
	default:
		return cursor, nil
	}
	if err := s.store.SaveCursor(ctx, cursor); err != nil {
		return Cursor{}, fmt.Errorf("save cursor: %w", err)
	}
	return cursor, nil
}

func (s *Scheduler) startDate(now time.Time) time.Time {
	if !s.cfg.StartDate.IsZero() {
		return Day(s.cfg.StartDate)
	}
	return Day(now).AddDate(0, 0, -1)
}

func (s *Scheduler) touch(cursor *Cursor) {
	now := s.clock.Now()
	cursor.LastActivityAt = now
	cursor.UpdatedAt = now
}

func (s *Scheduler) emit(evt progress.Event) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(evt)
}

func (s *Scheduler) publishUnit(ctx context.Context, run [16]byte, prog UnitProgress) {
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"run_id":        uuid.UUID(run).String(),
		"category":      prog.Category,
		"date":          prog.Date.Format(DateLayout),
		"papers_found":  prog.PapersFound,
		"papers_stored": prog.PapersStored,
		"error":         prog.ErrorMessage,
		"completed_at":  prog.CompletedAt.Format(time.RFC3339),
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, payload); err != nil {
		s.logger.Warn("unit completion publish failed",
			zap.String("category", prog.Category),
			zap.String("date", prog.Date.Format(DateLayout)),
			zap.Error(err),
		)
	}
}
