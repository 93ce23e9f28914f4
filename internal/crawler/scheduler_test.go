package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	memorypublisher "github.com/JakeFAU/arxiv-crawler/internal/publisher/memory"
)

// memProgressStore is an in-memory ProgressStore with injectable failures.
type memProgressStore struct {
	mu          sync.Mutex
	cursor      *Cursor
	units       map[string]UnitProgress
	saveErr     error
	completeErr error
	getUnitErr  error
}

func newMemProgressStore() *memProgressStore {
	return &memProgressStore{units: make(map[string]UnitProgress)}
}

func unitKey(category string, day time.Time) string {
	return category + "|" + Day(day).Format(DateLayout)
}

func (s *memProgressStore) LoadCursor(_ context.Context) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return Cursor{}, ErrNotFound
	}
	return *s.cursor, nil
}

func (s *memProgressStore) SaveCursor(_ context.Context, cursor Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.cursor = &cursor
	return nil
}

func (s *memProgressStore) GetUnit(_ context.Context, category string, day time.Time) (UnitProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getUnitErr != nil {
		return UnitProgress{}, s.getUnitErr
	}
	up, ok := s.units[unitKey(category, day)]
	if !ok {
		return UnitProgress{}, ErrNotFound
	}
	return up, nil
}

func (s *memProgressStore) StartUnit(_ context.Context, category string, day time.Time, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := unitKey(category, day)
	if _, ok := s.units[key]; ok {
		return nil
	}
	s.units[key] = UnitProgress{Category: category, Date: Day(day), StartedAt: startedAt}
	return nil
}

func (s *memProgressStore) CompleteUnit(_ context.Context, progress UnitProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.units[unitKey(progress.Category, progress.Date)] = progress
	return nil
}

func (s *memProgressStore) CountUnits(_ context.Context) (UnitCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts UnitCounts
	for _, up := range s.units {
		if !up.Completed {
			continue
		}
		if up.ErrorMessage != "" {
			counts.Failed++
		} else {
			counts.Completed++
		}
	}
	return counts, nil
}

type fetchCall struct {
	category string
	day      time.Time
	offset   int
	limit    int
}

// scriptedFetcher replays a per-call function and records every call.
type scriptedFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	fetch func(category string, day time.Time, offset, limit int) ([]Paper, error)
}

func (f *scriptedFetcher) Fetch(_ context.Context, category string, day time.Time, offset, limit int) ([]Paper, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{category: category, day: day, offset: offset, limit: limit})
	f.mu.Unlock()
	if f.fetch == nil {
		return nil, nil
	}
	return f.fetch(category, day, offset, limit)
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// countingWaiter counts Wait calls without sleeping.
type countingWaiter struct {
	mu    sync.Mutex
	waits int
}

func (w *countingWaiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	w.waits++
	w.mu.Unlock()
	return nil
}

func papersFor(category string, day time.Time, n int) []Paper {
	out := make([]Paper, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Paper{
			ArxivID:         fmt.Sprintf("%s-%s-%d", category, day.Format(DateLayout), i),
			Title:           "test paper",
			PrimaryCategory: category,
			PublishedAt:     day,
		})
	}
	return out
}

type schedulerFixture struct {
	scheduler *Scheduler
	fetcher   *scriptedFetcher
	papers    *memPaperStore
	progress  *memProgressStore
	waiter    *countingWaiter
	published *memorypublisher.Publisher
}

func newSchedulerFixture(t *testing.T, cfg SchedulerConfig, categories []string, floor time.Time) *schedulerFixture {
	t.Helper()
	trav, err := NewTraversal(categories, floor)
	require.NoError(t, err)

	clock := newFixedClock(date(2024, 3, 12))
	papers := newMemPaperStore()
	progress := newMemProgressStore()
	fetcher := &scriptedFetcher{}
	waiter := &countingWaiter{}
	writer := NewWriter(papers, clock, nil)
	retryer := NewRetryer(RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond}, nil)
	published := memorypublisher.New()

	sched, err := NewScheduler(cfg, trav, fetcher, writer, progress, waiter, retryer, clock, nil, published, nil)
	require.NoError(t, err)
	return &schedulerFixture{
		scheduler: sched,
		fetcher:   fetcher,
		papers:    papers,
		progress:  progress,
		waiter:    waiter,
		published: published,
	}
}

func TestSchedulerCrawlsAllUnitsToFloor(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI", "cs.LG"}, date(2024, 3, 9))
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		return papersFor(category, day, 2), nil
	}

	require.NoError(t, fx.scheduler.Run(context.Background()))

	// 2 categories x 2 days, one short page each.
	require.Equal(t, 4, fx.fetcher.callCount())
	require.Len(t, fx.papers.papers, 8)

	cursor, err := fx.progress.LoadCursor(context.Background())
	require.NoError(t, err)
	require.False(t, cursor.Active)
	require.Equal(t, int64(8), cursor.TotalFound)
	require.Equal(t, int64(8), cursor.TotalStored)

	counts, err := fx.progress.CountUnits(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, counts.Completed)
	require.Equal(t, 0, counts.Failed)
}

func TestSchedulerPaginatesUntilShortPage(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 2},
		[]string{"cs.AI"}, date(2024, 3, 10))
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		// 5 papers total: pages of 2, 2, then 1.
		remaining := 5 - offset
		if remaining > limit {
			remaining = limit
		}
		if remaining <= 0 {
			return nil, nil
		}
		out := papersFor(category, day, remaining)
		for i := range out {
			out[i].ArxivID = fmt.Sprintf("%s-%d", out[i].ArxivID, offset)
		}
		return out, nil
	}

	require.NoError(t, fx.scheduler.Run(context.Background()))

	require.Equal(t, 3, fx.fetcher.callCount())
	require.Equal(t, []int{0, 2, 4}, []int{fx.fetcher.calls[0].offset, fx.fetcher.calls[1].offset, fx.fetcher.calls[2].offset})

	cursor, err := fx.progress.LoadCursor(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5), cursor.TotalFound)
}

func TestSchedulerHonorsPageCap(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 2, MaxPagesPerUnit: 2},
		[]string{"cs.AI"}, date(2024, 3, 10))
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		out := papersFor(category, day, limit)
		for i := range out {
			out[i].ArxivID = fmt.Sprintf("%s-%d", out[i].ArxivID, offset)
		}
		return out, nil
	}

	require.NoError(t, fx.scheduler.Run(context.Background()))
	require.Equal(t, 2, fx.fetcher.callCount())
}

func TestSchedulerSkipsCompletedUnits(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI", "cs.LG"}, date(2024, 3, 10))
	fx.progress.units[unitKey("cs.AI", date(2024, 3, 10))] = UnitProgress{
		Category:  "cs.AI",
		Date:      date(2024, 3, 10),
		Completed: true,
	}
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		require.NotEqual(t, "cs.AI", category, "completed unit must not be refetched")
		return nil, nil
	}

	require.NoError(t, fx.scheduler.Run(context.Background()))
	require.Equal(t, 1, fx.fetcher.callCount())
}

func TestSchedulerRecordsUnitErrorAndContinues(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI", "cs.LG"}, date(2024, 3, 10))
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		if category == "cs.AI" {
			return nil, &FatalError{Op: "fetch", Err: errors.New("400 bad request")}
		}
		return papersFor(category, day, 1), nil
	}

	require.NoError(t, fx.scheduler.Run(context.Background()))

	failed, err := fx.progress.GetUnit(context.Background(), "cs.AI", date(2024, 3, 10))
	require.NoError(t, err)
	require.True(t, failed.Completed)
	require.Contains(t, failed.ErrorMessage, "400 bad request")

	ok, err := fx.progress.GetUnit(context.Background(), "cs.LG", date(2024, 3, 10))
	require.NoError(t, err)
	require.True(t, ok.Completed)
	require.Empty(t, ok.ErrorMessage)

	counts, err := fx.progress.CountUnits(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, counts.Completed)
	require.Equal(t, 1, counts.Failed)
}

func TestSchedulerKeepsPartialResultsOnMidUnitFailure(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 2},
		[]string{"cs.AI"}, date(2024, 3, 10))
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		if offset == 0 {
			return papersFor(category, day, 2), nil
		}
		return nil, &FatalError{Op: "fetch", Err: errors.New("boom")}
	}

	require.NoError(t, fx.scheduler.Run(context.Background()))

	up, err := fx.progress.GetUnit(context.Background(), "cs.AI", date(2024, 3, 10))
	require.NoError(t, err)
	require.True(t, up.Completed)
	require.Equal(t, 2, up.PapersFound)
	require.Equal(t, 2, up.PapersStored)
	require.NotEmpty(t, up.ErrorMessage)
	require.Len(t, fx.papers.papers, 2)
}

func TestSchedulerHaltsOnCursorSaveFailure(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI"}, date(2024, 3, 9))
	fx.progress.saveErr = errors.New("database is on fire")

	err := fx.scheduler.Run(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "database is on fire")
	require.Equal(t, 0, fx.fetcher.callCount())
}

func TestSchedulerHaltsOnCompleteUnitFailure(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI"}, date(2024, 3, 9))
	fx.progress.completeErr = errors.New("unique violation")

	err := fx.scheduler.Run(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "complete unit")
	// The failed unit's cursor position is preserved for the next run.
	cursor, loadErr := fx.progress.LoadCursor(context.Background())
	require.NoError(t, loadErr)
	require.True(t, cursor.Active)
	require.True(t, cursor.CurrentDate.Equal(date(2024, 3, 10)))
}

func TestSchedulerResumesFromStoredCursor(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI"}, date(2024, 3, 8))
	stored := Cursor{
		CurrentDate:   date(2024, 3, 9),
		CategoryIndex: 0,
		Categories:    []string{"cs.AI"},
		Active:        true,
		TotalFound:    7,
		TotalStored:   7,
	}
	fx.progress.cursor = &stored
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		require.False(t, day.After(date(2024, 3, 9)), "resume must not revisit newer dates")
		return papersFor(category, day, 1), nil
	}

	require.NoError(t, fx.scheduler.Run(context.Background()))

	cursor, err := fx.progress.LoadCursor(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(9), cursor.TotalFound)
}

func TestSchedulerResetsCursorWhenCategoriesChange(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI", "cs.CL"}, date(2024, 3, 10))
	fx.progress.cursor = &Cursor{
		CurrentDate:   date(2020, 1, 1),
		CategoryIndex: 1,
		Categories:    []string{"cs.AI", "cs.LG"},
		Active:        true,
		TotalFound:    1000,
	}

	require.NoError(t, fx.scheduler.Run(context.Background()))

	cursor, err := fx.progress.LoadCursor(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"cs.AI", "cs.CL"}, cursor.Categories)
	require.Equal(t, int64(0), cursor.TotalFound)
	require.Equal(t, 2, fx.fetcher.callCount())
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI"}, date(2015, 1, 1))
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		time.Sleep(time.Millisecond)
		return nil, nil
	}

	require.NoError(t, fx.scheduler.Start(context.Background()))
	require.True(t, fx.scheduler.Running())
	require.ErrorIs(t, fx.scheduler.Start(context.Background()), ErrAlreadyRunning)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fx.scheduler.Stop(stopCtx))
	require.False(t, fx.scheduler.Running())

	// Stopping again is a no-op.
	require.NoError(t, fx.scheduler.Stop(stopCtx))
}

func TestSchedulerStopLeavesInFlightUnitIncomplete(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI"}, date(2015, 1, 1))

	fetching := make(chan struct{})
	var once sync.Once
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		once.Do(func() { close(fetching) })
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.scheduler.Run(ctx) }()

	<-fetching
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestSchedulerSummary(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI", "cs.LG"}, date(2024, 3, 1))

	// Before the first run there is no cursor; the summary is inert.
	summary, err := fx.scheduler.Summary(context.Background())
	require.NoError(t, err)
	require.False(t, summary.Active)
	require.Equal(t, []string{"cs.AI", "cs.LG"}, summary.Categories)
	require.Equal(t, "2024-03-01", summary.FloorDate)

	fx.progress.cursor = &Cursor{
		CurrentDate:   date(2024, 3, 9),
		CategoryIndex: 1,
		Categories:    []string{"cs.AI", "cs.LG"},
		Active:        true,
		TotalFound:    42,
		TotalStored:   40,
	}
	fx.progress.units[unitKey("cs.AI", date(2024, 3, 10))] = UnitProgress{Category: "cs.AI", Date: date(2024, 3, 10), Completed: true}
	fx.progress.units[unitKey("cs.LG", date(2024, 3, 10))] = UnitProgress{Category: "cs.LG", Date: date(2024, 3, 10), Completed: true, ErrorMessage: "boom"}

	summary, err = fx.scheduler.Summary(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Active)
	require.Equal(t, "2024-03-09", summary.CurrentDate)
	require.Equal(t, "cs.LG", summary.CurrentCategory)
	require.Equal(t, 1, summary.CompletedUnits)
	require.Equal(t, 1, summary.FailedUnits)
	require.Equal(t, int64(42), summary.TotalPapersFound)
	require.Equal(t, int64(40), summary.TotalPapersStored)
}

func TestSchedulerRateLimitsEveryFetch(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100},
		[]string{"cs.AI"}, date(2024, 3, 10))
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		return nil, nil
	}

	require.NoError(t, fx.scheduler.Run(context.Background()))
	// One wait per fetch attempt plus one per completed cycle.
	require.Equal(t, 2, fx.waiter.waits)
}

func TestSchedulerPublishesUnitCompletions(t *testing.T) {
	t.Parallel()

	fx := newSchedulerFixture(t,
		SchedulerConfig{StartDate: date(2024, 3, 10), BatchSize: 100, Topic: "crawl-units"},
		[]string{"cs.AI"}, date(2024, 3, 9))
	fx.fetcher.fetch = func(category string, day time.Time, offset, limit int) ([]Paper, error) {
		return papersFor(category, day, 3), nil
	}

	require.NoError(t, fx.scheduler.Run(context.Background()))

	msgs := fx.published.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "crawl-units", msgs[0].Topic)

	payload, ok := msgs[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "cs.AI", payload["category"])
	require.Equal(t, "2024-03-10", payload["date"])
	require.Equal(t, 3, payload["papers_found"])
	require.Equal(t, "", payload["error"])
	require.NotEmpty(t, payload["run_id"])
}
