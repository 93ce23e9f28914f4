package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/arxiv-crawler/internal/crawler"
)

// ProgressStore implements crawler.ProgressStore in memory.
type ProgressStore struct {
	mu     sync.RWMutex
	cursor *crawler.Cursor
	units  map[string]crawler.UnitProgress
}

// NewProgressStore creates an empty in-memory progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{units: make(map[string]crawler.UnitProgress)}
}

func unitKey(category string, date time.Time) string {
	return category + "|" + crawler.Day(date).Format(crawler.DateLayout)
}

// LoadCursor returns the cursor or crawler.ErrNotFound before the first save.
func (s *ProgressStore) LoadCursor(_ context.Context) (crawler.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cursor == nil {
		return crawler.Cursor{}, crawler.ErrNotFound
	}
	return *s.cursor, nil
}

// SaveCursor overwrites the singleton cursor.
func (s *ProgressStore) SaveCursor(_ context.Context, cursor crawler.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = &cursor
	return nil
}

// GetUnit loads one unit's progress or returns crawler.ErrNotFound.
func (s *ProgressStore) GetUnit(_ context.Context, category string, date time.Time) (crawler.UnitProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	up, ok := s.units[unitKey(category, date)]
	if !ok {
		return crawler.UnitProgress{}, crawler.ErrNotFound
	}
	return up, nil
}

// StartUnit records the first attempt of a unit; repeats are no-ops.
func (s *ProgressStore) StartUnit(_ context.Context, category string, date time.Time, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := unitKey(category, date)
	if _, ok := s.units[key]; ok {
		return nil
	}
	s.units[key] = crawler.UnitProgress{
		Category:  category,
		Date:      crawler.Day(date),
		StartedAt: startedAt,
	}
	return nil
}

// CompleteUnit records a unit's final state.
func (s *ProgressStore) CompleteUnit(_ context.Context, progress crawler.UnitProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	progress.Date = crawler.Day(progress.Date)
	s.units[unitKey(progress.Category, progress.Date)] = progress
	return nil
}

// CountUnits tallies completed units, splitting out the ones that completed
// with a recorded error.
func (s *ProgressStore) CountUnits(_ context.Context) (crawler.UnitCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var counts crawler.UnitCounts
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
