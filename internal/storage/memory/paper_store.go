package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/arxiv-crawler/internal/crawler"
)

// PaperStore implements crawler.PaperStore in memory.
type PaperStore struct {
	mu     sync.RWMutex
	papers map[string]crawler.Paper
	failed map[string]crawler.FailedPaper
}

// NewPaperStore creates an empty in-memory paper store.
func NewPaperStore() *PaperStore {
	return &PaperStore{
		papers: make(map[string]crawler.Paper),
		failed: make(map[string]crawler.FailedPaper),
	}
}

// GetByArxivID loads one paper or returns crawler.ErrNotFound.
func (s *PaperStore) GetByArxivID(_ context.Context, arxivID string) (crawler.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.papers[arxivID]
	if !ok {
		return crawler.Paper{}, crawler.ErrNotFound
	}
	return p, nil
}

// Insert stores a new paper, returning crawler.ErrDuplicate on an existing ID.
func (s *PaperStore) Insert(_ context.Context, paper crawler.Paper) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.papers[paper.ArxivID]; ok {
		return crawler.ErrDuplicate
	}
	s.papers[paper.ArxivID] = paper
	return nil
}

// UpsertFailed records or refreshes a quarantine entry, starting RetryCount
// at zero and incrementing it on repeats.
func (s *PaperStore) UpsertFailed(_ context.Context, failed crawler.FailedPaper) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.failed[failed.ArxivID]; ok {
		failed.RetryCount = prior.RetryCount + 1
	} else {
		failed.RetryCount = 0
	}
	s.failed[failed.ArxivID] = failed
	return nil
}

// List returns papers for one category (or all when category is empty),
// newest first.
func (s *PaperStore) List(_ context.Context, category string, limit, offset int) ([]crawler.Paper, error) {
	s.mu.RLock()
	all := make([]crawler.Paper, 0, len(s.papers))
	for _, p := range s.papers {
		if category == "" || p.PrimaryCategory == category {
			all = append(all, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].PublishedAt.Equal(all[j].PublishedAt) {
			return all[i].PublishedAt.After(all[j].PublishedAt)
		}
		return all[i].ArxivID < all[j].ArxivID
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// FailedPaper returns one quarantine record, if present.
func (s *PaperStore) FailedPaper(arxivID string) (crawler.FailedPaper, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.failed[arxivID]
	return f, ok
}
