// Package crawler implements the historical crawl scheduler and its
// traversal, retry, and storage primitives.
package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UnitsCompleted tracks units that finished, partitioned by outcome.
	UnitsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_units_completed_total",
		Help: "Date-category units completed, partitioned by result.",
	}, []string{"result"})
	// UnitsSkipped tracks resume-safe skips of already completed units.
	UnitsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_units_skipped_total",
		Help: "Units skipped because they were already completed.",
	})
	// PapersFound tracks papers returned by the metadata source.
	PapersFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_papers_found_total",
		Help: "Papers discovered across all fetched pages.",
	})
	// PapersStored tracks papers newly persisted.
	PapersStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_papers_stored_total",
		Help: "Papers newly stored after dedup.",
	})
	// PapersDuplicate tracks dedup hits.
	PapersDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_papers_duplicate_total",
		Help: "Papers skipped because the arXiv ID was already stored.",
	})
	// PapersQuarantined tracks papers diverted to the quarantine table.
	PapersQuarantined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_papers_quarantined_total",
		Help: "Papers that failed to persist and were quarantined.",
	})
	// FetchPages tracks fetched result pages.
	FetchPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_fetch_pages_total",
		Help: "Result pages fetched from the metadata source.",
	})
	// FetchErrors tracks page fetches that failed after retries.
	FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_fetch_errors_total",
		Help: "Page fetches that failed after exhausting retries.",
	})
)
