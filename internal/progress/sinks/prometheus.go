package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/arxiv-crawler/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns the
// collectors derived from the event stream, as opposed to the package-level
// counters updated inline by the scheduler.
type PrometheusSink struct {
	unitsDone    *prometheus.CounterVec
	unitPapers   *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		unitsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_progress_units_total",
			Help: "Unit completions observed on the progress stream, by stage and category.",
		}, []string{"stage", "category"}),
		unitPapers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_progress_papers_total",
			Help: "Paper counts observed on the progress stream, by kind and category.",
		}, []string{"kind", "category"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_progress_unit_duration_seconds",
			Help:    "Wall time per completed unit.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"category"}),
	}
	for _, collector := range []prometheus.Collector{
		s.unitsDone,
		s.unitPapers,
		s.unitDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageUnitDone, progress.StageUnitError, progress.StageUnitSkip:
			s.unitsDone.WithLabelValues(string(evt.Stage), evt.Category).Inc()
		default:
			continue
		}
		if evt.Found > 0 {
			s.unitPapers.WithLabelValues("found", evt.Category).Add(float64(evt.Found))
		}
		if evt.Stored > 0 {
			s.unitPapers.WithLabelValues("stored", evt.Category).Add(float64(evt.Stored))
		}
		if evt.Dur > 0 {
			s.unitDuration.WithLabelValues(evt.Category).Observe(evt.Dur.Seconds())
		}
	}
	return nil
}

// Close implements the Sink interface; collectors stay registered.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
