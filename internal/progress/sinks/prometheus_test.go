package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/arxiv-crawler/internal/progress"
)

func unitEvent(stage progress.Stage, found, stored int64, dur time.Duration) progress.Event {
	return progress.Event{
		RunID:    progress.UUIDToBytes(uuid.New()),
		TS:       time.Now().UTC(),
		Stage:    stage,
		Category: "cs.AI",
		Date:     "2024-03-10",
		Found:    found,
		Stored:   stored,
		Dur:      dur,
	}
}

func TestPrometheusSinkCountsUnits(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	batch := []progress.Event{
		unitEvent(progress.StageUnitDone, 10, 9, 2*time.Second),
		unitEvent(progress.StageUnitDone, 5, 5, time.Second),
		unitEvent(progress.StageUnitError, 0, 0, time.Second),
		unitEvent(progress.StageUnitSkip, 0, 0, 0),
		unitEvent(progress.StageCrawlStart, 0, 0, 0), // ignored
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, float64(2),
		testutil.ToFloat64(sink.unitsDone.WithLabelValues("UNIT_DONE", "cs.AI")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(sink.unitsDone.WithLabelValues("UNIT_ERROR", "cs.AI")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(sink.unitsDone.WithLabelValues("UNIT_SKIP", "cs.AI")))
	require.Equal(t, float64(15),
		testutil.ToFloat64(sink.unitPapers.WithLabelValues("found", "cs.AI")))
	require.Equal(t, float64(14),
		testutil.ToFloat64(sink.unitPapers.WithLabelValues("stored", "cs.AI")))
}

func TestPrometheusSinkDoubleRegisterFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkConsumesWithoutError(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	err := sink.Consume(context.Background(), []progress.Event{
		unitEvent(progress.StageUnitDone, 1, 1, time.Second),
	})
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))
}
