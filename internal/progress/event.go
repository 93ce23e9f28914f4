// Package progress defines the event stream emitted by the crawl scheduler.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCrawlStart Stage = "CRAWL_START"
	StageCrawlDone  Stage = "CRAWL_DONE"
	StageUnitSkip   Stage = "UNIT_SKIP"
	StageUnitStart  Stage = "UNIT_START"
	StageUnitDone   Stage = "UNIT_DONE"
	StageUnitError  Stage = "UNIT_ERROR"
)

// Event captures a single milestone of crawl progress.
type Event struct {
	// RunID identifies one scheduler run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or unit milestone occurred.
	Stage Stage
	// Category scopes unit events to an arXiv category.
	Category string
	// Date is the calendar day of the unit, formatted YYYY-MM-DD.
	Date string
	// Found carries the paper count returned by the source for the unit.
	Found int64
	// Stored carries the newly persisted paper count for the unit.
	Stored int64
	// Dur captures wall time for unit completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlDone:
	case StageUnitSkip, StageUnitStart, StageUnitDone, StageUnitError:
		if e.Category == "" || e.Date == "" {
			return errors.New("unit events require category and date")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
