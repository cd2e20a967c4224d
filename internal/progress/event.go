package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StagePageDone   Stage = "PAGE_DONE"
	StagePageFailed Stage = "PAGE_FAILED"
	StageBatchDone  Stage = "BATCH_DONE"
	StageRunDone    Stage = "RUN_DONE"
)

// Event captures a single pipeline milestone.
type Event struct {
	// RunID identifies the pipeline run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Site is the host label for page events.
	Site string
	URL  string
	// Batch is the 1-based batch index for page and batch events.
	Batch int
	// Records is the running count of extracted records (batch/run events).
	Records int
	// Total is the number of URLs submitted to the run.
	Total int
	// Failure names the failing stage ("fetch", "extract") on PAGE_FAILED.
	Failure string
	Dur     time.Duration
	// Note carries low-volume debug context such as the error text.
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
	case StageRunStart, StageRunDone, StageBatchDone:
	case StagePageDone:
		if e.URL == "" {
			return errors.New("page done requires url")
		}
	case StagePageFailed:
		if e.URL == "" {
			return errors.New("page failed requires url")
		}
		if e.Failure == "" {
			return errors.New("page failed requires failure kind")
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

// ParseRunID converts a textual run ID to the Event form.
func ParseRunID(id string) ([16]byte, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return UUIDToBytes(parsed), nil
}
