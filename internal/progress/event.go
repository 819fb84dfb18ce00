// Package progress defines the event structures emitted by analysis workers
// and the broker that fans them out to per-job subscribers.
package progress

import (
	"errors"
	"fmt"

	"github.com/pagescope/pagescope/internal/analysis"
)

// Type denotes the kind of event.
type Type string

// Supported event types. Complete and Error are terminal: the broker closes
// the job's subscriptions after delivering one.
const (
	TypeProgress Type = "progress"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

// Stage labels the pipeline phase a progress event belongs to.
type Stage string

// Supported pipeline stages.
const (
	StageFetch   Stage = "fetch"
	StageRules   Stage = "rules"
	StageModel   Stage = "model"
	StagePersist Stage = "persist"
)

// Event captures one milestone of an analysis run. The job id routes the
// event inside the broker and is not part of the wire payload.
type Event struct {
	JobID    string        `json:"-"`
	Type     Type          `json:"type"`
	Stage    Stage         `json:"stage,omitempty"`
	Progress int           `json:"progress"`
	Message  string        `json:"message,omitempty"`
	Data     *analysis.Job `json:"data,omitempty"`
	Err      string        `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	switch e.Type {
	case TypeProgress, TypeComplete, TypeError:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress %d out of range", e.Progress)
	}
	return nil
}
