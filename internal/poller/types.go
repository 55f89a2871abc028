package poller

import (
	"context"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/snapshot"
	"codeberg.org/mutker/apcupsd-exporter/internal/status"
)

// Fetcher returns the raw lines of one status report.
type Fetcher interface {
	FetchStatus(ctx context.Context) ([]string, error)
}

// Observer is notified of every poll outcome, successful or not.
type Observer interface {
	ObservePoll(outcome Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Outcome)

func (f ObserverFunc) ObservePoll(o Outcome) { f(o) }

// Outcome is the result of one poll cycle. Exactly one of Snapshot and Err
// is set.
type Outcome struct {
	StartedAt time.Time
	Duration  time.Duration
	Snapshot  *snapshot.Snapshot
	Warnings  []status.Warning
	Err       error
}

// OK reports whether the poll produced a snapshot.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Snapshot != nil
}

// State is the poller's position in its Idle → Polling → Idle cycle.
type State int32

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "idle"
}
