// Package poller periodically fetches and classifies the daemon's status
// report and publishes the result to a snapshot store.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
	"codeberg.org/mutker/apcupsd-exporter/internal/logger"
	"codeberg.org/mutker/apcupsd-exporter/internal/snapshot"
	"codeberg.org/mutker/apcupsd-exporter/internal/status"
)

// Config is the runtime configuration the poller needs.
type Config struct {
	Interval time.Duration
}

// Option customizes a Poller.
type Option func(*Poller)

// WithObserver registers an observer for poll outcomes.
func WithObserver(o Observer) Option {
	return func(p *Poller) {
		p.observers = append(p.observers, o)
	}
}

// WithClock overrides the time source used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// Poller is the single writer of a snapshot store. A failed poll never
// touches the store, so the last good snapshot keeps being served.
type Poller struct {
	cfg       Config
	fetcher   Fetcher
	store     *snapshot.Store
	observers []Observer
	now       func() time.Time
	state     atomic.Int32
}

// New creates a poller with immutable config.
func New(cfg Config, fetcher Fetcher, store *snapshot.Store, opts ...Option) (*Poller, error) {
	errFactory := errors.New()

	switch {
	case cfg.Interval <= 0:
		return nil, errFactory.WithData(ErrInvalidConfig, "interval must be > 0")
	case fetcher == nil:
		return nil, errFactory.WithData(ErrInvalidConfig, "fetcher required")
	case store == nil:
		return nil, errFactory.WithData(ErrInvalidConfig, "store required")
	}

	p := &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// State returns whether a poll is currently in flight.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// PollOnce performs exactly one poll cycle and, on success, replaces the
// store's snapshot.
func (p *Poller) PollOnce(ctx context.Context) Outcome {
	p.state.Store(int32(StatePolling))
	defer p.state.Store(int32(StateIdle))

	outcome := p.poll(ctx)

	if outcome.OK() {
		p.store.Replace(outcome.Snapshot)
		logger.Debug().
			Int("entries", outcome.Snapshot.Len()).
			Int("warnings", len(outcome.Warnings)).
			Dur("duration", outcome.Duration).
			Msg("Status poll succeeded")
	} else {
		p.logFailure(outcome)
	}

	for _, w := range outcome.Warnings {
		logger.Debug().
			Int("line", w.Index).
			Str("raw", w.Raw).
			Str("reason", string(w.Reason)).
			Msg("Skipped status line")
	}

	for _, o := range p.observers {
		o.ObservePoll(outcome)
	}

	return outcome
}

func (p *Poller) poll(ctx context.Context) Outcome {
	errFactory := errors.New()
	outcome := Outcome{StartedAt: p.now()}

	lines, err := p.fetcher.FetchStatus(ctx)
	if err != nil {
		outcome.Err = errFactory.Wrap(ErrFetchFailed, err)
		outcome.Duration = p.now().Sub(outcome.StartedAt)
		return outcome
	}

	res := status.Classify(lines)
	outcome.Warnings = res.Warnings

	finishedAt := p.now()
	outcome.Duration = finishedAt.Sub(outcome.StartedAt)

	if res.Empty() {
		outcome.Err = errFactory.WithData(ErrNoUsableStats, len(lines))
		return outcome
	}

	outcome.Snapshot = snapshot.New(finishedAt, res.Gauges, res.InfoLabels)

	return outcome
}

func (p *Poller) logFailure(outcome Outcome) {
	event := logger.Warn().Err(outcome.Err).Dur("duration", outcome.Duration)
	if code := errors.CodeOf(errors.Unwrap(outcome.Err)); code != "" {
		event = event.Str("cause", string(code))
	}
	if snap, ok := p.store.Current(); ok {
		event = event.Time("serving_since", snap.CapturedAt())
	}
	event.Msg("Status poll failed, keeping previous snapshot")
}

// Run polls immediately and then on every tick until ctx is cancelled.
// Cancellation stops scheduling only: a poll already in flight finishes,
// bounded by the client's own timeouts. Ticks missed during a slow poll are
// dropped, so polls never overlap.
func (p *Poller) Run(ctx context.Context) {
	pollCtx := context.WithoutCancel(ctx)

	logger.Info().Dur("interval", p.cfg.Interval).Msg("Poller started")

	p.PollOnce(pollCtx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Poller stopped")
			return
		case <-ticker.C:
			p.PollOnce(pollCtx)
		}
	}
}
