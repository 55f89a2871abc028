// Package telemetry records the exporter's own poll health.
package telemetry

import (
	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
	"codeberg.org/mutker/apcupsd-exporter/internal/poller"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Recorder turns poll outcomes into counters. It implements poller.Observer.
type Recorder struct {
	up           prometheus.Gauge
	polls        *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     prometheus.Histogram
	warnings     *prometheus.CounterVec
	lastDuration prometheus.Gauge
}

var _ poller.Observer = (*Recorder)(nil)

// NewRecorder creates the collectors under namespace. They are not
// registered until Register is called.
func NewRecorder(namespace string) *Recorder {
	return &Recorder{
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Whether the last poll of the UPS daemon succeeded.",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "polls_total",
			Help:      "Total number of status polls by result.",
		}, []string{"result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "poll_failures_total",
			Help:      "Total number of failed status polls by error code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "poll_duration_seconds",
			Help:      "Duration of status polls.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "parse_warnings_total",
			Help:      "Total number of status lines skipped by reason.",
		}, []string{"reason"}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "last_poll_duration_seconds",
			Help:      "Duration of the most recent status poll.",
		}),
	}
}

// Register adds the recorder's collectors to reg.
func (r *Recorder) Register(reg prometheus.Registerer) error {
	errFactory := errors.New()

	for _, c := range []prometheus.Collector{r.up, r.polls, r.failures, r.duration, r.warnings, r.lastDuration} {
		if err := reg.Register(c); err != nil {
			return errFactory.Wrap(ErrRegisterFailed, err)
		}
	}

	return nil
}

// ObservePoll records one poll outcome.
func (r *Recorder) ObservePoll(o poller.Outcome) {
	r.duration.Observe(o.Duration.Seconds())
	r.lastDuration.Set(o.Duration.Seconds())

	for _, w := range o.Warnings {
		r.warnings.WithLabelValues(string(w.Reason)).Inc()
	}

	if o.OK() {
		r.up.Set(1)
		r.polls.WithLabelValues(resultSuccess).Inc()
		return
	}

	r.up.Set(0)
	r.polls.WithLabelValues(resultFailure).Inc()
	r.failures.WithLabelValues(failureCode(o.Err)).Inc()
}

// failureCode picks the most specific error code in the chain, so a fetch
// failure is counted by its transport cause.
func failureCode(err error) string {
	code := errors.CodeOf(err)
	if cause := errors.CodeOf(errors.Unwrap(err)); cause != "" {
		code = cause
	}
	if code == "" {
		return "unknown"
	}

	return string(code)
}
