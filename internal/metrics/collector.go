// Package metrics renders the current snapshot in the Prometheus exposition
// format.
package metrics

import (
	"strings"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
	"codeberg.org/mutker/apcupsd-exporter/internal/logger"
	"codeberg.org/mutker/apcupsd-exporter/internal/snapshot"
	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotSource yields the snapshot to render, if any.
type SnapshotSource interface {
	Current() (*snapshot.Snapshot, bool)
}

// Collector is an unchecked prometheus.Collector: the set of gauge families
// depends on what the UPS reports, so nothing is described up front.
type Collector struct {
	cfg    Config
	source SnapshotSource
	now    func() time.Time

	lastSuccessDesc *prometheus.Desc
	ageDesc         *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

type Option func(*Collector)

// WithClock overrides the clock used for the snapshot age.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCollector(cfg Config, source SnapshotSource, opts ...Option) (*Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errFactory.WithData(ErrInvalidConfig, "snapshot source required")
	}

	c := &Collector{
		cfg:    cfg,
		source: source,
		now:    time.Now,
		lastSuccessDesc: prometheus.NewDesc(
			prometheus.BuildFQName(cfg.Namespace, "exporter", "last_success_timestamp_seconds"),
			"Unix time of the snapshot currently served.",
			nil, nil,
		),
		ageDesc: prometheus.NewDesc(
			prometheus.BuildFQName(cfg.Namespace, "exporter", "snapshot_age_seconds"),
			"Seconds since the snapshot currently served was captured.",
			nil, nil,
		),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Register adds the collector to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	if err := reg.Register(c); err != nil {
		return errors.New().Wrap(ErrRegisterFailed, err)
	}

	return nil
}

// Describe sends nothing, which marks the collector as unchecked.
func (*Collector) Describe(chan<- *prometheus.Desc) {}

// Collect renders the current snapshot. Without a snapshot nothing is sent.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap, ok := c.source.Current()
	if !ok {
		return
	}

	infoFQName := prometheus.BuildFQName(c.cfg.Namespace, "", infoName)
	seen := map[string]struct{}{
		infoFQName: {},
		prometheus.BuildFQName(c.cfg.Namespace, "", upName): {},
	}

	for _, key := range snap.GaugeNames() {
		name := prometheus.BuildFQName(c.cfg.Namespace, "", SanitizeName(key))
		if _, dup := seen[name]; dup {
			logger.Debug().Str("key", key).Str("metric", name).Msg("Skipping gauge with conflicting name")
			continue
		}
		seen[name] = struct{}{}

		value, _ := snap.Gauge(key)
		c.send(ch, prometheus.NewDesc(name, helpPrefix+strings.ToUpper(key), nil, nil), value)
	}

	labelValues := make([]string, len(c.cfg.IdentityKeys))
	for i, key := range c.cfg.IdentityKeys {
		labelValues[i], _ = snap.InfoLabel(key)
	}
	infoDesc := prometheus.NewDesc(infoFQName, "APC UPS daemon information", c.cfg.IdentityKeys, nil)
	c.send(ch, infoDesc, 1, labelValues...)

	c.send(ch, c.lastSuccessDesc, float64(snap.CapturedAt().UnixNano())/1e9)
	c.send(ch, c.ageDesc, snap.Age(c.now()).Seconds())
}

func (*Collector) send(ch chan<- prometheus.Metric, desc *prometheus.Desc, value float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, value, labelValues...)
	if err != nil {
		logger.Warn().Err(err).Str("desc", desc.String()).Msg("Failed to build metric")
		return
	}
	ch <- m
}

// SanitizeName maps a status key onto the metric name alphabet. Runs of
// characters outside [a-zA-Z0-9_] become a single underscore.
func SanitizeName(key string) string {
	var b strings.Builder
	b.Grow(len(key))

	lastUnderscore := false
	for _, r := range key {
		valid := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !valid {
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
			continue
		}
		b.WriteRune(r)
		lastUnderscore = r == '_'
	}

	return b.String()
}
