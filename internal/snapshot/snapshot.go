// Package snapshot holds the result of the latest successful poll.
package snapshot

import (
	"maps"
	"slices"
	"sync/atomic"
	"time"
)

// Snapshot is the immutable result of one successful poll. Its maps are
// copied on the way in and on the way out.
type Snapshot struct {
	capturedAt time.Time
	gauges     map[string]float64
	infoLabels map[string]string
}

// New builds a Snapshot from copies of gauges and infoLabels.
func New(capturedAt time.Time, gauges map[string]float64, infoLabels map[string]string) *Snapshot {
	g := make(map[string]float64, len(gauges))
	maps.Copy(g, gauges)

	l := make(map[string]string, len(infoLabels))
	maps.Copy(l, infoLabels)

	return &Snapshot{
		capturedAt: capturedAt,
		gauges:     g,
		infoLabels: l,
	}
}

func (s *Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// Age returns how long ago the snapshot was captured.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.capturedAt)
}

func (s *Snapshot) Gauge(name string) (float64, bool) {
	v, ok := s.gauges[name]
	return v, ok
}

func (s *Snapshot) Gauges() map[string]float64 {
	return maps.Clone(s.gauges)
}

// GaugeNames returns the gauge names in sorted order.
func (s *Snapshot) GaugeNames() []string {
	return slices.Sorted(maps.Keys(s.gauges))
}

func (s *Snapshot) InfoLabel(name string) (string, bool) {
	v, ok := s.infoLabels[name]
	return v, ok
}

func (s *Snapshot) InfoLabels() map[string]string {
	return maps.Clone(s.infoLabels)
}

// Len returns the total number of entries.
func (s *Snapshot) Len() int {
	return len(s.gauges) + len(s.infoLabels)
}

// Store is a single-writer, multi-reader holder of the current Snapshot.
// Readers never block: Current is a single atomic load.
type Store struct {
	current atomic.Pointer[Snapshot]
}

func NewStore() *Store {
	return &Store{}
}

// Replace installs snap as the current snapshot. A nil snap is ignored.
func (s *Store) Replace(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.current.Store(snap)
}

// Current returns the latest snapshot, or false if no poll has succeeded yet.
func (s *Store) Current() (*Snapshot, bool) {
	snap := s.current.Load()
	return snap, snap != nil
}
