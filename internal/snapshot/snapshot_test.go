package snapshot_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyStore(t *testing.T) {
	store := snapshot.NewStore()

	snap, ok := store.Current()
	assert.False(t, ok)
	assert.Nil(t, snap)
}

func TestReplace(t *testing.T) {
	store := snapshot.NewStore()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := snapshot.New(at, map[string]float64{"linev": 120}, map[string]string{"hostname": "ups01"})
	store.Replace(first)

	got, ok := store.Current()
	require.True(t, ok)
	assert.Same(t, first, got)

	second := snapshot.New(at.Add(time.Minute), map[string]float64{"linev": 121}, nil)
	store.Replace(second)

	got, ok = store.Current()
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, at.Add(time.Minute), got.CapturedAt())
}

func TestReplaceNilIsIgnored(t *testing.T) {
	store := snapshot.NewStore()
	snap := snapshot.New(time.Now(), map[string]float64{"linev": 120}, nil)
	store.Replace(snap)

	store.Replace(nil)

	got, ok := store.Current()
	require.True(t, ok)
	assert.Same(t, snap, got)
}

func TestSnapshotIsImmutable(t *testing.T) {
	gauges := map[string]float64{"linev": 120}
	labels := map[string]string{"hostname": "ups01"}
	snap := snapshot.New(time.Now(), gauges, labels)

	gauges["linev"] = 0
	labels["hostname"] = "changed"

	out := snap.Gauges()
	out["linev"] = -1
	outLabels := snap.InfoLabels()
	outLabels["hostname"] = "changed again"

	v, ok := snap.Gauge("linev")
	require.True(t, ok)
	assert.InDelta(t, 120.0, v, 0)

	host, ok := snap.InfoLabel("hostname")
	require.True(t, ok)
	assert.Equal(t, "ups01", host)
}

func TestSnapshotAccessors(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	snap := snapshot.New(at,
		map[string]float64{"loadpct": 12.3, "bcharge": 100, "linev": 120},
		map[string]string{"hostname": "ups01"},
	)

	assert.Equal(t, []string{"bcharge", "linev", "loadpct"}, snap.GaugeNames())
	assert.Equal(t, 4, snap.Len())
	assert.Equal(t, 30*time.Second, snap.Age(at.Add(30*time.Second)))

	_, ok := snap.Gauge("missing")
	assert.False(t, ok)
}

// Every snapshot written here has all gauges equal to its generation and a
// label carrying the same number, so a torn read would show mixed values.
func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	const (
		generations = 500
		readers     = 8
		keys        = 16
	)

	build := func(gen int) *snapshot.Snapshot {
		gauges := make(map[string]float64, keys)
		for k := 0; k < keys; k++ {
			gauges[fmt.Sprintf("k%02d", k)] = float64(gen)
		}
		return snapshot.New(time.Unix(int64(gen), 0), gauges, map[string]string{"generation": fmt.Sprint(gen)})
	}

	store := snapshot.NewStore()
	store.Replace(build(0))

	done := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, readers)

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}

				snap, ok := store.Current()
				if !ok {
					errs <- fmt.Errorf("store unexpectedly empty")
					return
				}

				want := float64(snap.CapturedAt().Unix())
				for name, v := range snap.Gauges() {
					if v != want {
						errs <- fmt.Errorf("gauge %s = %v, want %v", name, v, want)
						return
					}
				}
				if gen, _ := snap.InfoLabel("generation"); gen != fmt.Sprint(int64(want)) {
					errs <- fmt.Errorf("label generation = %s, want %v", gen, want)
					return
				}
			}
		}()
	}

	for gen := 1; gen <= generations; gen++ {
		store.Replace(build(gen))
	}
	close(done)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	last, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, int64(generations), last.CapturedAt().Unix())
}
