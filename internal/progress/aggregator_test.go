package progress

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	s := Compute(50, 200, 10*time.Second)
	assert.Equal(t, int64(200), s.Total)
	assert.InDelta(t, 25.0, s.Percent, 1e-9)
	assert.InDelta(t, 5.0, s.Speed, 1e-9)
	assert.InDelta(t, 30.0, s.ETA, 1e-9)
}

func TestComputeUnknownSize(t *testing.T) {
	s := Compute(1024, -1, 2*time.Second)
	assert.Equal(t, int64(-1), s.Total)
	assert.Equal(t, float64(Unavailable), s.Percent)
	assert.Equal(t, float64(Unavailable), s.ETA)
	assert.InDelta(t, 512.0, s.Speed, 1e-9)
}

func TestComputeZeroElapsed(t *testing.T) {
	s := Compute(100, 1000, 0)
	assert.Zero(t, s.Speed)
	assert.Equal(t, float64(Unavailable), s.ETA)
	assert.InDelta(t, 10.0, s.Percent, 1e-9)
}

func TestComputePercentCapped(t *testing.T) {
	s := Compute(300, 200, time.Second)
	assert.Equal(t, 100.0, s.Percent)
	assert.Zero(t, s.ETA)
}

func TestAggregatorConcurrentReports(t *testing.T) {
	const (
		segments   = 16
		perSegment = 5000
	)
	agg := NewAggregator(-1, segments)

	var wg sync.WaitGroup
	var want atomic.Int64
	for seg := range segments {
		wg.Add(1)
		go func(seg int) {
			defer wg.Done()
			for i := range perSegment {
				delta := int64(i%7 + 1)
				agg.Report(seg, delta)
				want.Add(delta)
			}
		}(seg)
	}
	wg.Wait()

	assert.Equal(t, want.Load(), agg.Downloaded())
	var sum int64
	for seg := range segments {
		sum += agg.SegmentBytes(seg)
	}
	assert.Equal(t, agg.Downloaded(), sum)
}

func TestAggregatorRollback(t *testing.T) {
	agg := NewAggregator(100, 2)
	agg.Report(0, 40)
	agg.Report(1, 30)
	agg.Report(0, -40)
	agg.Report(1, -30)
	agg.Report(5, 100) // single stream after fallback
	assert.Equal(t, int64(100), agg.Downloaded())
	assert.Zero(t, agg.SegmentBytes(0))
	assert.Zero(t, agg.SegmentBytes(5))
	assert.Equal(t, 100.0, agg.Snapshot().Percent)
}

func TestAggregatorStartStop(t *testing.T) {
	agg := NewAggregator(10, 1)

	var mu sync.Mutex
	var snaps []Snapshot
	agg.Start(5*time.Millisecond, SinkFunc(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, s)
	}))
	agg.Report(0, 10)
	time.Sleep(20 * time.Millisecond)
	agg.Stop()
	agg.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1]
	assert.Equal(t, int64(10), last.Downloaded)
	assert.Equal(t, 100.0, last.Percent)
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{Downloaded: 1024, Total: 2048, Percent: 50, Speed: 1024, ETA: 1}
	assert.Equal(t, "1.00 KB / 2.00 KB (50.0%) 1.00 KB/s ETA 1s", s.String())

	s = Snapshot{Downloaded: 10, Total: -1, Percent: Unavailable, ETA: Unavailable}
	assert.Equal(t, "10 B 0 B/s", s.String())
}
