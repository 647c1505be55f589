package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tanq16/parcel/internal/utils"
)

// Unavailable marks a Percent or ETA that cannot be computed.
const Unavailable = -1

type Snapshot struct {
	Downloaded int64
	Total      int64   // -1 when the size is unknown
	Percent    float64 // 0-100 or Unavailable
	Speed      float64 // bytes per second
	ETA        float64 // seconds or Unavailable
	Elapsed    time.Duration
}

func (s Snapshot) String() string {
	text := utils.FormatBytes(uint64(max(s.Downloaded, 0)))
	if s.Total > 0 {
		text += " / " + utils.FormatBytes(uint64(s.Total))
	}
	if s.Percent != Unavailable {
		text += fmt.Sprintf(" (%.1f%%)", s.Percent)
	}
	text += " " + utils.FormatSpeed(s.Speed)
	if s.ETA != Unavailable {
		text += " ETA " + utils.FormatETA(s.ETA)
	}
	return text
}

// Reporter receives byte deltas from fetchers. Negative deltas roll back
// bytes that were discarded.
type Reporter interface {
	Report(segment int, delta int64)
}

// Sink is implemented by whatever presents progress.
type Sink interface {
	OnProgress(Snapshot)
}

type SinkFunc func(Snapshot)

func (f SinkFunc) OnProgress(s Snapshot) { f(s) }

// Compute derives a snapshot from raw totals. expected <= 0 means unknown.
func Compute(downloaded, expected int64, elapsed time.Duration) Snapshot {
	s := Snapshot{
		Downloaded: downloaded,
		Total:      expected,
		Percent:    Unavailable,
		ETA:        Unavailable,
		Elapsed:    elapsed,
	}
	if expected <= 0 {
		s.Total = -1
	} else {
		s.Percent = min(100, 100*float64(downloaded)/float64(expected))
	}
	if secs := elapsed.Seconds(); secs > 0 && downloaded > 0 {
		s.Speed = float64(downloaded) / secs
	}
	if s.Speed > 0 && expected > 0 {
		s.ETA = max(0, float64(expected-downloaded)/s.Speed)
	}
	return s
}

// Aggregator sums deltas from concurrent fetchers without locking.
type Aggregator struct {
	total    atomic.Int64
	segments []atomic.Int64
	expected int64
	start    time.Time

	mu     sync.Mutex
	sink   Sink
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewAggregator(expected int64, segments int) *Aggregator {
	return &Aggregator{
		segments: make([]atomic.Int64, max(segments, 1)),
		expected: expected,
		start:    time.Now(),
	}
}

// Report is safe for concurrent use. Out of range segments only count toward the total.
func (a *Aggregator) Report(segment int, delta int64) {
	a.total.Add(delta)
	if segment >= 0 && segment < len(a.segments) {
		a.segments[segment].Add(delta)
	}
}

func (a *Aggregator) Downloaded() int64 {
	return a.total.Load()
}

func (a *Aggregator) SegmentBytes(segment int) int64 {
	if segment < 0 || segment >= len(a.segments) {
		return 0
	}
	return a.segments[segment].Load()
}

func (a *Aggregator) Snapshot() Snapshot {
	return Compute(a.total.Load(), a.expected, time.Since(a.start))
}

// Start pushes a snapshot to sink on every tick until Stop.
func (a *Aggregator) Start(interval time.Duration, sink Sink) {
	if sink == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopCh != nil {
		return
	}
	a.sink = sink
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go func(stopCh, doneCh chan struct{}) {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sink.OnProgress(a.Snapshot())
			case <-stopCh:
				return
			}
		}
	}(a.stopCh, a.doneCh)
}

// Stop halts the ticker and pushes one final snapshot. Safe to call more than once.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopCh == nil {
		return
	}
	close(a.stopCh)
	<-a.doneCh
	a.sink.OnProgress(a.Snapshot())
	a.stopCh = nil
	a.sink = nil
}
