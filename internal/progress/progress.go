// Package progress accumulates percentage progress from concurrent workers
// and publishes it on a ticker
package progress

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is how often the publisher reports
const DefaultInterval = 50 * time.Millisecond

// Tracker is a lock-free percentage accumulator. Workers call Add; a
// publisher goroutine reports increases to the callback.
type Tracker struct {
	bits atomic.Uint64 // math.Float64bits of the percentage

	fn       func(percent float64)
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	last     float64 // last published value, publisher only
}

// NewTracker starts a publisher calling fn with strictly increasing values.
// fn may be nil.
func NewTracker(fn func(percent float64), interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Tracker{
		fn:       fn,
		interval: interval,
		done:     make(chan struct{}),
	}
	if fn != nil {
		t.ticker = time.NewTicker(interval)
		t.wg.Add(1)
		go t.publish()
	}
	return t
}

func (t *Tracker) publish() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			t.emit(t.Value())
		}
	}
}

func (t *Tracker) emit(v float64) {
	if t.fn != nil && v > t.last {
		t.last = v
		t.fn(v)
	}
}

// Value returns the current percentage
func (t *Tracker) Value() float64 {
	return math.Float64frombits(t.bits.Load())
}

// Add increases the percentage by delta, capped at 100
func (t *Tracker) Add(delta float64) {
	t.addCapped(delta, 100)
}

func (t *Tracker) addCapped(delta, limit float64) {
	if delta <= 0 {
		return
	}
	for {
		old := t.bits.Load()
		cur := math.Float64frombits(old)
		if cur >= limit {
			return
		}
		v := min(cur+delta, limit)
		if t.bits.CompareAndSwap(old, math.Float64bits(v)) {
			return
		}
	}
}

// raiseTo sets the percentage to v unless it is already higher
func (t *Tracker) raiseTo(v float64) {
	v = min(v, 100)
	for {
		old := t.bits.Load()
		if math.Float64frombits(old) >= v {
			return
		}
		if t.bits.CompareAndSwap(old, math.Float64bits(v)) {
			return
		}
	}
}

// Stage starts a stage worth budget percent split across units steps
func (t *Tracker) Stage(budget float64, units int) *Stage {
	s := &Stage{t: t, end: t.Value() + budget}
	if units > 0 {
		s.perUnit = budget / float64(units)
	}
	return s
}

// Stop ends publishing without reporting completion
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		if t.ticker != nil {
			t.ticker.Stop()
		}
		t.wg.Wait()
	})
}

// Finish sets the percentage to exactly 100, stops the publisher and
// reports 100
func (t *Tracker) Finish() {
	t.bits.Store(math.Float64bits(100))
	t.Stop()
	t.emit(100)
}

// Stage is a slice of the overall percentage
type Stage struct {
	t       *Tracker
	perUnit float64
	end     float64
}

// Step records n finished units
func (s *Stage) Step(n int) {
	if n <= 0 {
		return
	}
	s.t.addCapped(s.perUnit*float64(n), min(s.end, 100))
}

// Complete tops the stage up to its full budget
func (s *Stage) Complete() {
	s.t.raiseTo(s.end)
}
