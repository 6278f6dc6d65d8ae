// Package recorder accumulates counters, rates, and latency trends from
// concurrently running virtual users.
package recorder

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Trend histograms track values from 1µs up to 10 minutes with 3
// significant figures. Values are recorded in microseconds.
const (
	histMinValue = 1
	histMaxValue = int64(10 * time.Minute / time.Microsecond)
	histSigFigs  = 3
)

// Recorder is the single piece of shared mutable state in a run. Writes are
// commutative accumulations, so concurrent Increment/RecordDuration/
// RecordRate calls need no ordering, only no lost updates.
type Recorder struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	rates    map[string]*rateCounter
	trends   map[string]*trend
	start    time.Time
}

type rateCounter struct {
	total  atomic.Int64
	failed atomic.Int64
}

type trend struct {
	mu    sync.Mutex
	hist  *hdrhistogram.Histogram
	sum   time.Duration
	min   time.Duration
	max   time.Duration
	count int64
}

func New() *Recorder {
	return &Recorder{
		counters: make(map[string]*atomic.Int64),
		rates:    make(map[string]*rateCounter),
		trends:   make(map[string]*trend),
		start:    time.Now(),
	}
}

// DeclareCounters registers counters at zero so they appear in the snapshot
// even if never incremented.
func (r *Recorder) DeclareCounters(names ...string) {
	for _, name := range names {
		r.counter(name)
	}
}

// Increment adds one to the named counter. Thread-safe.
func (r *Recorder) Increment(name string) {
	r.counter(name).Add(1)
}

// RecordRate records one pass/fail observation for the named rate metric.
// Thread-safe.
func (r *Recorder) RecordRate(name string, failed bool) {
	rc := r.rate(name)
	rc.total.Add(1)
	if failed {
		rc.failed.Add(1)
	}
}

// RecordDuration records one timed sample for the named trend metric.
// Thread-safe.
func (r *Recorder) RecordDuration(name string, d time.Duration) {
	t := r.trend(name)
	t.mu.Lock()
	defer t.mu.Unlock()

	us := d.Microseconds()
	if us < histMinValue {
		us = histMinValue
	}
	if us > histMaxValue {
		us = histMaxValue
	}
	_ = t.hist.RecordValue(us)

	t.sum += d
	if t.count == 0 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.count++
}

func (r *Recorder) counter(name string) *atomic.Int64 {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[name]; ok {
		return c
	}
	c = new(atomic.Int64)
	r.counters[name] = c
	return c
}

func (r *Recorder) rate(name string) *rateCounter {
	r.mu.RLock()
	rc, ok := r.rates[name]
	r.mu.RUnlock()
	if ok {
		return rc
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rc, ok = r.rates[name]; ok {
		return rc
	}
	rc = new(rateCounter)
	r.rates[name] = rc
	return rc
}

func (r *Recorder) trend(name string) *trend {
	r.mu.RLock()
	t, ok := r.trends[name]
	r.mu.RUnlock()
	if ok {
		return t
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok = r.trends[name]; ok {
		return t
	}
	t = &trend{hist: hdrhistogram.New(histMinValue, histMaxValue, histSigFigs)}
	r.trends[name] = t
	return t
}

// Snapshot returns an immutable copy of all accumulated metrics. Safe to
// call while writers are active (used for streaming progress); the final
// snapshot should be taken after all virtual users have stopped.
func (r *Recorder) Snapshot() *RunResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := &RunResult{
		Duration: time.Since(r.start),
		Counters: make(map[string]int64, len(r.counters)),
		Rates:    make(map[string]RateStats, len(r.rates)),
		Trends:   make(map[string]TrendStats, len(r.trends)),
	}
	for name, c := range r.counters {
		result.Counters[name] = c.Load()
	}
	for name, rc := range r.rates {
		result.Rates[name] = RateStats{
			Total:  rc.total.Load(),
			Failed: rc.failed.Load(),
		}
	}
	for name, t := range r.trends {
		result.Trends[name] = t.snapshot()
	}
	return result
}

func (t *trend) snapshot() TrendStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := TrendStats{
		Count: t.count,
		Min:   t.min,
		Max:   t.max,
	}
	if t.count > 0 {
		stats.Avg = t.sum / time.Duration(t.count)
	}
	h := hdrhistogram.New(histMinValue, histMaxValue, histSigFigs)
	h.Merge(t.hist)
	stats.hist = h
	return stats
}
