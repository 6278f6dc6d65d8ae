package recorder

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// RunResult is the aggregated state of a finished (or in-flight) run.
type RunResult struct {
	Duration time.Duration
	Counters map[string]int64
	Rates    map[string]RateStats
	Trends   map[string]TrendStats
}

// Counter returns the named counter's value, zero if never touched.
func (r *RunResult) Counter(name string) int64 {
	return r.Counters[name]
}

// RateStats is a pass/fail ratio metric.
type RateStats struct {
	Total  int64
	Failed int64
}

// Rate returns the failed fraction in [0, 1]. Zero observations yield 0.
func (s RateStats) Rate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Total)
}

// TrendStats is a latency distribution snapshot.
type TrendStats struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration

	hist *hdrhistogram.Histogram
}

// Percentile returns the value at quantile q (0-100) using HdrHistogram's
// highest-equivalent-value lookup at microsecond resolution with 3
// significant figures. Returns 0 when the trend has no samples.
func (s TrendStats) Percentile(q float64) time.Duration {
	if s.hist == nil || s.Count == 0 {
		return 0
	}
	return time.Duration(s.hist.ValueAtQuantile(q)) * time.Microsecond
}
