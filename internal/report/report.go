// Package report renders a run's aggregated results for humans and
// machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"stampede/internal/client"
	"stampede/internal/recorder"
	"stampede/internal/threshold"
)

var (
	passMark = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
)

// Text writes a human-readable summary.
func Text(w io.Writer, rr *recorder.RunResult, eval *threshold.Evaluation) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "stampede - Ticket Rush Results")
	fmt.Fprintln(w, "==============================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %v\n", rr.Duration.Round(time.Millisecond))

	total := rr.Counter(client.MetricReqs)
	fmt.Fprintf(w, "Total Requests: %d\n", total)
	if rr.Duration > 0 {
		fmt.Fprintf(w, "Requests/sec:   %.1f\n", float64(total)/rr.Duration.Seconds())
	}

	if len(rr.Rates) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Rates:")
		for _, name := range sortedKeys(rr.Rates) {
			stats := rr.Rates[name]
			fmt.Fprintf(w, "  %-20s %.2f%% (%d of %d)\n",
				name, stats.Rate()*100, stats.Failed, stats.Total)
		}
	}

	if len(rr.Counters) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Counters:")
		for _, name := range sortedKeys(rr.Counters) {
			fmt.Fprintf(w, "  %-20s %d\n", name, rr.Counters[name])
		}
	}

	if len(rr.Trends) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Trends:")
		for _, name := range sortedKeys(rr.Trends) {
			t := rr.Trends[name]
			fmt.Fprintf(w, "  %-20s min=%s avg=%s p50=%s p90=%s p95=%s p99=%s max=%s (n=%d)\n",
				name,
				formatDuration(t.Min), formatDuration(t.Avg),
				formatDuration(t.Percentile(50)), formatDuration(t.Percentile(90)),
				formatDuration(t.Percentile(95)), formatDuration(t.Percentile(99)),
				formatDuration(t.Max), t.Count)
		}
	}

	if eval != nil && len(eval.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, res := range eval.Results {
			mark := passMark
			if !res.Passed {
				mark = failMark
			}
			fmt.Fprintf(w, "  %s %s: %s (actual: %s)\n", mark, res.Metric, res.Expr, res.Actual)
		}
	}
}

type jsonTrend struct {
	Count int64   `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P90Ms float64 `json:"p90_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

type jsonRate struct {
	Total  int64   `json:"total"`
	Failed int64   `json:"failed"`
	Rate   float64 `json:"rate"`
}

// JSON writes a machine-readable summary.
func JSON(w io.Writer, rr *recorder.RunResult, eval *threshold.Evaluation) error {
	output := struct {
		Duration   string                `json:"duration"`
		Counters   map[string]int64      `json:"counters"`
		Rates      map[string]jsonRate   `json:"rates"`
		Trends     map[string]jsonTrend  `json:"trends"`
		Thresholds *threshold.Evaluation `json:"thresholds,omitempty"`
	}{
		Duration:   rr.Duration.Round(time.Millisecond).String(),
		Counters:   rr.Counters,
		Rates:      make(map[string]jsonRate, len(rr.Rates)),
		Trends:     make(map[string]jsonTrend, len(rr.Trends)),
		Thresholds: eval,
	}

	for name, stats := range rr.Rates {
		output.Rates[name] = jsonRate{Total: stats.Total, Failed: stats.Failed, Rate: stats.Rate()}
	}
	for name, t := range rr.Trends {
		output.Trends[name] = jsonTrend{
			Count: t.Count,
			MinMs: toMs(t.Min),
			MaxMs: toMs(t.Max),
			AvgMs: toMs(t.Avg),
			P50Ms: toMs(t.Percentile(50)),
			P90Ms: toMs(t.Percentile(90)),
			P95Ms: toMs(t.Percentile(95)),
			P99Ms: toMs(t.Percentile(99)),
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
