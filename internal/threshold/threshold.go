// Package threshold evaluates pass/fail rules against a run's aggregated
// metrics.
package threshold

import (
	"fmt"
	"strconv"
	"strings"

	"stampede/internal/recorder"
)

// Rule is one pass/fail condition, e.g. {http_req_failed, "rate<0.05"} or
// {http_req_duration, "p(95)<3000"}.
type Rule struct {
	Metric string `yaml:"metric" json:"metric"`
	Expr   string `yaml:"expr" json:"expr"`
}

// Result is the verdict for a single rule.
type Result struct {
	Metric string `json:"metric"`
	Expr   string `json:"expr"`
	Passed bool   `json:"passed"`
	Actual string `json:"actual"`
}

// Evaluation is the verdict for a rule set: Passed is the AND of all rules.
type Evaluation struct {
	Passed  bool     `json:"passed"`
	Results []Result `json:"results"`
}

// Violations returns only the failed rule results.
func (e *Evaluation) Violations() []Result {
	var out []Result
	for _, r := range e.Results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// expr is a parsed threshold expression: an aggregator applied to a metric,
// compared against a bound.
type expr struct {
	agg      string // "rate", "count", "avg", "min", "max", "p"
	quantile float64
	cmp      string // "<", "<=", ">", ">="
	bound    float64
}

// ParseExpr validates a threshold expression. Called at config load so a
// bad rule fails the run before any virtual user starts.
func ParseExpr(s string) error {
	_, err := parseExpr(s)
	return err
}

func parseExpr(s string) (expr, error) {
	s = strings.ReplaceAll(s, " ", "")
	var e expr
	idx := strings.IndexAny(s, "<>")
	if idx < 0 {
		return e, fmt.Errorf("threshold %q: missing comparator", s)
	}
	left, rest := s[:idx], s[idx:]

	e.cmp = rest[:1]
	rest = rest[1:]
	if strings.HasPrefix(rest, "=") {
		e.cmp += "="
		rest = rest[1:]
	}

	bound, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return e, fmt.Errorf("threshold %q: invalid bound %q", s, rest)
	}
	e.bound = bound

	switch {
	case left == "rate" || left == "count" || left == "avg" || left == "min" || left == "max":
		e.agg = left
	case strings.HasPrefix(left, "p(") && strings.HasSuffix(left, ")"):
		q, err := strconv.ParseFloat(left[2:len(left)-1], 64)
		if err != nil || q < 0 || q > 100 {
			return e, fmt.Errorf("threshold %q: invalid percentile %q", s, left)
		}
		e.agg = "p"
		e.quantile = q
	default:
		return e, fmt.Errorf("threshold %q: unknown aggregator %q", s, left)
	}
	return e, nil
}

func (e expr) compare(actual float64) bool {
	switch e.cmp {
	case "<":
		return actual < e.bound
	case "<=":
		return actual <= e.bound
	case ">":
		return actual > e.bound
	case ">=":
		return actual >= e.bound
	}
	return false
}

// Evaluate checks every rule against the run result. Duration aggregates
// (avg, min, max, p(N)) are compared in milliseconds; a trend with no
// samples passes vacuously. Returns an error only for malformed
// expressions, which config validation should have caught already.
func Evaluate(rules []Rule, rr *recorder.RunResult) (*Evaluation, error) {
	eval := &Evaluation{Passed: true}
	for _, rule := range rules {
		e, err := parseExpr(rule.Expr)
		if err != nil {
			return nil, err
		}

		res := Result{Metric: rule.Metric, Expr: rule.Expr}

		switch e.agg {
		case "rate":
			stats := rr.Rates[rule.Metric]
			if stats.Total == 0 {
				res.Passed = true
				res.Actual = "no observations"
				break
			}
			actual := stats.Rate()
			res.Passed = e.compare(actual)
			res.Actual = fmt.Sprintf("%.2f%%", actual*100)
		case "count":
			actual := float64(rr.Counter(rule.Metric))
			res.Passed = e.compare(actual)
			res.Actual = strconv.FormatInt(rr.Counter(rule.Metric), 10)
		default:
			stats, ok := rr.Trends[rule.Metric]
			if !ok || stats.Count == 0 {
				res.Passed = true
				res.Actual = "no samples"
				break
			}
			var ms float64
			switch e.agg {
			case "avg":
				ms = float64(stats.Avg.Microseconds()) / 1000
			case "min":
				ms = float64(stats.Min.Microseconds()) / 1000
			case "max":
				ms = float64(stats.Max.Microseconds()) / 1000
			case "p":
				ms = float64(stats.Percentile(e.quantile).Microseconds()) / 1000
			}
			res.Passed = e.compare(ms)
			res.Actual = fmt.Sprintf("%.2fms", ms)
		}

		if !res.Passed {
			eval.Passed = false
		}
		eval.Results = append(eval.Results, res)
	}
	return eval, nil
}
