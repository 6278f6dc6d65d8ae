package threshold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stampede/internal/recorder"
)

func resultWithFailureRate(t *testing.T, failed, total int) *recorder.RunResult {
	t.Helper()
	rec := recorder.New()
	for i := 0; i < total; i++ {
		rec.RecordRate("http_req_failed", i < failed)
	}
	return rec.Snapshot()
}

func TestEvaluate_FailureRate(t *testing.T) {
	rules := []Rule{{Metric: "http_req_failed", Expr: "rate<0.05"}}

	eval, err := Evaluate(rules, resultWithFailureRate(t, 3, 100))
	require.NoError(t, err)
	assert.True(t, eval.Passed, "3% failure rate is under the 5% bound")

	eval, err = Evaluate(rules, resultWithFailureRate(t, 6, 100))
	require.NoError(t, err)
	assert.False(t, eval.Passed, "6% failure rate breaches the 5% bound")
	require.Len(t, eval.Violations(), 1)
	assert.Equal(t, "6.00%", eval.Violations()[0].Actual)
}

func TestEvaluate_Percentile(t *testing.T) {
	rec := recorder.New()
	for ms := 1; ms <= 100; ms++ {
		rec.RecordDuration("http_req_duration", time.Duration(ms)*time.Millisecond)
	}
	rr := rec.Snapshot()

	eval, err := Evaluate([]Rule{{Metric: "http_req_duration", Expr: "p(95)<3000"}}, rr)
	require.NoError(t, err)
	assert.True(t, eval.Passed)

	eval, err = Evaluate([]Rule{{Metric: "http_req_duration", Expr: "p(95)<50"}}, rr)
	require.NoError(t, err)
	assert.False(t, eval.Passed, "p95 of 1..100ms is around 95ms")
}

func TestEvaluate_TrendAggregates(t *testing.T) {
	rec := recorder.New()
	rec.RecordDuration("latency", 10*time.Millisecond)
	rec.RecordDuration("latency", 30*time.Millisecond)
	rr := rec.Snapshot()

	cases := []struct {
		expr string
		pass bool
	}{
		{"avg<25", true},
		{"avg<15", false},
		{"min>=10", true},
		{"max<=30", true},
		{"max<30", false},
	}
	for _, tc := range cases {
		eval, err := Evaluate([]Rule{{Metric: "latency", Expr: tc.expr}}, rr)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.pass, eval.Passed, tc.expr)
	}
}

func TestEvaluate_Count(t *testing.T) {
	rec := recorder.New()
	for i := 0; i < 5; i++ {
		rec.Increment("purchase_success")
	}
	rr := rec.Snapshot()

	eval, err := Evaluate([]Rule{{Metric: "purchase_success", Expr: "count>=5"}}, rr)
	require.NoError(t, err)
	assert.True(t, eval.Passed)

	eval, err = Evaluate([]Rule{{Metric: "purchase_success", Expr: "count>5"}}, rr)
	require.NoError(t, err)
	assert.False(t, eval.Passed)
}

func TestEvaluate_EmptyMetricsPassVacuously(t *testing.T) {
	rr := recorder.New().Snapshot()

	eval, err := Evaluate([]Rule{
		{Metric: "http_req_duration", Expr: "p(99)<100"},
		{Metric: "http_req_failed", Expr: "rate<0.05"},
	}, rr)
	require.NoError(t, err)
	assert.True(t, eval.Passed)
	assert.Equal(t, "no samples", eval.Results[0].Actual)
	assert.Equal(t, "no observations", eval.Results[1].Actual)
}

func TestEvaluate_OverallIsANDOfRules(t *testing.T) {
	rec := recorder.New()
	rec.RecordRate("http_req_failed", false)
	rec.RecordDuration("http_req_duration", 500*time.Millisecond)
	rr := rec.Snapshot()

	eval, err := Evaluate([]Rule{
		{Metric: "http_req_failed", Expr: "rate<0.05"},   // passes
		{Metric: "http_req_duration", Expr: "p(95)<100"}, // fails, 500ms sample
	}, rr)
	require.NoError(t, err)
	assert.False(t, eval.Passed)
	assert.True(t, eval.Results[0].Passed)
	assert.False(t, eval.Results[1].Passed)
}

func TestParseExpr(t *testing.T) {
	valid := []string{"rate<0.05", "p(95)<3000", "p(99.9)<=1500", "avg<200", "count>=1", "max < 100"}
	for _, s := range valid {
		assert.NoError(t, ParseExpr(s), s)
	}

	invalid := []string{"", "rate", "rate=0.05", "p(101)<10", "p95<10", "median<10", "rate<abc"}
	for _, s := range invalid {
		assert.Error(t, ParseExpr(s), s)
	}
}
