// Package core defines the fundamental interfaces and types for stampede.
package core

import (
	"context"
	"time"
)

// Outcome is the terminal state of one virtual user's pass through the
// ticket-purchase workflow.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeEnterFail
	OutcomeTimeout
	OutcomeSoldOut
	OutcomeSeatsFail
	OutcomePurchaseFail
	OutcomeAborted
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:      "success",
	OutcomeEnterFail:    "enter_fail",
	OutcomeTimeout:      "timeout",
	OutcomeSoldOut:      "sold_out",
	OutcomeSeatsFail:    "seats_fail",
	OutcomePurchaseFail: "purchase_fail",
	OutcomeAborted:      "aborted",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Counter returns the counter name under which this outcome is tallied.
func (o Outcome) Counter() string {
	return "vus_" + o.String()
}

// OutcomeCounters returns the counter names for every outcome category, so a
// run can declare them upfront and report explicit zeroes.
func OutcomeCounters() []string {
	names := make([]string, 0, len(outcomeNames))
	for o := OutcomeSuccess; o <= OutcomeAborted; o++ {
		names = append(names, o.Counter())
	}
	return names
}

// Workflow is one virtual user's journey through the ticketing service.
// Implementations must be safe for concurrent Run calls; per-user state
// (token, poll count, selected seat) lives on the goroutine's stack.
type Workflow interface {
	Run(ctx context.Context, vuID int) Outcome
}

// Recorder is the interface virtual users use to record metrics.
// All methods must be safe for concurrent use with no lost updates.
type Recorder interface {
	Increment(name string)
	RecordDuration(name string, d time.Duration)
	RecordRate(name string, failed bool)
}

// NullRecorder discards all metrics.
var NullRecorder Recorder = nullRecorder{}

type nullRecorder struct{}

func (nullRecorder) Increment(string)                     {}
func (nullRecorder) RecordDuration(string, time.Duration) {}
func (nullRecorder) RecordRate(string, bool)              {}

// Context key for passing the virtual user ID to the client layer.
type contextKey string

const vuIDContextKey contextKey = "vuID"

func ContextWithVUID(ctx context.Context, vuID int) context.Context {
	return context.WithValue(ctx, vuIDContextKey, vuID)
}

func VUIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(vuIDContextKey).(int); ok {
		return id
	}
	return 0
}
