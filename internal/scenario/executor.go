// Package scenario schedules virtual users according to the configured
// execution model.
package scenario

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"stampede/internal/core"
	"stampede/internal/ratelimit"
)

// Mode selects the scheduling policy.
type Mode string

const (
	// ModeConstantVUs keeps exactly VUs users running for Duration,
	// replacing each finished user with a fresh identity.
	ModeConstantVUs Mode = "constant-vus"
	// ModePerVUIterations starts VUs users, each running Iterations passes,
	// bounded by MaxDuration. Users still in flight at the deadline are
	// abandoned.
	ModePerVUIterations Mode = "per-vu-iterations"
)

// MetricPanics counts virtual-user goroutines that panicked.
const MetricPanics = "vus_panic"

// Options configures an Executor. Validation happens at config load; the
// executor assumes sane values.
type Options struct {
	Mode        Mode
	VUs         int
	Duration    time.Duration // constant-vus: wall-clock run length
	Iterations  int           // per-vu-iterations: passes per user
	MaxDuration time.Duration // per-vu-iterations: overall bound
	StartRate   int           // optional workflow starts per second, 0 = unpaced
}

// Executor runs a workflow under one of the two scheduling modes. Each
// virtual user is a goroutine; the only cross-user state is the Recorder.
type Executor struct {
	opts    Options
	rec     core.Recorder
	limiter *ratelimit.Limiter
	nextID  atomic.Int64
	active  atomic.Int32
	wg      sync.WaitGroup
}

func New(opts Options, rec core.Recorder) *Executor {
	e := &Executor{opts: opts, rec: rec}
	if rec == nil {
		e.rec = core.NullRecorder
	}
	if opts.StartRate > 0 {
		e.limiter = ratelimit.New(opts.StartRate)
	}
	return e
}

// ActiveVUs returns the number of users currently executing a workflow pass.
func (e *Executor) ActiveVUs() int {
	return int(e.active.Load())
}

// Run blocks until the scenario's terminal condition. The context cancels
// the whole run early (interrupt); per-user failures never do.
func (e *Executor) Run(ctx context.Context, w core.Workflow) error {
	switch e.opts.Mode {
	case ModeConstantVUs:
		e.runConstant(ctx, w)
	case ModePerVUIterations:
		e.runPerVU(ctx, w)
	default:
		return fmt.Errorf("unknown scenario mode %q", e.opts.Mode)
	}
	return nil
}

// runConstant holds concurrency at VUs until Duration elapses, then lets
// in-flight users finish. The deadline stops new starts; it does not cancel
// running workflows, so a finishing user is bounded only by its own poll
// limits.
func (e *Executor) runConstant(ctx context.Context, w core.Workflow) {
	stop := make(chan struct{})
	timer := time.NewTimer(e.opts.Duration)
	defer timer.Stop()
	go func() {
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		close(stop)
	}()

	for i := 0; i < e.opts.VUs; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if err := e.limiter.Wait(ctx); err != nil {
					return
				}
				e.runOne(ctx, w)
			}
		}()
	}
	e.wg.Wait()
}

// runPerVU starts VUs users for Iterations passes each. The MaxDuration
// deadline cancels the run context, abandoning in-flight users.
func (e *Executor) runPerVU(ctx context.Context, w core.Workflow) {
	if e.opts.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.MaxDuration)
		defer cancel()
	}
	iterations := e.opts.Iterations
	if iterations < 1 {
		iterations = 1
	}

	for i := 0; i < e.opts.VUs; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for j := 0; j < iterations; j++ {
				if ctx.Err() != nil {
					return
				}
				if err := e.limiter.Wait(ctx); err != nil {
					return
				}
				e.runOne(ctx, w)
			}
		}()
	}
	e.wg.Wait()
}

// runOne executes a single workflow pass under a fresh virtual-user
// identity, recovering panics so one broken user cannot take down the run.
func (e *Executor) runOne(ctx context.Context, w core.Workflow) {
	id := int(e.nextID.Add(1))
	e.active.Add(1)
	defer e.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			e.rec.Increment(MetricPanics)
		}
	}()
	w.Run(ctx, id)
}
