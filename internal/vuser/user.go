// Package vuser implements the simulated ticket buyer: enter the waiting
// queue, poll until admitted, pick a seat, and attempt a purchase.
package vuser

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"stampede/internal/client"
	"stampede/internal/core"
)

// Flow controls how deep into the workflow a virtual user goes. The
// shallower flows exist for stressing queue entry and polling in isolation.
type Flow string

const (
	FlowEnter    Flow = "enter"    // queue entry only
	FlowPoll     Flow = "poll"     // entry + poll until admitted
	FlowPurchase Flow = "purchase" // the full journey
)

// PurchasePolicy decides what happens after a failed purchase attempt.
type PurchasePolicy string

const (
	// PurchaseSingle gives up after the first failed attempt.
	PurchaseSingle PurchasePolicy = "single"
	// PurchaseRetry re-fetches the seat list and tries again until a
	// purchase succeeds or the seats run out.
	PurchaseRetry PurchasePolicy = "retry"
)

// Queue status values reported by the ticketing service.
const (
	statusActive  = "ACTIVE"
	statusSoldOut = "SOLD_OUT"
)

// Custom metrics, named after what each counts.
const (
	MetricEnterSuccess    = "enter_success"
	MetricEnterFail       = "enter_fail"
	MetricPollSuccess     = "poll_success"
	MetricPollFail        = "poll_fail"
	MetricActivated       = "activated"
	MetricPurchaseSuccess = "purchase_success"
	MetricPurchaseFail    = "purchase_fail"
	MetricQueueWaitTime   = "queue_wait_time"
)

// Config parameterizes the workflow. The five original load scenarios are
// all expressible as values of this struct.
type Config struct {
	Flow         Flow
	TokenField   string // response field holding the admission token ("token" or "uuid")
	PollInterval time.Duration
	MaxPolls     int
	SeatsAuth    bool // send X-Queue-Token when listing seats
	Purchase     PurchasePolicy
}

// User runs the workflow. One User instance is shared by all virtual-user
// goroutines; per-run state stays on the calling goroutine's stack.
type User struct {
	cfg   Config
	cl    *client.Client
	rec   core.Recorder
	clock core.Clock
}

func New(cfg Config, cl *client.Client, rec core.Recorder) *User {
	if cfg.TokenField == "" {
		cfg.TokenField = "token"
	}
	if cfg.Flow == "" {
		cfg.Flow = FlowPurchase
	}
	if cfg.Purchase == "" {
		cfg.Purchase = PurchaseRetry
	}
	if rec == nil {
		rec = core.NullRecorder
	}
	return &User{cfg: cfg, cl: cl, rec: rec, clock: core.RealClock{}}
}

// SetClock replaces the wall clock used for wait-time measurement.
func (u *User) SetClock(clock core.Clock) {
	u.clock = clock
}

// Run executes one complete pass through the state machine and tallies the
// terminal outcome. All transport and protocol errors resolve to an outcome;
// nothing escapes to the caller.
func (u *User) Run(ctx context.Context, vuID int) core.Outcome {
	ctx = core.ContextWithVUID(ctx, vuID)
	out := u.run(ctx)
	u.rec.Increment(out.Counter())
	return out
}

func (u *User) run(ctx context.Context) core.Outcome {
	token, out := u.enter(ctx)
	if out != core.OutcomeSuccess || u.cfg.Flow == FlowEnter {
		return out
	}

	out = u.waitForAdmission(ctx, token)
	if out != core.OutcomeSuccess || u.cfg.Flow == FlowPoll {
		return out
	}

	return u.buy(ctx, token)
}

// enter requests an admission token. Anything short of HTTP 200 with a
// token field present is a terminal entry failure.
func (u *User) enter(ctx context.Context) (string, core.Outcome) {
	resp, err := u.cl.Do(ctx, http.MethodPost, "/api/queues/tokens",
		map[string]string{"Content-Type": "application/json"}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", core.OutcomeAborted
		}
		u.rec.Increment(MetricEnterFail)
		return "", core.OutcomeEnterFail
	}
	token := resp.Body.Get(u.cfg.TokenField).String()
	if resp.Status != http.StatusOK || token == "" {
		u.rec.Increment(MetricEnterFail)
		return "", core.OutcomeEnterFail
	}
	u.rec.Increment(MetricEnterSuccess)
	return token, core.OutcomeSuccess
}

// waitForAdmission polls the queue status until ACTIVE, SOLD_OUT, or the
// attempt bound is exhausted. Exactly one queue_wait_time sample is
// recorded per user for each of those three exits; an abandoned user
// records none.
func (u *User) waitForAdmission(ctx context.Context, token string) core.Outcome {
	waitStart := u.clock.Now()
	out := u.poll(ctx, token)
	if out != core.OutcomeAborted {
		u.rec.RecordDuration(MetricQueueWaitTime, u.clock.Since(waitStart))
	}
	return out
}

func (u *User) poll(ctx context.Context, token string) core.Outcome {
	path := "/api/queues/tokens/" + token
	for i := 0; i < u.cfg.MaxPolls; i++ {
		if err := sleep(ctx, u.cfg.PollInterval); err != nil {
			return core.OutcomeAborted
		}

		resp, err := u.cl.Do(ctx, http.MethodGet, path, nil, nil)
		if err != nil {
			if ctx.Err() != nil {
				return core.OutcomeAborted
			}
			u.rec.Increment(MetricPollFail)
			continue
		}
		if resp.Status != http.StatusOK {
			u.rec.Increment(MetricPollFail)
			continue
		}
		u.rec.Increment(MetricPollSuccess)

		switch resp.Body.Get("status").String() {
		case statusActive:
			u.rec.Increment(MetricActivated)
			return core.OutcomeSuccess
		case statusSoldOut:
			u.rec.Increment(MetricActivated)
			return core.OutcomeSoldOut
		}
		// WAITING or anything unrecognized: keep polling.
	}
	return core.OutcomeTimeout
}

// buy loops seat listing and purchase until a terminal outcome. Under the
// single-attempt policy the loop body runs at most once.
func (u *User) buy(ctx context.Context, token string) core.Outcome {
	for {
		seat, out := u.pickSeat(ctx, token)
		if out != core.OutcomeSuccess {
			return out
		}

		body := fmt.Sprintf(`{"seatNumber":%s}`, seat.Get("seatNumber").Raw)
		resp, err := u.cl.Do(ctx, http.MethodPost, "/api/tickets", map[string]string{
			"Content-Type":  "application/json",
			"X-Queue-Token": token,
		}, []byte(body))
		if err != nil {
			if ctx.Err() != nil {
				return core.OutcomeAborted
			}
			u.rec.Increment(MetricPurchaseFail)
			return core.OutcomePurchaseFail
		}
		if resp.Status == http.StatusOK {
			u.rec.Increment(MetricPurchaseSuccess)
			return core.OutcomeSuccess
		}

		u.rec.Increment(MetricPurchaseFail)
		if u.cfg.Purchase == PurchaseSingle {
			return core.OutcomePurchaseFail
		}
		if ctx.Err() != nil {
			return core.OutcomeAborted
		}
		// Retry policy: re-fetch the seat snapshot and try again.
	}
}

// pickSeat fetches the current seat snapshot and selects one available seat
// uniformly at random. An empty available subset means the show sold out.
func (u *User) pickSeat(ctx context.Context, token string) (gjson.Result, core.Outcome) {
	var headers map[string]string
	if u.cfg.SeatsAuth {
		headers = map[string]string{"X-Queue-Token": token}
	}
	resp, err := u.cl.Do(ctx, http.MethodGet, "/api/seats", headers, nil)
	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, core.OutcomeAborted
		}
		return gjson.Result{}, core.OutcomeSeatsFail
	}
	if resp.Status != http.StatusOK {
		return gjson.Result{}, core.OutcomeSeatsFail
	}

	var available []gjson.Result
	resp.Body.ForEach(func(_, seat gjson.Result) bool {
		if seat.Get("status").String() == "available" {
			available = append(available, seat)
		}
		return true
	})
	if len(available) == 0 {
		return gjson.Result{}, core.OutcomeSoldOut
	}
	return available[rand.Intn(len(available))], core.OutcomeSuccess
}

// sleep blocks for d or until the context is canceled, whichever first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
