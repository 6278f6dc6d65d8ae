// Package progress prints a live status line while a run executes.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"stampede/internal/client"
	"stampede/internal/recorder"
)

type Progress struct {
	startTime time.Time
	rec       *recorder.Recorder
	activeVUs func() int
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

// New creates a Progress reading live snapshots from the recorder.
// activeVUs may be nil when the executor is not wired in yet.
func New(rec *recorder.Recorder, activeVUs func() int, quiet bool) *Progress {
	return &Progress{
		rec:       rec,
		activeVUs: activeVUs,
		quiet:     quiet,
		output:    os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(1 * time.Second)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printStatus()
		}
	}
}

func (p *Progress) printStatus() {
	rr := p.rec.Snapshot()
	elapsed := time.Since(p.startTime).Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60

	total := rr.Counter(client.MetricReqs)
	failed := rr.Rates[client.MetricReqFailed]
	rps := 0.0
	if elapsed > 0 {
		rps = float64(total) / elapsed.Seconds()
	}
	vus := 0
	if p.activeVUs != nil {
		vus = p.activeVUs()
	}

	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K[%02d:%02d] VUs: %d | Requests: %d | RPS: %.1f | Failed: %.1f%%",
		mins, secs, vus, total, rps, failed.Rate()*100)
	p.mu.Unlock()
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
