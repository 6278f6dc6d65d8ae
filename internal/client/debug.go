package client

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxBodyLogSize = 1024

// DebugLogger writes request/response traces for verbose runs. A nil
// *DebugLogger is a no-op, so callers never need to guard.
type DebugLogger struct {
	out io.Writer
	mu  sync.Mutex
}

func NewDebugLogger(out io.Writer) *DebugLogger {
	return &DebugLogger{out: out}
}

func (d *DebugLogger) LogRequest(vuID int, label string, req *http.Request) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n[VU %d] >>> %s\n", vuID, label)
	fmt.Fprintf(&buf, "  URL: %s\n", req.URL.String())

	if len(req.Header) > 0 {
		buf.WriteString("  Headers:\n")
		for name, values := range req.Header {
			fmt.Fprintf(&buf, "    %s: %s\n", name, strings.Join(values, ", "))
		}
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		if err == nil && len(body) > 0 {
			req.Body = io.NopCloser(bytes.NewReader(body))
			fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
		}
	}
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogResponse(vuID int, label string, resp *http.Response, body []byte, latency time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[VU %d] <<< %s (%s)\n", vuID, label, latency.Round(time.Millisecond))
	fmt.Fprintf(&buf, "  Status: %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))

	if len(body) > 0 {
		fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
	}
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogError(vuID int, label string, errMsg string, latency time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[VU %d] !!! %s (%s)\n  %s\n",
		vuID, label, latency.Round(time.Millisecond), errMsg)
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return fmt.Sprintf("%s... (truncated, %d bytes total)", body[:maxBodyLogSize], len(body))
}
