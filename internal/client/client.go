// Package client issues HTTP requests against the ticketing service and
// records per-request metrics.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"stampede/internal/core"
)

// Built-in metrics recorded for every HTTP interaction.
const (
	MetricReqDuration = "http_req_duration"
	MetricReqs        = "http_reqs"
	MetricReqFailed   = "http_req_failed"
)

// maxBodySize limits how much of a response body is read for parsing.
const maxBodySize = 10 * 1024 * 1024 // 10MB

// Response is the client-observable result of one request.
type Response struct {
	Status  int
	Body    gjson.Result
	Latency time.Duration
}

// Client wraps an http.Client with base-URL resolution, metric recording,
// and optional debug logging. It never retries; retry policy belongs to the
// virtual user.
type Client struct {
	base  string
	hc    *http.Client
	rec   core.Recorder
	debug *DebugLogger
}

func New(baseURL string, hc *http.Client, rec core.Recorder) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if rec == nil {
		rec = core.NullRecorder
	}
	return &Client{base: baseURL, hc: hc, rec: rec}
}

// SetDebug enables request/response logging. A nil logger disables it.
func (c *Client) SetDebug(d *DebugLogger) {
	c.debug = d
}

// Do issues one request and returns status, parsed body, and latency.
// Every call records exactly one latency sample, one http_reqs increment,
// and one http_req_failed observation (failed = transport error or status
// >= 400). A malformed JSON body yields a zero gjson.Result; field lookups
// on it report missing, they never panic.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (Response, error) {
	vuID := core.VUIDFromContext(ctx)
	label := method + " " + path

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return Response{}, fmt.Errorf("building request %s: %w", label, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.debug.LogRequest(vuID, label, req)

	start := time.Now()
	resp, err := c.hc.Do(req)
	latency := time.Since(start)

	c.rec.RecordDuration(MetricReqDuration, latency)
	c.rec.Increment(MetricReqs)

	if err != nil {
		c.rec.RecordRate(MetricReqFailed, true)
		c.debug.LogError(vuID, label, err.Error(), latency)
		return Response{Latency: latency}, fmt.Errorf("%s: %w", label, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	_, _ = io.Copy(io.Discard, resp.Body) // drain errors are ignorable

	c.rec.RecordRate(MetricReqFailed, resp.StatusCode >= 400)
	c.debug.LogResponse(vuID, label, resp, respBody, latency)

	var parsed gjson.Result
	if gjson.ValidBytes(respBody) {
		parsed = gjson.ParseBytes(respBody)
	}

	return Response{
		Status:  resp.StatusCode,
		Body:    parsed,
		Latency: latency,
	}, nil
}
