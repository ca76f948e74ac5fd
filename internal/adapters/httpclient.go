package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

const (
	// DefaultTimeout bounds plain HTTP adapter calls.
	DefaultTimeout = 15 * time.Second
	// BrowserTimeout bounds browser-rendered operations.
	BrowserTimeout = 60 * time.Second

	maxRetries = 3
	baseDelay  = time.Second
)

// APIError is a non-2xx response from an upstream service. Callers branch on
// Status instead of parsing error strings.
type APIError struct {
	Service string
	Status  int
	Body    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: upstream status %d", e.Service, e.Status)
}

// Client wraps one upstream service: shared timeout, bounded retries with
// exponential backoff, and an api_logs row per call. Retries honor
// Retry-After on 429 and 5xx responses.
type Client struct {
	service string
	http    *http.Client
	logs    store.APILogStore
	logger  *slog.Logger
}

func NewClient(service string, timeout time.Duration, logs store.APILogStore, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		service: service,
		http:    &http.Client{Timeout: timeout},
		logs:    logs,
		logger:  logger,
	}
}

// Request is one adapter call. DealershipID scopes the api_logs row.
type Request struct {
	Method       string
	URL          string
	Header       http.Header
	Body         []byte
	DealershipID *int64
}

// Do executes the request with retries. Transport errors and retryable
// statuses (429, 5xx) are reattempted up to maxRetries times; other non-2xx
// statuses return *APIError immediately.
func (c *Client) Do(ctx context.Context, req *Request) ([]byte, error) {
	start := time.Now()
	body, status, err := c.doRetry(ctx, req)
	c.writeLog(req, status, time.Since(start), err)
	return body, err
}

func (c *Client) doRetry(ctx context.Context, req *Request) (body []byte, status int, err error) {
	for attempt := 0; ; attempt++ {
		body, status, err = c.doOnce(ctx, req)
		if err == nil {
			return body, status, nil
		}
		if attempt >= maxRetries || !retryable(status, err) {
			return nil, status, err
		}

		delay := retryDelay(attempt, retryAfterHint(err))
		c.logger.Warn("adapter retry",
			"service", c.service, "url", req.URL, "attempt", attempt+1,
			"status", status, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, status, ctx.Err()
		}
	}
}

func (c *Client) doOnce(ctx context.Context, req *Request) ([]byte, int, error) {
	var rd io.Reader
	if req.Body != nil {
		rd = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.Method, req.URL, rd)
	if err != nil {
		return nil, 0, err
	}
	for k, vs := range req.Header {
		hr.Header[k] = vs
	}

	resp, err := c.http.Do(hr)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Service: c.service, Status: resp.StatusCode, Body: string(body)}
		if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
			return nil, resp.StatusCode, &retryAfterError{err: apiErr, after: ra}
		}
		return nil, resp.StatusCode, apiErr
	}
	return body, resp.StatusCode, nil
}

// DoJSON marshals in (when non-nil), sends, and unmarshals into out (when
// non-nil).
func (c *Client) DoJSON(ctx context.Context, method, url string, header http.Header, dealershipID *int64, in, out any) error {
	req := &Request{Method: method, URL: url, Header: header, DealershipID: dealershipID}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		req.Body = b
		req.Header.Set("Content-Type", "application/json")
	}
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) writeLog(req *Request, status int, latency time.Duration, callErr error) {
	if c.logs == nil {
		return
	}
	l := &store.APICallLog{
		DealershipID: req.DealershipID,
		Service:      c.service,
		Endpoint:     req.Method + " " + req.URL,
		Status:       status,
		LatencyMs:    latency.Milliseconds(),
	}
	if callErr != nil {
		l.Error = callErr.Error()
	}
	// Logging never fails the call it describes.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.logs.Write(ctx, l); err != nil {
		c.logger.Warn("api log write failed", "service", c.service, "error", err)
	}
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

func retryable(status int, err error) bool {
	if status == 0 {
		return true // transport-level failure
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func retryAfterHint(err error) time.Duration {
	if ra, ok := err.(*retryAfterError); ok {
		return ra.after
	}
	return 0
}

func retryDelay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}
	d := baseDelay << attempt
	return d + time.Duration(rand.Int63n(int64(d/2)))
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
