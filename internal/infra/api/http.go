package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Stats holds request statistics observed by an HTTPTransport.
type Stats struct {
	Requests       int           `json:"requests"`
	Failures       int           `json:"failures"`
	ErrorRate      float64       `json:"error_rate"`
	AverageLatency time.Duration `json:"average_latency"`
	LastSuccessAt  time.Time     `json:"last_success_at"`
	LastFailureAt  time.Time     `json:"last_failure_at"`
}

// HTTPTransport implements Transport for a JSON REST backend.
type HTTPTransport struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client

	mu           sync.RWMutex
	stats        Stats
	totalLatency time.Duration
	successCount int
}

// NewHTTPTransport creates a transport rooted at baseURL.
// tokens may be nil when the backend needs no credentials.
func NewHTTPTransport(baseURL string, timeout time.Duration, tokens TokenSource) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Request performs a single HTTP call.
func (t *HTTPTransport) Request(
	ctx context.Context,
	method, path string,
	params url.Values,
) (*Response, error) {
	start := time.Now()
	op := method + " " + path

	endpoint := t.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		t.recordFailure()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if t.tokens != nil {
		if token := t.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.recordTransportFailure(ctx)
		return nil, transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.recordTransportFailure(ctx)
		return nil, transportError(ctx, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.recordFailure()
		return nil, &StatusError{Status: resp.StatusCode, Op: op, Body: body}
	}

	t.recordSuccess(time.Since(start))
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Stats returns a snapshot of request statistics.
func (t *HTTPTransport) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

// transportError maps a client failure to a structured TransportError.
// A cancellation requested by the caller is returned as the context error.
func transportError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Code: CodeTimeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Code: CodeTimeout, Op: op, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &TransportError{Code: CodeConnectionRefused, Op: op, Err: err}
	}
	return &TransportError{Code: CodeNetwork, Op: op, Err: err}
}

func (t *HTTPTransport) recordSuccess(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.successCount++
	t.stats.Requests++
	t.totalLatency += latency
	t.stats.LastSuccessAt = time.Now()
	t.stats.ErrorRate = float64(t.stats.Failures) / float64(t.stats.Requests)
	t.stats.AverageLatency = t.totalLatency / time.Duration(t.successCount)
}

// recordTransportFailure skips requests the caller canceled; those say
// nothing about the backend.
func (t *HTTPTransport) recordTransportFailure(ctx context.Context) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	t.recordFailure()
}

func (t *HTTPTransport) recordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Failures++
	t.stats.Requests++
	t.stats.LastFailureAt = time.Now()
	t.stats.ErrorRate = float64(t.stats.Failures) / float64(t.stats.Requests)
}
