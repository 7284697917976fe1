// Package coordinator sits in front of the backend transport. It collapses
// identical concurrent read requests onto the most recent one, tracks
// connection health across every settled request and reacts to expired
// sessions.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/vietddude/dashwatch/internal/infra/api"
	"github.com/vietddude/dashwatch/internal/notify"
	"github.com/vietddude/dashwatch/internal/observability/metrics"
	"github.com/vietddude/dashwatch/internal/resilience/classify"
)

// ErrClosed is returned for requests issued after Close.
var ErrClosed = errors.New("coordinator closed")

const (
	degradedNoticeID = "connection-degraded"
	restoredNoticeID = "connection-restored"
	sessionNoticeID  = "session-expired"
)

// AuthHandler tears the session down after a 401.
type AuthHandler interface {
	ClearCredentials()
	RedirectToLogin()
	AtLoginBoundary() bool
}

// Config holds coordinator settings.
type Config struct {
	// DegradeAfter is the number of consecutive connectivity failures that
	// flips the connection to degraded.
	DegradeAfter int
	// PingPath is requested by Probe.
	PingPath string
}

// DefaultConfig returns sensible coordinator defaults.
func DefaultConfig() Config {
	return Config{
		DegradeAfter: 1,
		PingPath:     "/health",
	}
}

// Health is a snapshot of the connection health state.
type Health struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Degraded            bool      `json:"degraded"`
	DegradedSince       time.Time `json:"degraded_since,omitempty"`
}

// call is one dispatched request. done is closed exactly once: when the
// call settles, or when an identical newer call supersedes it.
type call struct {
	cancel     context.CancelFunc
	done       chan struct{}
	resp       *api.Response
	err        error
	superseded bool
	next       *call
}

// Coordinator implements api.Transport on top of another transport.
type Coordinator struct {
	next     api.Transport
	auth     AuthHandler
	notifier notify.Notifier
	cfg      Config
	log      *slog.Logger
	now      func() time.Time

	mu             sync.Mutex
	inflight       map[string]*call
	health         Health
	authRedirected bool
	closed         bool
}

// New creates a coordinator. auth and notifier may be nil.
func New(next api.Transport, auth AuthHandler, notifier notify.Notifier, cfg Config) *Coordinator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cfg.DegradeAfter <= 0 {
		cfg.DegradeAfter = 1
	}
	if cfg.PingPath == "" {
		cfg.PingPath = DefaultConfig().PingPath
	}
	return &Coordinator{
		next:     next,
		auth:     auth,
		notifier: notifier,
		cfg:      cfg,
		log:      slog.Default(),
		now:      time.Now,
		inflight: make(map[string]*call),
	}
}

// Request dispatches through the wrapped transport. An identical read
// request dispatched while this one is in flight cancels it; the superseded
// caller then receives the outcome of the request that replaced it.
func (c *Coordinator) Request(
	ctx context.Context,
	method, path string,
	params url.Values,
) (*api.Response, error) {
	if !api.Idempotent(method) {
		return c.dispatchOnce(ctx, method, path, params)
	}

	id := api.RequestID(method, path, params)
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := &call{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if prev, ok := c.inflight[id]; ok {
		prev.superseded = true
		prev.next = cl
		prev.cancel()
		close(prev.done)
		metrics.SupersededRequests.Inc()
	}
	c.inflight[id] = cl
	c.mu.Unlock()

	start := c.now()
	resp, err := c.next.Request(callCtx, method, path, params)

	c.mu.Lock()
	if cl.superseded {
		c.mu.Unlock()
		c.log.Debug("Request superseded", "request", id)
		metrics.BackendRequests.WithLabelValues(method, "superseded").Inc()
		return c.follow(ctx, cl)
	}
	delete(c.inflight, id)
	cl.resp, cl.err = resp, err
	close(cl.done)
	c.mu.Unlock()

	c.settle(method, id, err, c.now().Sub(start))
	return resp, err
}

// Degraded reports whether the backend is currently considered unreachable.
func (c *Coordinator) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health.Degraded
}

// Health returns a snapshot of the connection health state.
func (c *Coordinator) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

// InFlight returns the number of registered in-flight read requests.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Probe issues a GET to the ping path through the coordinator, so a
// successful probe restores a degraded connection.
func (c *Coordinator) Probe(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodGet, c.cfg.PingPath, nil)
	if err != nil {
		return fmt.Errorf("probe %s: %w", c.cfg.PingPath, err)
	}
	return nil
}

// Close cancels every in-flight request and rejects new ones.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, cl := range c.inflight {
		cl.cancel()
	}
	return nil
}

func (c *Coordinator) dispatchOnce(
	ctx context.Context,
	method, path string,
	params url.Values,
) (*api.Response, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	start := c.now()
	resp, err := c.next.Request(ctx, method, path, params)
	c.settle(method, api.RequestID(method, path, params), err, c.now().Sub(start))
	return resp, err
}

// follow waits for the call that replaced cl, walking the chain of
// replacements until one settles.
func (c *Coordinator) follow(ctx context.Context, cl *call) (*api.Response, error) {
	cur := cl
	for {
		c.mu.Lock()
		cur = cur.next
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-cur.done:
		}

		c.mu.Lock()
		if !cur.superseded {
			resp, err := cur.resp, cur.err
			c.mu.Unlock()
			return resp, err
		}
		c.mu.Unlock()
	}
}

func (c *Coordinator) settle(method, id string, err error, latency time.Duration) {
	metrics.BackendLatency.WithLabelValues(method).Observe(latency.Seconds())

	if err == nil {
		metrics.BackendRequests.WithLabelValues(method, "success").Inc()
		c.onSuccess()
		return
	}

	if errors.Is(err, context.Canceled) {
		metrics.BackendRequests.WithLabelValues(method, "canceled").Inc()
		return
	}

	info := classify.Classify(err)
	metrics.BackendRequests.WithLabelValues(method, info.Kind.String()).Inc()
	c.log.Debug("Request failed", "request", id, "kind", info.Kind, "error", err)

	switch info.Kind {
	case classify.Connection:
		c.onConnectionFailure()
	case classify.Auth:
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) && statusErr != nil && statusErr.Status == http.StatusUnauthorized {
			c.onUnauthorized()
		}
	}
}

func (c *Coordinator) onSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasDegraded := c.health.Degraded
	c.health = Health{}
	if c.authRedirected {
		c.authRedirected = false
		c.notifier.Dismiss(sessionNoticeID)
	}

	if !wasDegraded || c.closed {
		return
	}

	metrics.ConnectionDegraded.Set(0)
	c.log.Info("Backend connection restored")
	c.notifier.Dismiss(degradedNoticeID)
	c.notifier.Notify(notify.Notice{
		ID:      restoredNoticeID,
		Kind:    notify.KindRestored,
		Level:   notify.LevelSuccess,
		Message: "Connection to the server restored.",
		At:      c.now(),
	})
}

func (c *Coordinator) onConnectionFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.health.ConsecutiveFailures++
	if !c.health.Degraded && c.health.ConsecutiveFailures >= c.cfg.DegradeAfter {
		c.health.Degraded = true
		c.health.DegradedSince = c.now()
		metrics.ConnectionDegraded.Set(1)
		c.log.Warn("Backend connection degraded", "failures", c.health.ConsecutiveFailures)
		c.notifier.Dismiss(restoredNoticeID)
	}
	if !c.health.Degraded {
		return
	}

	// Same ID every time: the active notice is updated, never stacked.
	c.notifier.Notify(notify.Notice{
		ID:         degradedNoticeID,
		Kind:       notify.KindDegraded,
		Level:      notify.LevelError,
		Message:    "Cannot reach the server. Showing the most recent data available.",
		Persistent: true,
		Count:      c.health.ConsecutiveFailures,
		At:         c.health.DegradedSince,
	})
}

func (c *Coordinator) onUnauthorized() {
	if c.auth == nil || c.auth.AtLoginBoundary() {
		return
	}

	c.mu.Lock()
	if c.authRedirected || c.closed {
		c.mu.Unlock()
		return
	}
	c.authRedirected = true
	c.mu.Unlock()

	c.auth.ClearCredentials()
	c.notifier.Notify(notify.Notice{
		ID:         sessionNoticeID,
		Kind:       notify.KindSession,
		Level:      notify.LevelWarning,
		Message:    "Your session has expired. Please sign in again.",
		Persistent: true,
		At:         c.now(),
	})
	c.auth.RedirectToLogin()
}
