package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/dashwatch/internal/cache"
	"github.com/vietddude/dashwatch/internal/notify"
	"github.com/vietddude/dashwatch/internal/observability/metrics"
	"github.com/vietddude/dashwatch/internal/resilience/classify"
	"github.com/vietddude/dashwatch/internal/resilience/retry"
)

// Strategy is one way of producing a metric value. Strategies of a metric
// are tried in order.
type Strategy[T any] struct {
	Name  string
	Fetch func(ctx context.Context, params url.Values) (T, error)
}

// MetricConfig describes a metric.
type MetricConfig[T any] struct {
	Name       string
	Strategies []Strategy[T]
	// Usable reports whether a successful result carries data. A nil
	// predicate accepts every result.
	Usable func(T) bool
	// Default builds the value served when nothing else is available.
	Default  func() T
	Cache    *cache.TimeBoxed[T]
	Executor *retry.Executor
	Policy   retry.Policy
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Metric loads one logical dashboard metric through its cache, retried
// strategies, expired cache and safe default.
type Metric[T any] struct {
	name       string
	strategies []Strategy[T]
	usable     func(T) bool
	def        func() T
	cache      *cache.TimeBoxed[T]
	exec       *retry.Executor
	policy     retry.Policy
	notifier   notify.Notifier
	log        *slog.Logger

	group singleflight.Group

	mu    sync.Mutex
	stale map[string]bool // keys whose stale notice was shown this episode
}

type loadResult[T any] struct {
	value T
	err   error
}

// NewMetric validates cfg and builds the metric.
func NewMetric[T any](cfg MetricConfig[T]) (*Metric[T], error) {
	if cfg.Name == "" {
		return nil, errors.New("metric name is required")
	}
	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("metric %s: at least one strategy is required", cfg.Name)
	}
	for i, s := range cfg.Strategies {
		if s.Fetch == nil {
			return nil, fmt.Errorf("metric %s: strategy %d has no fetch function", cfg.Name, i)
		}
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("metric %s: cache is required", cfg.Name)
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("metric %s: %w", cfg.Name, err)
	}
	if cfg.Executor == nil {
		cfg.Executor = retry.NewExecutor(cfg.Notifier)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Default == nil {
		cfg.Default = func() T {
			var zero T
			return zero
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Metric[T]{
		name:       cfg.Name,
		strategies: cfg.Strategies,
		usable:     cfg.Usable,
		def:        cfg.Default,
		cache:      cfg.Cache,
		exec:       cfg.Executor,
		policy:     cfg.Policy,
		notifier:   cfg.Notifier,
		log:        cfg.Logger.With("metric", cfg.Name),
		stale:      make(map[string]bool),
	}, nil
}

// Name returns the metric name.
func (m *Metric[T]) Name() string { return m.name }

// Key returns the cache key for params.
func (m *Metric[T]) Key(params url.Values) string {
	if len(params) == 0 {
		return m.name
	}
	return m.name + "?" + params.Encode()
}

// Get returns the metric value. A valid cached value is returned without
// touching the network when useCache is set. Failures are absorbed into the
// expired cached value or the safe default; the returned error is non-nil
// only for authentication failures and caller cancellation.
func (m *Metric[T]) Get(ctx context.Context, params url.Values, useCache bool) (T, error) {
	key := m.Key(params)

	if useCache && m.cache.Valid(key) {
		if v, ok := m.cache.Get(key); ok {
			metrics.CacheLookups.WithLabelValues(m.name, "hit").Inc()
			return v, nil
		}
	}
	metrics.CacheLookups.WithLabelValues(m.name, "miss").Inc()

	// The shared load outlives any single caller; it is bounded by the
	// retry policy.
	loadCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		v, err := m.load(loadCtx, key, params)
		return loadResult[T]{value: v, err: err}, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		res := r.Val.(loadResult[T])
		return res.value, res.err
	}
}

// Invalidate forgets the stale-notice episode of every key. Cached values
// are cleared through the cache itself.
func (m *Metric[T]) Invalidate() {
	m.mu.Lock()
	clear(m.stale)
	m.mu.Unlock()
	m.cache.Clear()
}

func (m *Metric[T]) load(ctx context.Context, key string, params url.Values) (T, error) {
	var (
		fallback     T
		fallbackFrom string
		lastErr      error
	)

	for _, s := range m.strategies {
		label := m.name + "/" + s.Name
		v, err := retry.Do(ctx, m.exec, m.policy, label, func(ctx context.Context) (T, error) {
			return s.Fetch(ctx, params)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				var zero T
				return zero, ctxErr
			}
			lastErr = err
			if classify.KindOf(err) == classify.Auth {
				m.log.Warn("Metric fetch unauthorized", "strategy", s.Name, "error", err)
				return m.serveFallback(key, err, false), classify.Wrap(err)
			}
			m.log.Warn("Metric strategy failed", "strategy", s.Name, "error", err)
			continue
		}

		if m.usable == nil || m.usable(v) {
			m.store(key, v, s.Name)
			return v, nil
		}
		if fallbackFrom == "" {
			fallback, fallbackFrom = v, s.Name
		}
		m.log.Debug("Metric strategy returned no data", "strategy", s.Name)
	}

	if fallbackFrom != "" {
		m.store(key, fallback, fallbackFrom)
		return fallback, nil
	}
	return m.serveFallback(key, lastErr, true), nil
}

func (m *Metric[T]) store(key string, v T, strategy string) {
	m.cache.Set(key, v)
	metrics.FallbackServed.WithLabelValues(m.name, strategy).Inc()

	m.mu.Lock()
	delete(m.stale, key)
	m.mu.Unlock()
}

// serveFallback returns the expired cached value for key, or the safe
// default when nothing was ever cached.
func (m *Metric[T]) serveFallback(key string, cause error, announce bool) T {
	entry, ok := m.cache.Entry(key)
	if !ok {
		metrics.FallbackServed.WithLabelValues(m.name, "default").Inc()
		m.log.Warn("Serving default value", "key", key, "error", cause)
		return m.def()
	}

	metrics.FallbackServed.WithLabelValues(m.name, "stale").Inc()
	m.log.Warn("Serving stale value", "key", key, "stored_at", entry.StoredAt, "error", cause)

	if announce && m.markStale(key) {
		m.notifier.Notify(notify.Notice{
			ID:      "stale:" + key,
			Kind:    notify.KindStale,
			Level:   notify.LevelWarning,
			Message: fmt.Sprintf("Showing possibly outdated data for %s.", m.name),
		})
	}
	return entry.Value
}

// markStale reports whether this is the first stale serve of the episode.
func (m *Metric[T]) markStale(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale[key] {
		return false
	}
	m.stale[key] = true
	return true
}
