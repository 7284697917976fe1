// Package dashboard aggregates the inventory dashboard metrics. Every metric
// is loaded through its own cache and an ordered list of fetch strategies,
// and falls back to expired data or a safe default when the backend fails.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/dashwatch/internal/cache"
	"github.com/vietddude/dashwatch/internal/core/domain"
	"github.com/vietddude/dashwatch/internal/infra/api"
	"github.com/vietddude/dashwatch/internal/notify"
	"github.com/vietddude/dashwatch/internal/resilience/retry"
)

// ErrUnknownMetric is returned by Service.Metric for unknown names.
var ErrUnknownMetric = errors.New("unknown metric")

// HealthProbe reports the backend connection state.
type HealthProbe interface {
	Degraded() bool
}

// Deps are the collaborators of a Service. Only Transport is required.
type Deps struct {
	Transport api.Transport
	Health    HealthProbe
	Executor  *retry.Executor
	Notifier  notify.Notifier
	Store     cache.Store
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Service owns the dashboard metrics.
type Service struct {
	cfg       Config
	transport api.Transport
	health    HealthProbe
	now       func() time.Time
	log       *slog.Logger

	productStats *Metric[domain.ProductStats]
	salesStats   *Metric[domain.SalesStats]
	topProducts  *Metric[[]domain.TopProduct]
	lowStock     *Metric[[]domain.LowStockProduct]
	categories   *Metric[[]domain.CategoryShare]
	recent       *Metric[[]domain.Transaction]

	invalidators []func()
}

// NewService builds every metric of the dashboard.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Transport == nil {
		return nil, errors.New("transport is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid dashboard config: %w", err)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Executor == nil {
		deps.Executor = retry.NewExecutor(deps.Notifier)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	s := &Service{
		cfg:       cfg,
		transport: deps.Transport,
		health:    deps.Health,
		now:       deps.Clock,
		log:       deps.Logger,
	}

	var err error
	if s.productStats, err = newMetric(s, deps, MetricProductStats, cfg.TTL.ProductStats, nil,
		func() domain.ProductStats { return domain.ProductStats{} },
		Strategy[domain.ProductStats]{Name: "optimized", Fetch: s.fetchProductStats},
		Strategy[domain.ProductStats]{Name: "legacy", Fetch: s.deriveProductStats},
	); err != nil {
		return nil, err
	}

	if s.salesStats, err = newMetric(s, deps, MetricSalesStats, cfg.TTL.SalesStats,
		func(v domain.SalesStats) bool { return v.SalesToday > 0 },
		func() domain.SalesStats { return domain.SalesStats{} },
		Strategy[domain.SalesStats]{Name: "sales", Fetch: s.fetchSalesToday},
		Strategy[domain.SalesStats]{Name: "movements", Fetch: s.fetchSalesFromMovements},
	); err != nil {
		return nil, err
	}

	if s.topProducts, err = newMetric(s, deps, MetricTopProducts, cfg.TTL.TopProducts, nil,
		func() []domain.TopProduct { return []domain.TopProduct{} },
		Strategy[[]domain.TopProduct]{Name: "sales", Fetch: s.fetchTopProducts},
	); err != nil {
		return nil, err
	}

	if s.lowStock, err = newMetric(s, deps, MetricLowStock, cfg.TTL.LowStock, nil,
		func() []domain.LowStockProduct { return []domain.LowStockProduct{} },
		Strategy[[]domain.LowStockProduct]{Name: "optimized", Fetch: s.fetchLowStock},
		Strategy[[]domain.LowStockProduct]{Name: "legacy", Fetch: s.deriveLowStock},
	); err != nil {
		return nil, err
	}

	if s.categories, err = newMetric(s, deps, MetricCategoryDistribution, cfg.TTL.CategoryDistribution, nil,
		func() []domain.CategoryShare { return []domain.CategoryShare{} },
		Strategy[[]domain.CategoryShare]{Name: "optimized", Fetch: s.fetchCategories},
		Strategy[[]domain.CategoryShare]{Name: "legacy", Fetch: s.deriveCategories},
	); err != nil {
		return nil, err
	}

	if s.recent, err = newMetric(s, deps, MetricRecentTransactions, cfg.TTL.RecentTransactions, nil,
		func() []domain.Transaction { return []domain.Transaction{} },
		Strategy[[]domain.Transaction]{Name: "movements", Fetch: s.fetchRecentTransactions},
	); err != nil {
		return nil, err
	}

	return s, nil
}

func newMetric[T any](
	s *Service,
	deps Deps,
	name string,
	ttl time.Duration,
	usable func(T) bool,
	def func() T,
	strategies ...Strategy[T],
) (*Metric[T], error) {
	opts := []cache.Option{cache.WithClock(deps.Clock), cache.WithLogger(deps.Logger)}
	if deps.Store != nil {
		opts = append(opts, cache.WithStore(deps.Store))
	}

	m, err := NewMetric(MetricConfig[T]{
		Name:       name,
		Strategies: strategies,
		Usable:     usable,
		Default:    def,
		Cache:      cache.New[T](name, ttl, opts...),
		Executor:   deps.Executor,
		Policy:     s.cfg.Policy,
		Notifier:   deps.Notifier,
		Logger:     deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.invalidators = append(s.invalidators, m.Invalidate)
	return m, nil
}

// ProductStats returns catalog statistics.
func (s *Service) ProductStats(ctx context.Context, useCache bool) (domain.ProductStats, error) {
	return s.productStats.Get(ctx, nil, useCache)
}

// SalesStats returns today's sales totals.
func (s *Service) SalesStats(ctx context.Context, useCache bool) (domain.SalesStats, error) {
	return s.salesStats.Get(ctx, nil, useCache)
}

// TopProducts returns the best sellers. A non-positive limit uses the
// configured default.
func (s *Service) TopProducts(ctx context.Context, limit int, useCache bool) ([]domain.TopProduct, error) {
	return s.topProducts.Get(ctx, limitParams(limit, s.cfg.Limits.TopProducts), useCache)
}

// LowStock returns products at or below their minimum stock.
func (s *Service) LowStock(ctx context.Context, limit int, useCache bool) ([]domain.LowStockProduct, error) {
	return s.lowStock.Get(ctx, limitParams(limit, s.cfg.Limits.LowStock), useCache)
}

// CategoryDistribution returns product counts per category.
func (s *Service) CategoryDistribution(ctx context.Context, useCache bool) ([]domain.CategoryShare, error) {
	return s.categories.Get(ctx, nil, useCache)
}

// RecentTransactions returns the latest stock movements.
func (s *Service) RecentTransactions(ctx context.Context, limit int, useCache bool) ([]domain.Transaction, error) {
	return s.recent.Get(ctx, limitParams(limit, s.cfg.Limits.RecentTransactions), useCache)
}

// Metric loads a metric by name. limit applies to list metrics only.
func (s *Service) Metric(ctx context.Context, name string, limit int, useCache bool) (any, error) {
	switch name {
	case MetricProductStats:
		return s.ProductStats(ctx, useCache)
	case MetricSalesStats:
		return s.SalesStats(ctx, useCache)
	case MetricTopProducts:
		return s.TopProducts(ctx, limit, useCache)
	case MetricLowStock:
		return s.LowStock(ctx, limit, useCache)
	case MetricCategoryDistribution:
		return s.CategoryDistribution(ctx, useCache)
	case MetricRecentTransactions:
		return s.RecentTransactions(ctx, limit, useCache)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}

// Snapshot loads every metric concurrently. Metrics that fail are served
// from their fallbacks; the error reports authentication failures and
// cancellation.
func (s *Service) Snapshot(ctx context.Context, useCache bool) (domain.Snapshot, error) {
	var snap domain.Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		snap.ProductStats, err = s.ProductStats(gctx, useCache)
		return err
	})
	g.Go(func() (err error) {
		snap.SalesStats, err = s.SalesStats(gctx, useCache)
		return err
	})
	g.Go(func() (err error) {
		snap.TopProducts, err = s.TopProducts(gctx, 0, useCache)
		return err
	})
	g.Go(func() (err error) {
		snap.LowStock, err = s.LowStock(gctx, 0, useCache)
		return err
	})
	g.Go(func() (err error) {
		snap.CategoryDistribution, err = s.CategoryDistribution(gctx, useCache)
		return err
	})
	g.Go(func() (err error) {
		snap.RecentTransactions, err = s.RecentTransactions(gctx, 0, useCache)
		return err
	})

	err := g.Wait()
	snap.Degraded = s.IsConnectionDegraded()
	snap.GeneratedAt = s.now()
	return snap, err
}

// ClearAll drops every cached metric value.
func (s *Service) ClearAll() {
	for _, invalidate := range s.invalidators {
		invalidate()
	}
	s.log.Info("Dashboard cache cleared")
}

// IsConnectionDegraded reports whether the backend is considered unreachable.
func (s *Service) IsConnectionDegraded() bool {
	if s.health == nil {
		return false
	}
	return s.health.Degraded()
}

// Close releases the transport when it owns resources.
func (s *Service) Close() error {
	if c, ok := s.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func limitParams(limit, def int) url.Values {
	if limit <= 0 {
		limit = def
	}
	return url.Values{"limit": {strconv.Itoa(limit)}}
}

func paramLimit(params url.Values) int {
	n, err := strconv.Atoi(params.Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
