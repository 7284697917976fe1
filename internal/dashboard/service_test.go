package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/dashwatch/internal/core/domain"
	"github.com/vietddude/dashwatch/internal/infra/api"
	"github.com/vietddude/dashwatch/internal/notify"
	"github.com/vietddude/dashwatch/internal/resilience/classify"
	"github.com/vietddude/dashwatch/internal/resilience/retry"
)

// =============================================================================
// Fakes
// =============================================================================

type route func(params url.Values) (*api.Response, error)

type fakeBackend struct {
	mu     sync.Mutex
	routes map[string]route
	calls  map[string]int
	params map[string]url.Values
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		routes: make(map[string]route),
		calls:  make(map[string]int),
		params: make(map[string]url.Values),
	}
}

func (b *fakeBackend) Request(_ context.Context, _, path string, params url.Values) (*api.Response, error) {
	b.mu.Lock()
	b.calls[path]++
	b.params[path] = params
	r, ok := b.routes[path]
	b.mu.Unlock()

	if !ok {
		return nil, &api.TransportError{Code: api.CodeConnectionRefused, Op: "GET " + path}
	}
	return r(params)
}

func (b *fakeBackend) set(path string, r route) {
	b.mu.Lock()
	b.routes[path] = r
	b.mu.Unlock()
}

func (b *fakeBackend) json(path string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	b.set(path, func(url.Values) (*api.Response, error) {
		return &api.Response{Status: http.StatusOK, Body: body}, nil
	})
}

func (b *fakeBackend) status(path string, status int) {
	b.set(path, func(url.Values) (*api.Response, error) {
		return nil, &api.StatusError{Status: status, Op: "GET " + path}
	})
}

func (b *fakeBackend) down(path string) {
	b.mu.Lock()
	delete(b.routes, path)
	b.mu.Unlock()
}

func (b *fakeBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type degradedProbe bool

func (d degradedProbe) Degraded() bool { return bool(d) }

type fixture struct {
	backend *fakeBackend
	board   *notify.Board
	clock   *fakeClock
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		backend: newFakeBackend(),
		board:   notify.NewBoard(),
		clock:   &fakeClock{now: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)},
	}
	exec := retry.NewExecutor(f.board, retry.WithSleep(func(context.Context, time.Duration) error {
		return nil
	}))

	cfg := DefaultConfig()
	cfg.Policy = retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, Timeout: time.Second}

	svc, err := NewService(cfg, Deps{
		Transport: f.backend,
		Health:    degradedProbe(false),
		Executor:  exec,
		Notifier:  f.board,
		Clock:     f.clock.Now,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// =============================================================================
// Fallback chain
// =============================================================================

func TestSalesStats_SecondarySourceWhenPrimaryEmpty(t *testing.T) {
	f := newFixture(t)
	f.backend.json("/vendas", []domain.Sale{})
	f.backend.json("/movimentacoes", []domain.Movement{
		{ID: "m1", SaleID: "v1", Type: domain.MovementOut, Quantity: 2, Value: 20},
		{ID: "m2", SaleID: "v2", Type: domain.MovementOut, Quantity: 1, Value: 15},
		{ID: "m3", SaleID: "v2", Type: domain.MovementOut, Quantity: 1, Value: 15},
		{ID: "m4", Type: domain.MovementOut, Quantity: 4, Value: 8},
	})

	stats, err := f.svc.SalesStats(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SalesToday)
	assert.Equal(t, 8, stats.ItemsSold)
	assert.InDelta(t, 58.0, stats.RevenueToday, 0.001)
	assert.Equal(t, "movimentacoes", stats.Source)

	assert.Equal(t, "2024-05-10", f.backend.params["/vendas"].Get("data"))
	assert.Equal(t, "saida", f.backend.params["/movimentacoes"].Get("tipo"))
}

func TestSalesStats_PrimaryUsableSkipsSecondary(t *testing.T) {
	f := newFixture(t)
	f.backend.json("/vendas", []domain.Sale{{ID: "v1", Quantity: 1, Total: 10}})

	stats, err := f.svc.SalesStats(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SalesToday)
	assert.Equal(t, "vendas", stats.Source)
	assert.Equal(t, 0, f.backend.count("/movimentacoes"))
}

func TestSalesStats_EmptyPrimaryKeptWhenSecondaryFails(t *testing.T) {
	f := newFixture(t)
	f.backend.json("/vendas", []domain.Sale{})
	f.backend.status("/movimentacoes", http.StatusInternalServerError)

	stats, err := f.svc.SalesStats(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.SalesStats{Source: "vendas"}, stats)
	assert.Equal(t, 2, f.backend.count("/movimentacoes"), "secondary is retried independently")
}

func TestProductStats_DefaultOnTotalFailure(t *testing.T) {
	f := newFixture(t)

	stats, err := f.svc.ProductStats(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductStats{Total: 0, TotalQuantity: 0}, stats)
	assert.Equal(t, 0, f.board.Opened(notify.KindStale))

	// Both the optimized and legacy paths were attempted with one retry each.
	assert.Equal(t, 2, f.backend.count("/produtos/estatisticas"))
	assert.Equal(t, 2, f.backend.count("/produtos"))
}

func TestProductStats_LegacyDerivation(t *testing.T) {
	f := newFixture(t)
	f.backend.status("/produtos/estatisticas", http.StatusNotFound)
	f.backend.json("/produtos", []domain.Product{
		{ID: "1", Name: "Caneta", Price: 2, Quantity: 10},
		{ID: "2", Name: "Lápis", Price: 1.5, Quantity: 0},
	})

	stats, err := f.svc.ProductStats(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 10, stats.TotalQuantity)
	assert.InDelta(t, 20.0, stats.TotalValue, 0.001)
	assert.Equal(t, 1, stats.OutOfStock)
}

func TestProductStats_ServesStaleOncePerEpisode(t *testing.T) {
	f := newFixture(t)
	want := domain.ProductStats{Total: 7, TotalQuantity: 70}
	f.backend.json("/produtos/estatisticas", want)

	got, err := f.svc.ProductStats(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, want, got)

	f.clock.Advance(time.Hour)
	f.backend.down("/produtos/estatisticas")

	for i := 0; i < 3; i++ {
		got, err = f.svc.ProductStats(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 1, f.board.Opened(notify.KindStale))

	// A success ends the episode; the next outage announces again.
	f.backend.json("/produtos/estatisticas", want)
	_, err = f.svc.ProductStats(context.Background(), false)
	require.NoError(t, err)

	f.backend.down("/produtos/estatisticas")
	_, err = f.svc.ProductStats(context.Background(), false)
	require.NoError(t, err)

	stale := 0
	for _, n := range f.board.History() {
		if n.Kind == notify.KindStale {
			stale++
		}
	}
	assert.Equal(t, 2, stale)
}

func TestProductStats_CacheHitSkipsNetwork(t *testing.T) {
	f := newFixture(t)
	f.backend.json("/produtos/estatisticas", domain.ProductStats{Total: 1})

	for i := 0; i < 3; i++ {
		_, err := f.svc.ProductStats(context.Background(), true)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.backend.count("/produtos/estatisticas"))

	_, err := f.svc.ProductStats(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.backend.count("/produtos/estatisticas"))

	f.clock.Advance(DefaultTTLs().ProductStats)
	_, err = f.svc.ProductStats(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, f.backend.count("/produtos/estatisticas"), "entry expires at the ttl")
}

func TestProductStats_AuthShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.backend.status("/produtos/estatisticas", http.StatusUnauthorized)
	f.backend.json("/produtos", []domain.Product{{ID: "1"}})

	stats, err := f.svc.ProductStats(context.Background(), true)
	require.Error(t, err)
	assert.Equal(t, domain.ProductStats{}, stats)
	assert.Equal(t, classify.Auth, classify.KindOf(err))

	var cerr *classify.Error
	assert.True(t, errors.As(err, &cerr))
	assert.Equal(t, 1, f.backend.count("/produtos/estatisticas"), "auth failures are not retried")
	assert.Equal(t, 0, f.backend.count("/produtos"), "auth failures skip later strategies")
}

func TestLowStock_LegacyJoin(t *testing.T) {
	f := newFixture(t)
	f.backend.status("/produtos/estoque-baixo", http.StatusBadGateway)
	f.backend.json("/produtos", []domain.Product{
		{ID: "1", Name: "Caneta", Category: "Papelaria", MinimumStock: 5},
		{ID: "2", Name: "Lápis", Category: "Papelaria", MinimumStock: 5},
		{ID: "3", Name: "Caderno", Category: "Papelaria", MinimumStock: 2, Quantity: 1},
	})
	f.backend.json("/estoque", []domain.StockLevel{
		{ProductID: "1", Quantity: 3},
		{ProductID: "2", Quantity: 9},
	})

	low, err := f.svc.LowStock(context.Background(), 0, true)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "Caderno", low[0].Name)
	assert.Equal(t, 1, low[0].Quantity)
	assert.Equal(t, "Caneta", low[1].Name)
	assert.Equal(t, 3, low[1].Quantity)
	assert.Equal(t, 5, low[1].Minimum)
}

func TestLowStock_OptimizedEndpoint(t *testing.T) {
	f := newFixture(t)
	f.backend.json("/produtos/estoque-baixo", []domain.LowStockProduct{
		{ProductID: "1"}, {ProductID: "2"}, {ProductID: "3"},
	})

	low, err := f.svc.LowStock(context.Background(), 2, true)
	require.NoError(t, err)
	assert.Len(t, low, 2)
	assert.Equal(t, "2", f.backend.params["/produtos/estoque-baixo"].Get("limit"))
	assert.Equal(t, 0, f.backend.count("/produtos"))
}

func TestTopProducts_RankedFromCappedSales(t *testing.T) {
	f := newFixture(t)
	f.backend.json("/vendas", []domain.Sale{
		{ID: "1", ProductID: "a", ProductName: "Caneta", Quantity: 3},
		{ID: "2", ProductID: "b", ProductName: "Borracha", Quantity: 5},
		{ID: "3", ProductID: "a", ProductName: "Caneta", Quantity: 2},
		{ID: "4", ProductID: "c", ProductName: "Apontador", Quantity: 5},
		{ID: "5", ProductID: "d", ProductName: "Régua", Quantity: 1},
	})

	top, err := f.svc.TopProducts(context.Background(), 3, true)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"Apontador", "Borracha", "Caneta"}, []string{top[0].Name, top[1].Name, top[2].Name})
	assert.Equal(t, 2, top[2].Sales)
	assert.Equal(t, "1000", f.backend.params["/vendas"].Get("limit"))
}

func TestTopProducts_DefaultLimitKey(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "top-products?limit=5", f.svc.topProducts.Key(limitParams(0, f.svc.cfg.Limits.TopProducts)))
	assert.Equal(t, "product-stats", f.svc.productStats.Key(nil))
}

func TestCategoryDistribution_Legacy(t *testing.T) {
	f := newFixture(t)
	f.backend.json("/produtos", []domain.Product{
		{ID: "1", Category: "Papelaria", Quantity: 2},
		{ID: "2", Category: "Papelaria", Quantity: 3},
		{ID: "3", Category: "Limpeza", Quantity: 1},
	})

	shares, err := f.svc.CategoryDistribution(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, domain.CategoryShare{Category: "Papelaria", Products: 2, Quantity: 5}, shares[0])
}

func TestRecentTransactions_DefaultIsEmptyList(t *testing.T) {
	f := newFixture(t)

	txs, err := f.svc.RecentTransactions(context.Background(), 0, true)
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}

// =============================================================================
// Service
// =============================================================================

func TestSnapshot_LoadsEveryMetric(t *testing.T) {
	f := newFixture(t)
	f.backend.json("/produtos/estatisticas", domain.ProductStats{Total: 4})
	f.backend.json("/vendas", []domain.Sale{{ID: "v1", ProductID: "a", ProductName: "Caneta", Quantity: 1}})
	f.backend.json("/produtos/estoque-baixo", []domain.LowStockProduct{{ProductID: "a"}})
	f.backend.json("/categorias/distribuicao", []domain.CategoryShare{{Category: "Papelaria"}})
	f.backend.json("/movimentacoes", []domain.Movement{{ID: "m1"}})

	snap, err := f.svc.Snapshot(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.ProductStats.Total)
	assert.Equal(t, 1, snap.SalesStats.SalesToday)
	assert.Len(t, snap.TopProducts, 1)
	assert.Len(t, snap.LowStock, 1)
	assert.Len(t, snap.CategoryDistribution, 1)
	assert.Len(t, snap.RecentTransactions, 1)
	assert.False(t, snap.Degraded)
	assert.Equal(t, f.clock.Now(), snap.GeneratedAt)
}

func TestClearAll_ForcesRefetch(t *testing.T) {
	f := newFixture(t)
	f.backend.json("/categorias/distribuicao", []domain.CategoryShare{})

	_, err := f.svc.CategoryDistribution(context.Background(), true)
	require.NoError(t, err)
	f.svc.ClearAll()
	_, err = f.svc.CategoryDistribution(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 2, f.backend.count("/categorias/distribuicao"))
}

func TestMetric_UnknownName(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Metric(context.Background(), "nope", 0, true)
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestNewService_RequiresTransport(t *testing.T) {
	_, err := NewService(DefaultConfig(), Deps{})
	assert.Error(t, err)
}
