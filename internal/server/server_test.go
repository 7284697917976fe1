package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/dashwatch/internal/core/domain"
	"github.com/vietddude/dashwatch/internal/dashboard"
	"github.com/vietddude/dashwatch/internal/infra/api"
	"github.com/vietddude/dashwatch/internal/notify"
	"github.com/vietddude/dashwatch/internal/resilience/classify"
	"github.com/vietddude/dashwatch/internal/resilience/coordinator"
)

// =============================================================================
// Mocks
// =============================================================================

type mockDashboard struct {
	snapshot  domain.Snapshot
	err       error
	lastName  string
	lastLimit int
	lastCache bool
	cleared   int
}

func (m *mockDashboard) Snapshot(_ context.Context, useCache bool) (domain.Snapshot, error) {
	m.lastCache = useCache
	return m.snapshot, m.err
}

func (m *mockDashboard) Metric(_ context.Context, name string, limit int, useCache bool) (any, error) {
	m.lastName, m.lastLimit, m.lastCache = name, limit, useCache
	if m.err != nil {
		return nil, m.err
	}
	if name != dashboard.MetricTopProducts {
		return nil, dashboard.ErrUnknownMetric
	}
	return []domain.TopProduct{{ProductID: "a", Name: "Caneta", Quantity: 3}}, nil
}

func (m *mockDashboard) ClearAll() { m.cleared++ }

type mockConn struct{ health coordinator.Health }

func (m *mockConn) Health() coordinator.Health { return m.health }

type mockPinger struct{ err error }

func (m *mockPinger) Ping(context.Context) error { return m.err }

type mockStats struct{ stats api.Stats }

func (m *mockStats) Stats() api.Stats { return m.stats }

func newTestServer(d *mockDashboard, conn *mockConn, board *notify.Board) http.Handler {
	return NewServer(d, board, NewMonitor(conn, nil, nil), 0).Handler()
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

// =============================================================================
// Tests
// =============================================================================

func TestSnapshot(t *testing.T) {
	d := &mockDashboard{snapshot: domain.Snapshot{ProductStats: domain.ProductStats{Total: 3}}}
	h := newTestServer(d, &mockConn{}, notify.NewBoard())

	rec := do(t, h, http.MethodGet, "/api/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, d.lastCache)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.JSONEq(t, `{"total":3,"quantidadeTotal":0,"valorTotal":0,"semEstoque":0}`, string(body["estatisticasProdutos"]))

	do(t, h, http.MethodGet, "/api/dashboard?fresh=1")
	assert.False(t, d.lastCache)
}

func TestMetricRoute(t *testing.T) {
	d := &mockDashboard{}
	h := newTestServer(d, &mockConn{}, notify.NewBoard())

	rec := do(t, h, http.MethodGet, "/api/dashboard/top-products?limit=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "top-products", d.lastName)
	assert.Equal(t, 3, d.lastLimit)
	assert.Contains(t, rec.Body.String(), `"nome":"Caneta"`)

	rec = do(t, h, http.MethodGet, "/api/dashboard/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/dashboard/top-products?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricRoute_AuthFailure(t *testing.T) {
	d := &mockDashboard{err: classify.Wrap(&api.StatusError{Status: http.StatusUnauthorized})}
	h := newTestServer(d, &mockConn{}, notify.NewBoard())

	rec := do(t, h, http.MethodGet, "/api/dashboard/sales-stats")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	d.err = errors.New("boom")
	rec = do(t, h, http.MethodGet, "/api/dashboard")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClearCache(t *testing.T) {
	d := &mockDashboard{}
	h := newTestServer(d, &mockConn{}, notify.NewBoard())

	rec := do(t, h, http.MethodPost, "/api/cache/clear")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, d.cleared)

	rec = do(t, h, http.MethodGet, "/api/cache/clear")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNotices(t *testing.T) {
	board := notify.NewBoard()
	board.Notify(notify.Notice{ID: "connection-degraded", Kind: notify.KindDegraded, Persistent: true, Count: 2})
	h := newTestServer(&mockDashboard{}, &mockConn{}, board)

	rec := do(t, h, http.MethodGet, "/api/notices")
	require.Equal(t, http.StatusOK, rec.Code)
	var notices []notify.Notice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notices))
	require.Len(t, notices, 1)
	assert.Equal(t, 2, notices[0].Count)

	rec = do(t, h, http.MethodDelete, "/api/notices/connection-degraded")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, board.Active())
}

func TestHealth(t *testing.T) {
	conn := &mockConn{}
	h := newTestServer(&mockDashboard{}, conn, notify.NewBoard())

	rec := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	conn.health = coordinator.Health{Degraded: true, ConsecutiveFailures: 3}
	rec = do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded"}`, rec.Body.String())
}

func TestMonitor_CheckHealth(t *testing.T) {
	conn := &mockConn{health: coordinator.Health{ConsecutiveFailures: 1}}
	m := NewMonitor(conn, &mockStats{stats: api.Stats{Requests: 4}}, &mockPinger{err: errors.New("down")})

	report := m.CheckHealth(context.Background())
	assert.Equal(t, StatusDegraded, report.SystemStatus)
	assert.Equal(t, StatusDegraded, report.Backend.Status)
	assert.Equal(t, StatusDegraded, report.SharedCache)
	assert.Equal(t, 4, report.Backend.Requests)

	// Reports are reused inside the check interval.
	conn.health = coordinator.Health{Degraded: true}
	assert.Equal(t, report, m.CheckHealth(context.Background()))
	assert.True(t, m.Degraded())
}

func TestMonitor_Critical(t *testing.T) {
	m := NewMonitor(&mockConn{health: coordinator.Health{Degraded: true, ConsecutiveFailures: 5}}, nil, nil)
	report := m.CheckHealth(context.Background())
	assert.Equal(t, StatusCritical, report.SystemStatus)
	require.NotNil(t, report.Backend.DegradedSince)
	assert.Empty(t, report.SharedCache)
}
