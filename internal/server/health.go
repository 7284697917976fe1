package server

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/dashwatch/internal/infra/api"
	"github.com/vietddude/dashwatch/internal/resilience/coordinator"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ConnectionHealth exposes the coordinator's connection state.
type ConnectionHealth interface {
	Health() coordinator.Health
}

// StatsSource exposes transport request statistics.
type StatsSource interface {
	Stats() api.Stats
}

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendHealth contains health details of the inventory backend connection.
type BackendHealth struct {
	Status              SystemStatus  `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	DegradedSince       *time.Time    `json:"degraded_since,omitempty"`
	Requests            int           `json:"requests"`
	ErrorRate           float64       `json:"error_rate"`
	AverageLatency      time.Duration `json:"average_latency"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus  `json:"system_status"`
	Backend      BackendHealth `json:"backend"`
	SharedCache  SystemStatus  `json:"shared_cache,omitempty"`
}

// Monitor aggregates health status from the backend connection and the
// shared cache. Reports are reused for checkInterval.
type Monitor struct {
	conn          ConnectionHealth
	stats         StatsSource
	cache         Pinger
	checkInterval time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a health monitor. stats and cache may be nil.
func NewMonitor(conn ConnectionHealth, stats StatsSource, cache Pinger) *Monitor {
	return &Monitor{
		conn:          conn,
		stats:         stats,
		cache:         cache,
		checkInterval: 5 * time.Second,
	}
}

// Degraded reports whether the backend is currently unreachable. It is never
// cached.
func (m *Monitor) Degraded() bool {
	return m.conn.Health().Degraded
}

// CheckHealth builds a health report.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid pinging Redis on every probe
	if m.lastReport != nil && time.Since(m.lastCheck) < m.checkInterval {
		return *m.lastReport
	}

	h := m.conn.Health()
	backend := BackendHealth{
		Status:              StatusHealthy,
		ConsecutiveFailures: h.ConsecutiveFailures,
	}
	if h.Degraded {
		backend.Status = StatusCritical
		since := h.DegradedSince
		backend.DegradedSince = &since
	} else if h.ConsecutiveFailures > 0 {
		backend.Status = StatusDegraded
	}

	if m.stats != nil {
		s := m.stats.Stats()
		backend.Requests = s.Requests
		backend.ErrorRate = s.ErrorRate
		backend.AverageLatency = s.AverageLatency
		if backend.Status == StatusHealthy && s.Requests >= 10 && s.ErrorRate > 0.5 {
			backend.Status = StatusDegraded
		}
	}

	report := HealthReport{SystemStatus: backend.Status, Backend: backend}

	if m.cache != nil {
		report.SharedCache = StatusHealthy
		if err := m.cache.Ping(ctx); err != nil {
			report.SharedCache = StatusDegraded
			if report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
