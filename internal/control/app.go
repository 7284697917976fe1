package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/dashwatch/internal/cache"
	"github.com/vietddude/dashwatch/internal/dashboard"
	"github.com/vietddude/dashwatch/internal/infra/api"
	redisclient "github.com/vietddude/dashwatch/internal/infra/redis"
	"github.com/vietddude/dashwatch/internal/notify"
	"github.com/vietddude/dashwatch/internal/resilience/coordinator"
	"github.com/vietddude/dashwatch/internal/resilience/retry"
	"github.com/vietddude/dashwatch/internal/server"
	"github.com/vietddude/dashwatch/internal/session"
)

// App wires the data-access layer and manages its lifecycle.
type App struct {
	cfg         Config
	session     *session.Session
	transport   *api.HTTPTransport
	coordinator *coordinator.Coordinator
	board       *notify.Board
	service     *dashboard.Service
	monitor     *server.Monitor
	server      *server.Server
	redisClient *redisclient.Client
	log         *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds the application configuration.
type Config struct {
	Port           int
	BaseURL        string
	Token          string
	Timeout        time.Duration
	PingPath       string
	DegradeAfter   int
	ProbeInterval  time.Duration // 0 disables background probing
	Dashboard      dashboard.Config
	Redis          redisclient.Config
	CacheRetention time.Duration
}

// NewApp creates a new App instance with all dependencies initialized.
func NewApp(cfg Config) (*App, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	log := slog.Default()

	a := &App{
		cfg:   cfg,
		board: notify.NewBoard(),
		log:   log,
	}

	// 1. Session and transport
	a.session = session.New(cfg.Token, func() {
		// Cached values belong to the expired session
		if a.service != nil {
			a.service.ClearAll()
		}
	})
	a.transport = api.NewHTTPTransport(cfg.BaseURL, cfg.Timeout, a.session)

	notifier := notify.Multi{notify.NewLogger(log), a.board}

	a.coordinator = coordinator.New(a.transport, a.session, notifier, coordinator.Config{
		DegradeAfter: cfg.DegradeAfter,
		PingPath:     cfg.PingPath,
	})

	// 2. Shared cache snapshot
	var store cache.Store
	if cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, using memory cache only", "error", err)
		} else {
			a.redisClient = client
			store = redisclient.NewSnapshotStore(client, cfg.CacheRetention)
			log.Info("Using Redis cache snapshot store")
		}
	}

	// 3. Dashboard
	service, err := dashboard.NewService(cfg.Dashboard, dashboard.Deps{
		Transport: a.coordinator,
		Health:    a.coordinator,
		Executor:  retry.NewExecutor(notifier, retry.WithLogger(log)),
		Notifier:  notifier,
		Store:     store,
		Logger:    log,
	})
	if err != nil {
		a.closeRedis()
		return nil, fmt.Errorf("failed to init dashboard: %w", err)
	}
	a.service = service

	// 4. HTTP surface
	var pinger server.Pinger
	if a.redisClient != nil {
		pinger = a.redisClient
	}
	a.monitor = server.NewMonitor(a.coordinator, a.transport, pinger)
	a.server = server.NewServer(a.service, a.board, a.monitor, cfg.Port)

	return a, nil
}

// Dashboard returns the dashboard service.
func (a *App) Dashboard() *dashboard.Service { return a.service }

// Notices returns the notice board.
func (a *App) Notices() *notify.Board { return a.board }

// Session returns the credential holder.
func (a *App) Session() *session.Session { return a.session }

// Handler returns the HTTP handler without starting a listener.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Start starts the HTTP server and the recovery prober.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go func() {
		a.log.Info("Starting dashboard server", "port", a.cfg.Port)
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Dashboard server failed", "error", err)
		}
	}()

	if a.cfg.ProbeInterval > 0 {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.runProber(ctx)
		}()
	}

	return nil
}

// Stop stops the app.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping dashwatch...")

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	serverErr := a.server.Stop(ctx)

	// Cancels in-flight backend requests
	if err := a.service.Close(); err != nil {
		a.log.Warn("Failed to close coordinator", "error", err)
	}
	_ = a.transport.Close()
	a.closeRedis()

	return serverErr
}

func (a *App) closeRedis() {
	if a.redisClient == nil {
		return
	}
	if err := a.redisClient.Close(); err != nil {
		a.log.Warn("Failed to close Redis", "error", err)
	}
}

// runProber pings the backend while the connection is degraded so the
// dashboard recovers without waiting for a user request.
func (a *App) runProber(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.coordinator.Degraded() {
				continue
			}
			if err := a.coordinator.Probe(ctx); err != nil {
				a.log.Debug("Backend still unreachable", "error", err)
				continue
			}
			a.log.Info("Backend reachable again")
		}
	}
}
