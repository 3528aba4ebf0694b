package app

import (
	"context"
	"fmt"
	"time"

	httpserver "github.com/Siencmd/darkbroad/internal/http"
	httpH "github.com/Siencmd/darkbroad/internal/http/handlers"
	"github.com/Siencmd/darkbroad/internal/observability"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics
	SSEHub   *realtime.SSEHub
	Server   *httpserver.Server
}

func New(log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	metrics := observability.Init(log)

	clients, err := wireClients(log, cfg)
	if err != nil {
		return nil, err
	}
	services := wireServices(log, cfg, clients, metrics)

	hub := realtime.NewSSEHub(log)
	realtimeHandler := httpH.NewRealtimeHandler(log, hub, metrics)
	services.Coordinator.OnChange(realtimeHandler.RenderChange)

	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:             log,
		ServiceName:     otelServiceName(cfg),
		Metrics:         metrics,
		CORSOrigins:     cfg.CORSOrigins,
		SyncHandler:     httpH.NewSyncHandler(log, services.Coordinator, realtimeHandler.RenderCount),
		RealtimeHandler: realtimeHandler,
		HealthHandler:   httpH.NewHealthHandler(services.Coordinator),
	})

	return &App{
		Log:      log,
		Cfg:      cfg,
		Clients:  clients,
		Services: services,
		Metrics:  metrics,
		SSEHub:   hub,
		Server:   server,
	}, nil
}

func otelServiceName(cfg Config) string {
	if !cfg.Otel.Enabled {
		return ""
	}
	return cfg.Otel.ServiceName
}

// Start opens the boot session and the metrics samplers. The session comes
// from ACTOR_* when set, otherwise from the cached claim.
func (a *App) Start(ctx context.Context) {
	if a.Clients.DB != nil {
		a.Metrics.StartDBCollector(ctx, a.Log, a.Clients.DB.DB())
	}
	if a.Cfg.RealtimeBus == BusRedis {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Cfg.RedisAddr)
	}

	claim := a.Cfg.Actor
	if claim.ActorID == "" {
		cached, ok := a.Clients.Cache.ReadClaim()
		if !ok {
			a.Log.Info("No actor configured; waiting for POST /api/session")
			return
		}
		claim = cached
	}
	resetCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.Services.Coordinator.Reset(resetCtx, claim); err != nil {
		a.Log.Warn("Boot session started without gate resolution", "error", err)
	}
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "addr", a.Cfg.HTTPAddr)
	return a.Server.Run(a.Cfg.HTTPAddr)
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Server.Shutdown(ctx)
}

// Close stops the coordinator before releasing the stores it writes to.
func (a *App) Close() {
	if a == nil {
		return
	}
	if err := a.Services.Coordinator.Close(); err != nil {
		a.Log.Warn("Closing coordinator failed", "error", err)
	}
	a.Services.Listener.Stop()
	a.Clients.Close(a.Log)
	a.Log.Sync()
}
