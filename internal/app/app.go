package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	appdb "github.com/yungbote/rollup-backend/internal/data/db"
	apphttp "github.com/yungbote/rollup-backend/internal/http"
	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Metrics  *observability.Metrics
	Clients  Clients
	Repos    Repos
	Services Services

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// NewLogger builds the process logger from LOG_MODE.
func NewLogger() (*logger.Logger, error) {
	mode := os.Getenv("LOG_MODE")
	if mode == "" {
		mode = "development"
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

func New(ctx context.Context) (*App, error) {
	log, err := NewLogger()
	if err != nil {
		return nil, err
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return NewWithConfig(ctx, log, cfg)
}

// NewWithConfig wires every component for cfg. Anything opened before a
// failure is closed again.
func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)
	a.Metrics = observability.Init(log)

	fail := func(err error) (*App, error) {
		a.Close(ctx)
		return nil, err
	}

	db, err := openDB(log, cfg)
	if err != nil {
		return fail(err)
	}
	a.DB = db

	a.Clients, err = wireClients(ctx, log, cfg)
	if err != nil {
		return fail(err)
	}
	a.Repos, err = wireRepos(ctx, db, log, cfg, a.Metrics)
	if err != nil {
		return fail(err)
	}
	a.Services, err = wireServices(log, cfg, a.Repos, a.Clients, a.Metrics)
	if err != nil {
		return fail(err)
	}

	handlerset := wireHandlers(log, db, a.Repos, a.Clients, a.Services)
	middleware := wireMiddleware(log, cfg)
	a.Router = wireRouter(log, cfg, a.Metrics, handlerset, middleware)
	return a, nil
}

// Start launches the background collectors and the run-summary forwarder.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Metrics != nil {
		if a.DB != nil {
			a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
		}
		if a.Clients.Redis != nil {
			a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
		}
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	}
	if a.Clients.RunBus != nil {
		err := a.Clients.RunBus.StartForwarder(ctx, func(s types.RunSummary) {
			a.Log.Info("run finished",
				"source_type", s.SourceType,
				"collection", s.Collection,
				"records_upserted", s.RecordsUpserted,
				"duration", s.Duration,
			)
		})
		if err != nil {
			a.Log.Warn("run bus forwarder not started", "error", err)
		}
	}
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Start(ctx)
	srv := &apphttp.Server{Engine: a.Router}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr())
	return srv.Run(ctx, a.Cfg.Addr())
}

// RunWorker hosts the rollup workflow until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Clients.Temporal == nil {
		return fmt.Errorf("TEMPORAL_ADDRESS is required for the worker")
	}
	a.Start(ctx)
	runner, err := temporalworker.NewRunner(a.Log, a.Cfg.Temporal, a.Clients.Temporal, a.Services.Orchestrator)
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Repos.Close(ctx)
	a.Clients.Close()
	if a.DB != nil {
		if err := appdb.Close(a.DB); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
		a.DB = nil
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
