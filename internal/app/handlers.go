package app

import (
	"context"

	"gorm.io/gorm"

	httpH "github.com/yungbote/rollup-backend/internal/http/handlers"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type Handlers struct {
	Rollup *httpH.RollupHandler
	Health *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, repos Repos, clients Clients, services Services) Handlers {
	log.Info("Wiring handlers...")

	deps := httpH.RollupHandlerDeps{
		Registry: services.Registry,
		Runner:   services.Orchestrator,
		Records:  repos.Target,
		Exporter: services.Exporter,
	}
	if clients.Scheduler != nil {
		deps.Scheduler = clients.Scheduler
	}

	checks := map[string]httpH.Pinger{}
	if db != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if clients.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return clients.Redis.Ping(ctx).Err()
		}
	}

	return Handlers{
		Rollup: httpH.NewRollupHandler(deps),
		Health: httpH.NewHealthHandler(checks),
	}
}
