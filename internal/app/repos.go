package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/data/aggregates"
	appdb "github.com/yungbote/rollup-backend/internal/data/db"
	rolluprepo "github.com/yungbote/rollup-backend/internal/data/repos/rollup"
	"github.com/yungbote/rollup-backend/internal/data/sources/memory"
	"github.com/yungbote/rollup-backend/internal/data/sources/mongosource"
	"github.com/yungbote/rollup-backend/internal/data/sources/pgxsource"
	"github.com/yungbote/rollup-backend/internal/data/sources/sqlsource"
	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/rollup/aggregate"
	"github.com/yungbote/rollup-backend/internal/rollup/persist"
)

type Repos struct {
	RollupRecord rolluprepo.RollupRecordRepo

	Source   aggregate.Source
	Ingester aggregate.Ingester
	Target   persist.TargetStore

	closers []func(context.Context)
}

func needsDB(cfg Config) bool {
	return cfg.SourceDriver == SourceSQL || cfg.TargetDriver == TargetSQL
}

func openDB(log *logger.Logger, cfg Config) (*gorm.DB, error) {
	if !needsDB(cfg) {
		return nil, nil
	}
	db, err := appdb.Open(cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := appdb.AutoMigrateAll(db); err != nil {
		_ = appdb.Close(db)
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	return db, nil
}

func wireRepos(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg Config, metrics *observability.Metrics) (Repos, error) {
	log.Info("Wiring repos...", "source_driver", cfg.SourceDriver, "target_driver", cfg.TargetDriver)
	var out Repos

	switch cfg.TargetDriver {
	case TargetSQL:
		out.RollupRecord = rolluprepo.NewRollupRecordRepo(db, log, aggregates.NewObservabilityHooks(metrics))
		out.Target = rolluprepo.NewStore(out.RollupRecord)
	case TargetMemory:
		out.Target = persist.NewMemoryStore()
	default:
		return Repos{}, fmt.Errorf("unknown target driver %q", cfg.TargetDriver)
	}

	switch cfg.SourceDriver {
	case SourceSQL:
		src := sqlsource.New(db, log)
		out.Source, out.Ingester = src, src
	case SourceMemory:
		src := memory.New()
		out.Source, out.Ingester = src, src
	case SourcePGX:
		src, err := pgxsource.Open(ctx, cfg.PgxDSN, log)
		if err != nil {
			return Repos{}, fmt.Errorf("init pgx source: %w", err)
		}
		out.Source = src
		out.closers = append(out.closers, func(context.Context) { src.Close() })
	case SourceMongo:
		src, err := mongosource.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			return Repos{}, fmt.Errorf("init mongo source: %w", err)
		}
		out.Source, out.Ingester = src, src
		out.closers = append(out.closers, func(ctx context.Context) {
			if err := src.Close(ctx); err != nil {
				log.Warn("mongo disconnect failed", "error", err)
			}
		})
	default:
		return Repos{}, fmt.Errorf("unknown source driver %q", cfg.SourceDriver)
	}
	return out, nil
}

func (r *Repos) Close(ctx context.Context) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i](ctx)
	}
	r.closers = nil
}
