package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/rollup-backend/internal/clients/redis"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/report"
	"github.com/yungbote/rollup-backend/internal/temporalx"
	"github.com/yungbote/rollup-backend/internal/temporalx/rolluprun"
)

type Clients struct {
	Redis     *goredis.Client
	RunBus    redis.RunBus
	RunLocker *redis.RunLocker

	Temporal  temporalsdkclient.Client
	Scheduler *rolluprun.Scheduler

	Uploader report.Uploader
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis
	if cfg.RedisAddr != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return out, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
		bus, err := redis.NewRunBus(rdb, cfg.RedisChannel, log)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init redis run bus: %w", err)
		}
		out.RunBus = bus
		out.RunLocker = redis.NewRunLocker(rdb, cfg.LockTTL, log)
	}

	// Temporal
	if cfg.Temporal.Enabled() {
		tc, err := temporalx.NewClient(ctx, cfg.Temporal, log)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
		out.Temporal = tc
		sched, err := rolluprun.NewScheduler(tc, cfg.Temporal.TaskQueue, log)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init temporal scheduler: %w", err)
		}
		out.Scheduler = sched
	}

	// Gcs
	if cfg.ExportBucket != "" {
		up, err := report.NewGCSUploader(ctx, log, cfg.ExportBucket, cfg.ExportCredentials)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init export bucket: %w", err)
		}
		out.Uploader = up
	}

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
		c.Temporal = nil
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
		c.Redis = nil
	}
}
