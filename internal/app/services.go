package app

import (
	"fmt"

	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/report"
	"github.com/yungbote/rollup-backend/internal/rollup/pipeline"
	"github.com/yungbote/rollup-backend/internal/rollup/schema"
)

type Services struct {
	Registry     *schema.Registry
	Orchestrator *pipeline.Orchestrator
	Exporter     *report.Exporter
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	registry, err := schema.NewDefaultRegistry()
	if err != nil {
		return Services{}, fmt.Errorf("init schema registry: %w", err)
	}
	if cfg.SchemaFile != "" {
		n, err := schema.RegisterFile(registry, cfg.SchemaFile)
		if err != nil {
			return Services{}, fmt.Errorf("load schema file: %w", err)
		}
		log.Info("Loaded schema definitions", "file", cfg.SchemaFile, "count", n)
	}

	opts := pipeline.Options{
		QueryTimeout: cfg.QueryTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Metrics:      metrics,
	}
	// Nil interface values must stay nil, not typed nils.
	if clients.RunLocker != nil {
		opts.Locker = clients.RunLocker
	}
	if clients.RunBus != nil {
		opts.Notifier = clients.RunBus
	}

	return Services{
		Registry:     registry,
		Orchestrator: pipeline.New(registry, repos.Source, repos.Target, log, opts),
		Exporter:     report.NewExporter(repos.Target, clients.Uploader, log),
	}, nil
}
