package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/rollup/aggregate"
	"github.com/yungbote/rollup-backend/internal/rollup/merge"
	"github.com/yungbote/rollup-backend/internal/rollup/persist"
	"github.com/yungbote/rollup-backend/internal/rollup/schema"
)

const (
	StageResolve = "resolve"
	StageLock    = "lock"
)

// Locker excludes concurrent runs of one source type. The returned context is
// derived from ctx and is cancelled with cause types.ErrLockLost once exclusion
// can no longer be guaranteed.
type Locker interface {
	Acquire(ctx context.Context, sourceType string) (context.Context, func(context.Context) error, error)
}

// Notifier is told about every successful run.
type Notifier interface {
	Publish(ctx context.Context, summary types.RunSummary) error
}

type Options struct {
	QueryTimeout time.Duration
	WriteTimeout time.Duration
	Locker       Locker
	Notifier     Notifier
	Metrics      *observability.Metrics
	Now          func() time.Time
}

// Orchestrator runs resolve, aggregate, merge and upsert for one source type.
type Orchestrator struct {
	registry *schema.Registry
	engine   *aggregate.Engine
	persist  *persist.Persister
	log      *logger.Logger
	opts     Options
}

func New(registry *schema.Registry, src aggregate.Source, target persist.TargetStore, baseLog *logger.Logger, opts Options) *Orchestrator {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		registry: registry,
		engine:   aggregate.NewEngine(src, baseLog, opts.QueryTimeout),
		persist:  persist.NewPersister(target, baseLog, opts.WriteTimeout),
		log:      baseLog.With("component", "PipelineOrchestrator"),
		opts:     opts,
	}
}

// RunPipeline aggregates collection as sourceType and upserts the merged
// records. An empty collection defaults to the source type name. On failure the
// returned summary holds whatever was counted before the error.
func (o *Orchestrator) RunPipeline(ctx context.Context, sourceType, collection string) (summary types.RunSummary, err error) {
	sourceType = strings.TrimSpace(sourceType)
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = sourceType
	}
	summary = types.RunSummary{SourceType: sourceType, Collection: collection, StartedAt: o.opts.Now()}

	ctx, span := observability.StartSpan(ctx, "rollup.run",
		attribute.String("rollup.source_type", sourceType),
		attribute.String("rollup.collection", collection),
	)
	defer func() {
		summary.FinishedAt = o.opts.Now()
		summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
		status := "ok"
		if err != nil {
			status = string(types.KindOf(err))
		}
		o.opts.Metrics.ObserveRun(sourceType, status, summary.Duration)
		observability.EndSpan(span, err)
	}()

	log := o.log.With("source_type", sourceType, "collection", collection)

	if o.registry == nil {
		return summary, types.NewPipelineError(types.KindConfiguration, StageResolve, sourceType, fmt.Errorf("no schema registry"))
	}
	mapper, err := o.registry.Resolve(sourceType)
	if err != nil {
		log.Error("source type not registered", "error", err)
		return summary, types.NewPipelineError(types.KindConfiguration, StageResolve, sourceType, err)
	}
	spec := mapper.Spec()

	if o.opts.Locker != nil {
		lockCtx, release, lerr := o.opts.Locker.Acquire(ctx, sourceType)
		if lerr != nil {
			kind := types.KindInternal
			if errors.Is(lerr, types.ErrRunInProgress) {
				kind = types.KindLocked
			}
			log.Warn("run lock not obtained", "error", lerr)
			return summary, types.NewPipelineError(kind, StageLock, sourceType, lerr)
		}
		ctx = lockCtx
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				log.Warn("run lock release failed", "error", rerr)
			}
		}()
		defer func() {
			if err != nil {
				err = lockLost(ctx, sourceType, err)
			}
		}()
	}

	start := time.Now()
	views, err := o.engine.Run(ctx, spec, collection)
	if err != nil {
		log.Error("aggregation failed; nothing written", "error", err)
		return summary, err
	}
	o.stageDone(log, "aggregate", start,
		"headers", len(views.Headers), "items", len(views.Items), "categories", len(views.Categories))
	o.opts.Metrics.ObserveStage(sourceType, "aggregate", len(views.Headers)+len(views.Items)+len(views.Categories), time.Since(start))

	start = time.Now()
	merged, err := merge.NewCoordinator(mapper, o.log, o.opts.Now).Merge(views)
	if err != nil {
		log.Error("merge failed; nothing written", "error", err)
		return summary, err
	}
	summary.HeadersProcessed = len(merged.Records)
	summary.ItemsMerged = merged.ItemsMerged
	summary.CategoriesMerged = merged.CategoriesMerged
	summary.OrphanItems = merged.OrphanItems
	summary.OrphanCategories = merged.OrphanCategories
	summary.UnbalancedRecords = merged.Unbalanced
	o.stageDone(log, merge.StageMerge, start,
		"records", len(merged.Records),
		"items_merged", merged.ItemsMerged,
		"categories_merged", merged.CategoriesMerged,
		"orphan_items", merged.OrphanItems,
		"orphan_categories", merged.OrphanCategories,
		"unbalanced_identities", merged.Unbalanced,
	)
	o.opts.Metrics.ObserveStage(sourceType, merge.StageMerge, len(merged.Records), time.Since(start))
	o.opts.Metrics.AddOrphans(sourceType, "items", merged.OrphanItems)
	o.opts.Metrics.AddOrphans(sourceType, "categories", merged.OrphanCategories)
	o.opts.Metrics.AddUnbalanced(sourceType, merged.Unbalanced)

	start = time.Now()
	res, err := o.persist.Persist(ctx, types.SourceType(sourceType), merged.Records)
	summary.RecordsUpserted = res.Upserted
	summary.Inserted = res.Inserted
	summary.Replaced = res.Replaced
	o.opts.Metrics.AddUpserts(sourceType, string(persist.OutcomeInserted), res.Inserted)
	o.opts.Metrics.AddUpserts(sourceType, string(persist.OutcomeReplaced), res.Replaced)
	if err != nil {
		return summary, err
	}
	o.stageDone(log, persist.StageUpsert, start,
		"upserted", res.Upserted, "inserted", res.Inserted, "replaced", res.Replaced)
	o.opts.Metrics.ObserveStage(sourceType, persist.StageUpsert, res.Upserted, time.Since(start))

	if o.opts.Notifier != nil {
		final := summary
		final.FinishedAt = o.opts.Now()
		final.Duration = final.FinishedAt.Sub(final.StartedAt)
		if nerr := o.opts.Notifier.Publish(ctx, final); nerr != nil {
			log.Warn("run notification failed", "error", nerr)
		}
	}
	log.Info("rollup run complete",
		"headers_processed", summary.HeadersProcessed,
		"items_merged", summary.ItemsMerged,
		"categories_merged", summary.CategoriesMerged,
		"records_upserted", summary.RecordsUpserted,
	)
	return summary, nil
}

// lockLost reports err as a locked failure when the run lock was lost while the
// run was in flight. Upsert progress carried by err is kept.
func lockLost(ctx context.Context, sourceType string, err error) error {
	cause := context.Cause(ctx)
	if !errors.Is(cause, types.ErrLockLost) || types.IsKind(err, types.KindLocked) {
		return err
	}
	pe := types.NewPipelineError(types.KindLocked, StageLock, sourceType, errors.Join(cause, err))
	var inner *types.PipelineError
	if errors.As(err, &inner) {
		pe.IdentityKey = inner.IdentityKey
		pe.Upserted = inner.Upserted
	}
	return pe
}

func (o *Orchestrator) stageDone(log *logger.Logger, stage string, start time.Time, kv ...any) {
	log.Info("stage complete", append([]any{"stage", stage, "elapsed", time.Since(start)}, kv...)...)
}
