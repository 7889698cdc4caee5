package aggregate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/rollup/schema"
)

const (
	StageHeader     = "aggregate_header"
	StageItems      = "aggregate_items"
	StageCategories = "aggregate_categories"
)

// Views holds the three raw grouped results of one run.
type Views struct {
	Headers    []types.RawRecord
	Items      []types.RawRecord
	Categories []types.RawRecord
}

// Engine runs the header, item and category group-bys against a Source.
// It never writes; every call is safe to retry.
type Engine struct {
	src          Source
	log          *logger.Logger
	queryTimeout time.Duration
}

func NewEngine(src Source, baseLog *logger.Logger, queryTimeout time.Duration) *Engine {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &Engine{src: src, log: baseLog.With("component", "AggregationEngine"), queryTimeout: queryTimeout}
}

func HeaderQuery(spec schema.Spec, collection string) GroupQuery {
	return GroupQuery{
		Collection: collection,
		GroupBy:    spec.IdentitySources(),
		First:      fieldSources(spec.Header),
	}
}

func ItemQuery(spec schema.Spec, collection string) GroupQuery {
	return GroupQuery{
		Collection: collection,
		GroupBy:    append(spec.IdentitySources(), spec.Item.Key.SourceName()),
		First:      fieldSources(spec.Item.Fields),
	}
}

func CategoryQuery(spec schema.Spec, collection string) GroupQuery {
	return GroupQuery{
		Collection: collection,
		GroupBy:    append(spec.IdentitySources(), spec.Category.SourceName()),
	}
}

func (e *Engine) AggregateHeader(ctx context.Context, spec schema.Spec, collection string) ([]types.RawRecord, error) {
	return e.group(ctx, StageHeader, spec.SourceType, HeaderQuery(spec, collection))
}

func (e *Engine) AggregateItems(ctx context.Context, spec schema.Spec, collection string) ([]types.RawRecord, error) {
	return e.group(ctx, StageItems, spec.SourceType, ItemQuery(spec, collection))
}

func (e *Engine) AggregateCategories(ctx context.Context, spec schema.Spec, collection string) ([]types.RawRecord, error) {
	return e.group(ctx, StageCategories, spec.SourceType, CategoryQuery(spec, collection))
}

// Run executes all three group-bys concurrently. Any failure cancels the others
// and no partial Views are returned.
func (e *Engine) Run(ctx context.Context, spec schema.Spec, collection string) (Views, error) {
	var v Views
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := e.AggregateHeader(gctx, spec, collection)
		v.Headers = out
		return err
	})
	g.Go(func() error {
		out, err := e.AggregateItems(gctx, spec, collection)
		v.Items = out
		return err
	})
	g.Go(func() error {
		out, err := e.AggregateCategories(gctx, spec, collection)
		v.Categories = out
		return err
	})
	if err := g.Wait(); err != nil {
		return Views{}, err
	}
	return v, nil
}

func (e *Engine) group(ctx context.Context, stage string, st types.SourceType, q GroupQuery) ([]types.RawRecord, error) {
	if e == nil || e.src == nil {
		return nil, types.NewPipelineError(types.KindConfiguration, stage, string(st), fmt.Errorf("aggregation engine missing source store"))
	}
	if q.Collection == "" {
		return nil, types.NewPipelineError(types.KindConfiguration, stage, string(st), fmt.Errorf("source collection is required"))
	}
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}
	start := time.Now()
	out, err := e.src.Group(ctx, q)
	if err != nil {
		e.log.Warn("group query failed", "stage", stage, "source_type", st, "collection", q.Collection, "error", err)
		return nil, types.NewPipelineError(types.KindAggregation, stage, string(st), err)
	}
	e.log.Debug("group query done", "stage", stage, "source_type", st, "collection", q.Collection, "groups", len(out), "elapsed", time.Since(start))
	return out, nil
}

func fieldSources(fields []schema.Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.SourceName())
	}
	return out
}
