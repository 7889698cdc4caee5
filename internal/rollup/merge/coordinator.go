package merge

import (
	"fmt"
	"time"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/rollup/aggregate"
	"github.com/yungbote/rollup-backend/internal/rollup/schema"
)

const StageMerge = "merge"

// Result is the merged output of one run plus its reconciliation counters.
type Result struct {
	Records          []*types.CompositeRecord
	ItemsMerged      int
	CategoriesMerged int
	OrphanItems      int
	OrphanCategories int
	// Unbalanced counts identities whose item count sum differs from their
	// category count sum.
	Unbalanced int
}

// Coordinator left-joins item and category groups onto header groups by identity key.
type Coordinator struct {
	mapper schema.Mapper
	log    *logger.Logger
	now    func() time.Time
}

func NewCoordinator(mapper schema.Mapper, baseLog *logger.Logger, now func() time.Time) *Coordinator {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Coordinator{mapper: mapper, log: baseLog.With("component", "MergeCoordinator"), now: now}
}

// Merge builds one composite per header. Items and categories keep the order of
// the aggregation result; those whose identity has no header are counted and dropped.
// Any mapping failure aborts the merge.
func (c *Coordinator) Merge(views aggregate.Views) (Result, error) {
	var res Result
	if c == nil || c.mapper == nil {
		return res, types.NewPipelineError(types.KindConfiguration, StageMerge, "", fmt.Errorf("merge coordinator missing mapper"))
	}
	st := c.mapper.SourceType()
	loadedAt := c.now()

	byKey := make(map[string]*types.CompositeRecord, len(views.Headers))
	res.Records = make([]*types.CompositeRecord, 0, len(views.Headers))
	for _, raw := range views.Headers {
		h, err := c.mapper.MapHeader(raw)
		if err != nil {
			return Result{}, c.mappingError(err)
		}
		key := h.Identity.Key()
		if _, dup := byKey[key]; dup {
			c.log.Warn("duplicate header group; keeping first", "source_type", st, "identity_key", key)
			continue
		}
		rec := types.NewCompositeRecord(st, h, loadedAt)
		byKey[key] = rec
		res.Records = append(res.Records, rec)
	}

	for _, raw := range views.Items {
		it, err := c.mapper.MapItem(raw)
		if err != nil {
			return Result{}, c.mappingError(err)
		}
		rec, ok := byKey[it.Identity.Key()]
		if !ok {
			res.OrphanItems++
			continue
		}
		rec.Items = append(rec.Items, it)
		res.ItemsMerged++
	}

	for _, raw := range views.Categories {
		cat, err := c.mapper.MapCategory(raw)
		if err != nil {
			return Result{}, c.mappingError(err)
		}
		rec, ok := byKey[cat.Identity.Key()]
		if !ok {
			res.OrphanCategories++
			continue
		}
		rec.Categories = append(rec.Categories, cat)
		res.CategoriesMerged++
	}

	for _, rec := range res.Records {
		if rec.ItemTotal() != rec.CategoryTotal() {
			res.Unbalanced++
			c.log.Warn("item and category totals differ",
				"source_type", st,
				"identity_key", rec.Key,
				"item_total", rec.ItemTotal(),
				"category_total", rec.CategoryTotal(),
			)
		}
	}
	if res.OrphanItems > 0 || res.OrphanCategories > 0 {
		c.log.Warn("groups without a header were dropped",
			"source_type", st,
			"orphan_items", res.OrphanItems,
			"orphan_categories", res.OrphanCategories,
		)
	}
	return res, nil
}

func (c *Coordinator) mappingError(err error) error {
	return types.NewPipelineError(types.KindMapping, StageMerge, string(c.mapper.SourceType()), err)
}
