package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

const StageUpsert = "upsert"

type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeReplaced Outcome = "replaced"
)

// TargetStore writes composite records keyed by (source type, identity key).
// Upsert must be atomic per identity: zero matches insert, one match replaces
// the mutable content keeping the store id, more than one match fails with
// types.ErrMultipleMatches.
type TargetStore interface {
	Upsert(ctx context.Context, rec *types.CompositeRecord) (Outcome, error)
	List(ctx context.Context, sourceType types.SourceType, limit int) ([]*types.StoredRecord, error)
	// Get returns every stored row for one identity. More than one row is the
	// state that makes Upsert fail with types.ErrMultipleMatches.
	Get(ctx context.Context, sourceType types.SourceType, identityKey string) ([]*types.StoredRecord, error)
}

type Result struct {
	Upserted int
	Inserted int
	Replaced int
}

// Persister writes a run's records one identity at a time and stops at the
// first failure.
type Persister struct {
	store        TargetStore
	log          *logger.Logger
	writeTimeout time.Duration
}

func NewPersister(store TargetStore, baseLog *logger.Logger, writeTimeout time.Duration) *Persister {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &Persister{store: store, log: baseLog.With("component", "UpsertPersister"), writeTimeout: writeTimeout}
}

func (p *Persister) Persist(ctx context.Context, sourceType types.SourceType, records []*types.CompositeRecord) (Result, error) {
	var res Result
	if p == nil || p.store == nil {
		return res, types.NewPipelineError(types.KindConfiguration, StageUpsert, string(sourceType), fmt.Errorf("persister missing target store"))
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if ctx.Err() != nil {
			return res, wrapUpsertError(sourceType, rec.Key, res.Upserted, context.Cause(ctx))
		}
		outcome, err := p.upsertOne(ctx, rec)
		if err != nil {
			pe := wrapUpsertError(sourceType, rec.Key, res.Upserted, err)
			p.log.Error("upsert aborted",
				"source_type", sourceType,
				"identity_key", rec.Key,
				"upserted", res.Upserted,
				"kind", pe.Kind,
				"error", err,
			)
			return res, pe
		}
		res.Upserted++
		switch outcome {
		case OutcomeInserted:
			res.Inserted++
		case OutcomeReplaced:
			res.Replaced++
		}
	}
	return res, nil
}

func (p *Persister) upsertOne(ctx context.Context, rec *types.CompositeRecord) (Outcome, error) {
	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}
	return p.store.Upsert(ctx, rec)
}

func wrapUpsertError(sourceType types.SourceType, key string, upserted int, err error) *types.PipelineError {
	kind := types.KindOf(err)
	if kind == types.KindInternal {
		kind = types.KindPersistence
	}
	cause := err
	var inner *types.PipelineError
	if errors.As(err, &inner) && inner.Cause != nil {
		cause = inner.Cause
	}
	return &types.PipelineError{
		Kind:        kind,
		Stage:       StageUpsert,
		SourceType:  string(sourceType),
		IdentityKey: key,
		Upserted:    upserted,
		Cause:       cause,
	}
}
