package rollup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/rollup-backend/internal/data/aggregates"
	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/ctxutil"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/rollup/persist"
)

const opUpsert = "rollup.upsert"

type RollupRecordRepo interface {
	Upsert(dbc dbctx.Context, rec *types.CompositeRecord) (persist.Outcome, error)
	List(dbc dbctx.Context, sourceType types.SourceType, limit int) ([]*types.StoredRecord, error)
	GetByIdentityKey(dbc dbctx.Context, sourceType types.SourceType, identityKey string) ([]*types.StoredRecord, error)
	Count(dbc dbctx.Context, sourceType types.SourceType) (int64, error)
}

type rollupRecordRepo struct {
	db    *gorm.DB
	log   *logger.Logger
	tx    aggregates.TxRunner
	guard aggregates.CASGuard
	hooks aggregates.Hooks
}

func NewRollupRecordRepo(db *gorm.DB, baseLog *logger.Logger, hooks aggregates.Hooks) RollupRecordRepo {
	if hooks == nil {
		hooks = aggregates.NoopHooks()
	}
	return &rollupRecordRepo{
		db:    db,
		log:   baseLog.With("repo", "RollupRecordRepo"),
		tx:    aggregates.NewGormTxRunner(db),
		guard: aggregates.NewCASGuard(db),
		hooks: hooks,
	}
}

// Upsert matches by (source_type, identity_key) inside one identity-scoped
// transaction. On Postgres the matched row is also locked FOR UPDATE; the
// replace itself is a version CAS.
func (r *rollupRecordRepo) Upsert(dbc dbctx.Context, rec *types.CompositeRecord) (persist.Outcome, error) {
	if rec == nil {
		return "", fmt.Errorf("nil record")
	}
	start := time.Now()
	var outcome persist.Outcome
	err := r.tx.InIdentityTx(dbc, string(rec.SourceType), rec.Key, func(tx dbctx.Context) error {
		var err error
		outcome, err = r.upsertTx(tx, rec)
		return err
	})
	err = aggregates.MapError(opUpsert, err)

	ev := aggregates.StoreEvent{
		Operation:   opUpsert,
		SourceType:  string(rec.SourceType),
		IdentityKey: rec.Key,
		Status:      string(outcome),
		Duration:    time.Since(start),
	}
	if err != nil {
		ev.Status = string(types.KindOf(err))
		if types.IsKind(err, types.KindConflict) {
			r.hooks.IncConflict(ev)
			r.log.Warn("identity conflict", "source_type", ev.SourceType, "identity_key", rec.Key, "error", err)
		}
	}
	r.hooks.ObserveOperation(ev)
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (r *rollupRecordRepo) upsertTx(dbc dbctx.Context, rec *types.CompositeRecord) (persist.Outcome, error) {
	tx := dbc.Tx.WithContext(dbc.Ctx)
	postgres := aggregates.IsPostgres(tx)

	q := tx.Where("source_type = ? AND identity_key = ?", string(rec.SourceType), rec.Key)
	if postgres {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var existing []types.RollupRecord
	if err := q.Limit(2).Find(&existing).Error; err != nil {
		return "", err
	}
	if err := aggregates.RequireSingleMatch(len(existing), rec.Key); err != nil {
		return "", err
	}

	row, err := toRow(rec)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	if len(existing) == 0 {
		row.ID = uuid.New()
		row.Version = 1
		row.CreatedAt = now
		row.UpdatedAt = now
		if err := tx.Create(row).Error; err != nil {
			return "", err
		}
		return persist.OutcomeInserted, nil
	}

	cur := existing[0]
	ok, err := r.guard.UpdateByVersion(dbc, row.TableName(), cur.ID, cur.Version, map[string]any{
		"identity":   row.Identity,
		"header":     row.Header,
		"items":      row.Items,
		"categories": row.Categories,
		"item_total": row.ItemTotal,
		"loaded_at":  row.LoadedAt,
		"updated_at": now,
	})
	if err != nil {
		return "", err
	}
	if err := aggregates.RequireCASSuccess(ok, fmt.Sprintf("identity_key=%q version=%d", rec.Key, cur.Version)); err != nil {
		return "", err
	}
	return persist.OutcomeReplaced, nil
}

func (r *rollupRecordRepo) List(dbc dbctx.Context, sourceType types.SourceType, limit int) ([]*types.StoredRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Order("identity_key ASC").Order("created_at ASC")
	if st := strings.TrimSpace(string(sourceType)); st != "" {
		q = q.Where("source_type = ?", st)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []types.RollupRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows)
}

func (r *rollupRecordRepo) GetByIdentityKey(dbc dbctx.Context, sourceType types.SourceType, identityKey string) ([]*types.StoredRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []types.RollupRecord
	if err := transaction.WithContext(dbc.Ctx).
		Where("source_type = ? AND identity_key = ?", string(sourceType), identityKey).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows)
}

func (r *rollupRecordRepo) Count(dbc dbctx.Context, sourceType types.SourceType) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.RollupRecord{}).
		Where("source_type = ?", string(sourceType)).
		Count(&n).Error
	return n, err
}

func toRow(rec *types.CompositeRecord) (*types.RollupRecord, error) {
	identity, err := json.Marshal(rec.Identity)
	if err != nil {
		return nil, fmt.Errorf("encode identity: %w", err)
	}
	header, err := json.Marshal(rec.Header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	categories, err := json.Marshal(rec.Categories)
	if err != nil {
		return nil, fmt.Errorf("encode categories: %w", err)
	}
	return &types.RollupRecord{
		SourceType:  string(rec.SourceType),
		IdentityKey: rec.Key,
		Identity:    datatypes.JSON(identity),
		Header:      datatypes.JSON(header),
		Items:       datatypes.JSON(items),
		Categories:  datatypes.JSON(categories),
		ItemTotal:   rec.ItemTotal(),
		LoadedAt:    rec.LoadedAt.UTC(),
	}, nil
}

func fromRows(rows []types.RollupRecord) ([]*types.StoredRecord, error) {
	out := make([]*types.StoredRecord, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func fromRow(row *types.RollupRecord) (*types.StoredRecord, error) {
	out := &types.StoredRecord{
		ID:      row.ID,
		Version: row.Version,
		CompositeRecord: types.CompositeRecord{
			SourceType: types.SourceType(row.SourceType),
			Key:        row.IdentityKey,
			Header:     types.Attributes{},
			Items:      []types.ItemizedEntity{},
			Categories: []types.CategoryCount{},
			LoadedAt:   row.LoadedAt,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	decode := func(name string, raw datatypes.JSON, dst any) error {
		if len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode %s of %s: %w", name, row.ID, err)
		}
		return nil
	}
	if err := errors.Join(
		decode("identity", row.Identity, &out.Identity),
		decode("header", row.Header, &out.Header),
		decode("items", row.Items, &out.Items),
		decode("categories", row.Categories, &out.Categories),
	); err != nil {
		return nil, err
	}
	for i := range out.Items {
		out.Items[i].Identity = out.Identity
	}
	for i := range out.Categories {
		out.Categories[i].Identity = out.Identity
	}
	return out, nil
}

// Store adapts a RollupRecordRepo to persist.TargetStore.
type Store struct {
	repo RollupRecordRepo
}

func NewStore(repo RollupRecordRepo) *Store {
	return &Store{repo: repo}
}

func (s *Store) Upsert(ctx context.Context, rec *types.CompositeRecord) (persist.Outcome, error) {
	return s.repo.Upsert(dbctx.Context{Ctx: ctxutil.Default(ctx)}, rec)
}

func (s *Store) List(ctx context.Context, sourceType types.SourceType, limit int) ([]*types.StoredRecord, error) {
	return s.repo.List(dbctx.Context{Ctx: ctxutil.Default(ctx)}, sourceType, limit)
}

func (s *Store) Get(ctx context.Context, sourceType types.SourceType, identityKey string) ([]*types.StoredRecord, error) {
	return s.repo.GetByIdentityKey(dbctx.Context{Ctx: ctxutil.Default(ctx)}, sourceType, identityKey)
}
