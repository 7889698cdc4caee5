package aggregates

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
)

// CASGuard applies compare-and-set updates keyed by id and version.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, fmt.Errorf("missing db transaction context")
}

// UpdateByVersion updates a row only when id and version still match and
// bumps the version. It reports whether a row was updated.
func (g CASGuard) UpdateByVersion(dbc dbctx.Context, table string, id uuid.UUID, expectedVersion int, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	if table == "" || id == uuid.Nil {
		return false, fmt.Errorf("table and id are required for UpdateByVersion")
	}
	if expectedVersion < 0 {
		return false, fmt.Errorf("expectedVersion must be >= 0")
	}
	next := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		next[k] = v
	}
	next["version"] = expectedVersion + 1
	res := db.Table(table).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a version conflict.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s", types.ErrVersionConflict, strings.TrimSpace(message))
}

// RequireSingleMatch rejects more than one row for one identity key.
func RequireSingleMatch(n int, identityKey string) error {
	if n > 1 {
		return fmt.Errorf("%w: %d rows for identity_key=%q", types.ErrMultipleMatches, n, identityKey)
	}
	return nil
}
