package aggregates

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
)

// TxRunner scopes a write for one (source type, identity key) pair.
type TxRunner interface {
	InIdentityTx(dbc dbctx.Context, sourceType, identityKey string, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

// InIdentityTx runs fn inside dbc.Tx when the caller already holds one,
// otherwise inside a fresh transaction. On Postgres the identity is serialized
// with a transaction-scoped advisory lock before fn runs.
func (r *gormTxRunner) InIdentityTx(dbc dbctx.Context, sourceType, identityKey string, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	body := func(tx *gorm.DB) error {
		scoped := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if err := lockIdentity(scoped, sourceType, identityKey); err != nil {
			return err
		}
		return fn(scoped)
	}
	if dbc.Tx != nil {
		return body(dbc.Tx)
	}
	if r == nil || r.db == nil {
		return fmt.Errorf("transaction runner has nil db")
	}
	return r.db.WithContext(dbc.Ctx).Transaction(body)
}

// IsPostgres reports whether db talks to Postgres.
func IsPostgres(db *gorm.DB) bool {
	return db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres"
}

func lockIdentity(dbc dbctx.Context, sourceType, identityKey string) error {
	if !IsPostgres(dbc.Tx) {
		return nil
	}
	return dbc.Tx.WithContext(dbc.Ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", sourceType+"\x00"+identityKey).
		Error
}
