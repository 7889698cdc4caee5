package aggregates

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/rollup-backend/internal/data/repos/testutil"
	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
)

func TestInIdentityTxRollsBackOnError(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	runner := NewGormTxRunner(db)
	boom := errors.New("boom")

	err := runner.InIdentityTx(dbctx.Context{Ctx: ctx}, "vulnerability", "LOB1|A100", func(dbc dbctx.Context) error {
		testutil.SeedRollupRecord(t, dbc.Ctx, dbc.Tx, "vulnerability", "LOB1|A100")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got=%v", err)
	}
	var n int64
	if err := db.Model(&types.RollupRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("rows after rollback: want=0 got=%d", n)
	}
}

func TestInIdentityTxJoinsCallerTransaction(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	outer := db.Begin()
	defer outer.Rollback()

	var seen dbctx.Context
	err := NewGormTxRunner(nil).InIdentityTx(dbctx.Context{Ctx: ctx, Tx: outer}, "vulnerability", "LOB1|A100", func(dbc dbctx.Context) error {
		seen = dbc
		return nil
	})
	if err != nil {
		t.Fatalf("InIdentityTx: %v", err)
	}
	if seen.Tx != outer {
		t.Fatalf("caller transaction was not reused")
	}
}

func TestIsPostgres(t *testing.T) {
	if IsPostgres(nil) {
		t.Fatalf("nil db is not postgres")
	}
	if IsPostgres(testutil.DB(t)) {
		t.Fatalf("sqlite reported as postgres")
	}
}
