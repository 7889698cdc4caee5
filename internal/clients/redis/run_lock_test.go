package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

func TestRunLockKey(t *testing.T) {
	if got := RunLockKey(" vulnerability "); got != "rollup:lock:vulnerability" {
		t.Fatalf("key: got=%q", got)
	}
}

func TestRunLockerExcludesSecondHolder(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	ctx := context.Background()
	rdb, err := NewClient(ctx, addr)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer rdb.Close()

	l := NewRunLocker(rdb, 2*time.Second, nil)
	st := "lock_test_" + time.Now().Format("150405.000000")
	runCtx, release, err := l.Acquire(ctx, st)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, _, err := l.Acquire(ctx, st); !errors.Is(err, types.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got=%v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if runCtx.Err() == nil {
		t.Fatalf("run context should end on release")
	}
	_, release, err = l.Acquire(ctx, st)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	_ = release(ctx)
}

func TestHoldCancelsRunWhenRefreshFails(t *testing.T) {
	l := &RunLocker{log: logger.NewNop()}
	runCtx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	calls := 0
	refresh := func(context.Context) error {
		calls++
		if calls < 2 {
			return nil
		}
		return errors.New("connection reset")
	}
	lost := l.hold("rollup:lock:vulnerability", time.Millisecond, refresh, cancel, make(chan struct{}))
	if !errors.Is(lost, types.ErrLockLost) {
		t.Fatalf("want ErrLockLost, got=%v", lost)
	}
	if !errors.Is(context.Cause(runCtx), types.ErrLockLost) {
		t.Fatalf("run context cause: want ErrLockLost, got=%v", context.Cause(runCtx))
	}
	if calls != 2 {
		t.Fatalf("refresh calls: want=2 got=%d", calls)
	}
}

func TestHoldStopsCleanly(t *testing.T) {
	l := &RunLocker{log: logger.NewNop()}
	runCtx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	stop := make(chan struct{})
	close(stop)
	if err := l.hold("k", time.Hour, func(context.Context) error { return nil }, cancel, stop); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if runCtx.Err() != nil {
		t.Fatalf("run context cancelled without a lost lock")
	}
}
