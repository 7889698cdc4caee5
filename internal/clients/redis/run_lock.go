package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

const defaultLockTTL = 30 * time.Second

func RunLockKey(sourceType string) string {
	return "rollup:lock:" + strings.TrimSpace(sourceType)
}

// RunLocker serializes runs of one source type across processes. The lock is
// refreshed at half its TTL until released.
type RunLocker struct {
	client *redislock.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewRunLocker(rdb goredis.UniversalClient, ttl time.Duration, log *logger.Logger) *RunLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RunLocker{client: redislock.New(rdb), ttl: ttl, log: log.With("service", "RedisRunLocker")}
}

// Acquire fails immediately with types.ErrRunInProgress when another holder
// owns the lock. The returned context is cancelled with types.ErrLockLost when
// a refresh fails, and release then reports that loss.
func (l *RunLocker) Acquire(ctx context.Context, sourceType string) (context.Context, func(context.Context) error, error) {
	key := RunLockKey(sourceType)
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, nil, fmt.Errorf("%w: %s", types.ErrRunInProgress, key)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("obtain %s: %w", key, err)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	var lost error
	go func() {
		defer close(done)
		refresh := func(rctx context.Context) error { return lock.Refresh(rctx, l.ttl, nil) }
		lost = l.hold(key, l.ttl/2, refresh, cancel, stop)
	}()

	release := func(rctx context.Context) error {
		close(stop)
		<-done
		cancel(context.Canceled)
		var relErr error
		if err := lock.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			relErr = err
		}
		return errors.Join(lost, relErr)
	}
	return runCtx, release, nil
}

// hold refreshes the lock every interval until stop is closed. The first failed
// refresh cancels the run with types.ErrLockLost and is returned.
func (l *RunLocker) hold(key string, interval time.Duration, refresh func(context.Context) error, cancel context.CancelCauseFunc, stop <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			rctx, rcancel := context.WithTimeout(context.Background(), interval)
			err := refresh(rctx)
			rcancel()
			if err != nil {
				lost := fmt.Errorf("%w: %s: %v", types.ErrLockLost, key, err)
				l.log.Error("run lock refresh failed; cancelling run", "key", key, "error", err)
				cancel(lost)
				return lost
			}
		}
	}
}
