package rolluprun

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

// Runner is the pipeline entry point the activity drives.
type Runner interface {
	RunPipeline(ctx context.Context, sourceType, collection string) (types.RunSummary, error)
}

type Activities struct {
	Log    *logger.Logger
	Runner Runner
}

// Run executes the pipeline, heartbeating while it works. Failures are returned
// as application errors typed by their kind so the retry policy can tell them apart.
func (a *Activities) Run(ctx context.Context, in RunInput) (types.RunSummary, error) {
	if a == nil || a.Runner == nil {
		return types.RunSummary{}, temporal.NewNonRetryableApplicationError("rolluprun: activity not configured", string(types.KindConfiguration), nil)
	}
	stopHB := startHeartbeat(ctx, 20*time.Second)
	defer stopHB()

	summary, err := a.Runner.RunPipeline(ctx, in.SourceType, in.Collection)
	if err != nil {
		kind := types.KindOf(err)
		if a.Log != nil {
			a.Log.Warn("rollup activity failed",
				"source_type", in.SourceType,
				"kind", kind,
				"attempt", activity.GetInfo(ctx).Attempt,
				"error", err,
			)
		}
		return summary, temporal.NewApplicationErrorWithCause(fmt.Sprintf("rollup %s failed", in.SourceType), string(kind), err, summary)
	}
	return summary, nil
}

func startHeartbeat(ctx context.Context, every time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
