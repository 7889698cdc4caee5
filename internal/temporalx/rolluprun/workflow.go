package rolluprun

import (
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

// Workflow runs one pipeline pass as a single activity. Under a cron schedule
// every tick is a fresh execution of this workflow.
func Workflow(ctx workflow.Context, in RunInput) (types.RunSummary, error) {
	var out types.RunSummary
	if strings.TrimSpace(in.SourceType) == "" {
		return out, temporal.NewNonRetryableApplicationError("rolluprun: missing source_type", string(types.KindConfiguration), nil)
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        30 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        10 * time.Minute,
			MaximumAttempts:        4,
			NonRetryableErrorTypes: NonRetryableKinds,
		},
	})

	if err := workflow.ExecuteActivity(ctx, ActivityRun, in).Get(ctx, &out); err != nil {
		return out, err
	}
	workflow.GetLogger(ctx).Info("rollup run finished",
		"source_type", in.SourceType,
		"records_upserted", out.RecordsUpserted,
	)
	return out, nil
}
