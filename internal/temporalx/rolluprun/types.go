package rolluprun

import (
	"strings"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

const (
	WorkflowName = "rollup_run"
	ActivityRun  = "rollup_run_activity"
)

type RunInput struct {
	SourceType string `json:"source_type"`
	Collection string `json:"collection,omitempty"`
}

// WorkflowID is the id of ad hoc runs; cron schedules use CronWorkflowID.
func WorkflowID(sourceType, suffix string) string {
	return WorkflowName + ":" + strings.TrimSpace(sourceType) + ":" + suffix
}

func CronWorkflowID(sourceType string) string {
	return WorkflowName + ":cron:" + strings.TrimSpace(sourceType)
}

// NonRetryableKinds fail the workflow on the first attempt; retrying cannot
// change their outcome.
var NonRetryableKinds = []string{
	string(types.KindConfiguration),
	string(types.KindMapping),
	string(types.KindConflict),
}
