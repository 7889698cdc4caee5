package rolluprun

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

// Started identifies a workflow execution.
type Started struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Scheduler starts rollup workflows on a task queue.
type Scheduler struct {
	tc        temporalsdkclient.Client
	taskQueue string
	log       *logger.Logger
}

func NewScheduler(tc temporalsdkclient.Client, taskQueue string, log *logger.Logger) (*Scheduler, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if strings.TrimSpace(taskQueue) == "" {
		return nil, fmt.Errorf("temporal task queue is required")
	}
	return &Scheduler{tc: tc, taskQueue: taskQueue, log: log.With("component", "RollupScheduler")}, nil
}

// StartRun starts a one-off run and returns without waiting for it.
func (s *Scheduler) StartRun(ctx context.Context, sourceType, collection string) (Started, error) {
	in := RunInput{SourceType: strings.TrimSpace(sourceType), Collection: strings.TrimSpace(collection)}
	run, err := s.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        WorkflowID(in.SourceType, uuid.NewString()),
		TaskQueue: s.taskQueue,
	}, WorkflowName, in)
	if err != nil {
		return Started{}, fmt.Errorf("start rollup workflow: %w", err)
	}
	s.log.Info("rollup workflow started", "source_type", in.SourceType, "workflow_id", run.GetID())
	return Started{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// Schedule starts a cron workflow for sourceType. An existing schedule for the
// same source type is left running and reported as already started.
func (s *Scheduler) Schedule(ctx context.Context, sourceType, collection, cron string) (Started, error) {
	if strings.TrimSpace(cron) == "" {
		return Started{}, fmt.Errorf("cron expression is required")
	}
	in := RunInput{SourceType: strings.TrimSpace(sourceType), Collection: strings.TrimSpace(collection)}
	id := CronWorkflowID(in.SourceType)
	run, err := s.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:           id,
		TaskQueue:    s.taskQueue,
		CronSchedule: cron,
	}, WorkflowName, in)
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		s.log.Info("rollup schedule already active", "source_type", in.SourceType, "workflow_id", id)
		return Started{WorkflowID: id, RunID: already.RunId}, nil
	}
	if err != nil {
		return Started{}, fmt.Errorf("schedule rollup workflow: %w", err)
	}
	s.log.Info("rollup schedule active", "source_type", in.SourceType, "cron", cron, "workflow_id", run.GetID())
	return Started{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// Unschedule terminates the cron workflow of sourceType.
func (s *Scheduler) Unschedule(ctx context.Context, sourceType string) error {
	return s.tc.TerminateWorkflow(ctx, CronWorkflowID(sourceType), "", "unscheduled")
}
