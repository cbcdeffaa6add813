package cron

import (
	"context"
	"fmt"

	"github.com/omnivurse/crm-eco-sub010/internal/billing"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
)

// billingOrchestrator is the slice of the billing engine the job drives.
type billingOrchestrator interface {
	Run(ctx context.Context) (*billing.RunResult, error)
}

// BillingRunJobParams configure the scheduled billing run.
type BillingRunJobParams struct {
	Logger       *logger.Logger
	Orchestrator billingOrchestrator
}

// NewBillingRunJob builds the cron job that executes the daily billing run.
func NewBillingRunJob(params BillingRunJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	return &billingRunJob{
		logg:         params.Logger,
		orchestrator: params.Orchestrator,
	}, nil
}

type billingRunJob struct {
	logg         *logger.Logger
	orchestrator billingOrchestrator
}

func (j *billingRunJob) Name() string { return "billing-run" }

func (j *billingRunJob) Run(ctx context.Context) error {
	result, err := j.orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("billing run: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due_processed":    result.Due.Processed,
		"due_successful":   result.Due.Successful,
		"due_failed":       result.Due.Failed,
		"due_skipped":      result.Due.Skipped,
		"queue_processed":  result.FailureQueue.Processed,
		"queue_successful": result.FailureQueue.Successful,
		"queue_failed":     result.FailureQueue.Failed,
		"queue_skipped":    result.FailureQueue.Skipped,
		"item_errors":      len(result.Due.Errors) + len(result.FailureQueue.Errors),
	})
	j.logg.Info(logCtx, "scheduled billing run finished")
	return nil
}
