package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omnivurse/crm-eco-sub010/pkg/db/models"
	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
)

// FailureRunnerParams groups dependencies for the failure-queue runner.
type FailureRunnerParams struct {
	Repo      Repository
	Processor *Processor
	Notifier  Notifier
	Policy    Policy
	Logger    *logger.Logger
	Now       func() time.Time
}

// FailureRunner re-attempts charges for pending failure records on a fixed
// cadence. It keeps its own retry count per record, never touches schedule
// status, and on resolution clears the schedule's retry state without
// moving the next billing date: the regular cycle stays anchored.
type FailureRunner struct {
	repo      Repository
	processor *Processor
	notifier  Notifier
	policy    Policy
	logg      *logger.Logger
	now       func() time.Time
}

// NewFailureRunner builds the failure-queue runner.
func NewFailureRunner(params FailureRunnerParams) (*FailureRunner, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	policy := params.Policy
	if policy.MaxRetries <= 0 {
		policy = DefaultPolicy()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &FailureRunner{
		repo:      params.Repo,
		processor: params.Processor,
		notifier:  params.Notifier,
		policy:    policy,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Run processes one batch of retryable failure records.
func (r *FailureRunner) Run(ctx context.Context) (RunStats, error) {
	var stats RunStats
	now := r.now().UTC()

	failures, err := r.repo.ListRetryableFailures(ctx, now, r.policy.FailureMaxRetries, r.policy.FailureBatchSize)
	if err != nil {
		return stats, fmt.Errorf("list retryable failures: %w", err)
	}

	for i := range failures {
		r.runOne(ctx, &failures[i], &stats)
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"processed":  stats.Processed,
		"successful": stats.Successful,
		"failed":     stats.Failed,
		"skipped":    stats.Skipped,
	})
	r.logg.Info(logCtx, "failure queue pass complete")
	return stats, nil
}

func (r *FailureRunner) runOne(ctx context.Context, failure *models.BillingFailure, stats *RunStats) {
	logCtx := r.logg.WithField(ctx, "failure_id", failure.ID.String())
	logCtx = r.logg.WithScheduleID(logCtx, failure.ScheduleID.String())

	schedule, err := r.repo.FindSchedule(ctx, failure.ScheduleID)
	if err != nil {
		stats.recordError(fmt.Errorf("find schedule for failure %s: %w", failure.ID, err))
		return
	}
	if schedule == nil || schedule.Status == enums.ScheduleStatusCancelled || schedule.Status == enums.ScheduleStatusCompleted {
		stats.Skipped++
		r.logg.Info(logCtx, "schedule gone or terminal; skipping failure retry")
		return
	}

	profile, skipReason, err := r.chargeability(ctx, schedule)
	if err != nil {
		stats.recordError(fmt.Errorf("gate failure %s: %w", failure.ID, err))
		return
	}
	if skipReason != "" {
		stats.Skipped++
		r.logg.Warn(r.logg.WithField(logCtx, "reason", skipReason), "failure not retryable; skipping")
		return
	}

	attempt, err := r.processor.Charge(ctx, schedule, profile)
	if err != nil {
		stats.recordError(fmt.Errorf("retry charge for failure %s: %w", failure.ID, err))
		return
	}
	stats.Processed++

	if attempt.Approved() {
		if err := r.resolve(ctx, failure, schedule, attempt); err != nil {
			stats.recordError(fmt.Errorf("resolve failure %s: %w", failure.ID, err))
			return
		}
		stats.Successful++
		r.notifyReceipt(ctx, schedule, attempt)
		return
	}

	if err := r.reschedule(ctx, failure, attempt); err != nil {
		stats.recordError(fmt.Errorf("reschedule failure %s: %w", failure.ID, err))
		return
	}
	stats.Failed++
}

func (r *FailureRunner) chargeability(ctx context.Context, schedule *models.BillingSchedule) (*models.PaymentProfile, string, error) {
	enrollment, err := r.repo.FindEnrollment(ctx, schedule.EnrollmentID)
	if err != nil {
		return nil, "", err
	}
	if enrollment == nil {
		return nil, "enrollment missing", nil
	}
	if !enrollment.Status.Billable() {
		return nil, fmt.Sprintf("enrollment status %s not billable", enrollment.Status), nil
	}
	if schedule.PaymentProfileID == nil {
		return nil, "no payment profile on schedule", nil
	}
	profile, err := r.repo.FindPaymentProfile(ctx, *schedule.PaymentProfileID)
	if err != nil {
		return nil, "", err
	}
	if profile == nil {
		return nil, "payment profile missing", nil
	}
	if !profile.IsActive {
		return nil, "payment profile inactive", nil
	}
	return profile, "", nil
}

// resolve closes the failure record and clears the schedule's retry state.
// The next billing date is deliberately untouched: the recovered payment
// covers the cycle that already failed, not a new one.
func (r *FailureRunner) resolve(ctx context.Context, failure *models.BillingFailure, schedule *models.BillingSchedule, attempt *Attempt) error {
	now := r.now().UTC()
	if err := r.repo.UpdateFailure(ctx, failure.ID, map[string]any{
		"status":                   enums.FailureStatusResolved,
		"resolved_at":              now,
		"resolving_transaction_id": attempt.Transaction.ID,
		"retry_count":              failure.RetryCount + 1,
		"last_retry_at":            now,
	}); err != nil {
		return err
	}
	return r.repo.UpdateSchedule(ctx, schedule.ID, map[string]any{
		"retry_count":      0,
		"last_billed_date": now,
	})
}

func (r *FailureRunner) reschedule(ctx context.Context, failure *models.BillingFailure, attempt *Attempt) error {
	now := r.now().UTC()
	updates := map[string]any{
		"retry_count":   failure.RetryCount + 1,
		"last_retry_at": now,
		"next_retry_at": now.Add(r.policy.FailureRetryInterval),
	}
	if attempt.Result.ErrorMessage != "" {
		updates["last_error"] = attempt.Result.ErrorMessage
	}
	return r.repo.UpdateFailure(ctx, failure.ID, updates)
}

func (r *FailureRunner) notifyReceipt(ctx context.Context, schedule *models.BillingSchedule, attempt *Attempt) {
	if r.notifier == nil {
		return
	}
	member, err := r.repo.FindMember(ctx, schedule.MemberID)
	if err != nil || member == nil {
		if err != nil {
			r.logg.Error(ctx, "member lookup for notification failed", err)
		}
		return
	}
	event := PaymentEvent{
		MemberID:      member.ID,
		MemberEmail:   member.Email,
		MemberName:    fmt.Sprintf("%s %s", member.FirstName, member.LastName),
		ScheduleID:    schedule.ID,
		TransactionID: attempt.Transaction.ID,
		Amount:        schedule.Amount,
		OccurredAt:    r.now().UTC(),
	}
	if err := r.notifier.PaymentReceipt(ctx, event); err != nil {
		r.logg.Error(r.logg.WithScheduleID(ctx, schedule.ID.String()), "payment receipt notification failed", err)
	}
}
