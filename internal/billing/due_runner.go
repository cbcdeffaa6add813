package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omnivurse/crm-eco-sub010/pkg/db/models"
	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
)

// RunStats aggregates one runner pass. Errors holds per-item infrastructure
// failures; a populated Errors never aborts the pass.
type RunStats struct {
	Processed  int      `json:"processed"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

func (s *RunStats) recordError(err error) {
	s.Errors = append(s.Errors, err.Error())
}

// DueRunnerParams groups dependencies for the due-schedule runner.
type DueRunnerParams struct {
	Repo      Repository
	Processor *Processor
	Notifier  Notifier
	Policy    Policy
	Logger    *logger.Logger
	Now       func() time.Time
}

// DueRunner charges every active schedule whose next billing date has
// arrived. It owns the schedule-level retry ladder: a failed charge pushes
// the next attempt out by the backoff table, and the attempt ceiling pauses
// the schedule rather than retrying forever.
type DueRunner struct {
	repo      Repository
	processor *Processor
	notifier  Notifier
	policy    Policy
	logg      *logger.Logger
	now       func() time.Time
}

// NewDueRunner builds the due-schedule runner.
func NewDueRunner(params DueRunnerParams) (*DueRunner, error) {
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
	return &DueRunner{
		repo:      params.Repo,
		processor: params.Processor,
		notifier:  params.Notifier,
		policy:    policy,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Run processes one batch of due schedules. The returned error covers only
// failures that prevented the batch from being read; everything per-item is
// reported through the stats.
func (r *DueRunner) Run(ctx context.Context) (RunStats, error) {
	var stats RunStats
	now := r.now().UTC()

	schedules, err := r.repo.ListDueSchedules(ctx, now, r.policy.DueBatchSize)
	if err != nil {
		return stats, fmt.Errorf("list due schedules: %w", err)
	}

	for i := range schedules {
		r.runOne(ctx, &schedules[i], &stats)
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"processed":  stats.Processed,
		"successful": stats.Successful,
		"failed":     stats.Failed,
		"skipped":    stats.Skipped,
	})
	r.logg.Info(logCtx, "due schedule pass complete")
	return stats, nil
}

func (r *DueRunner) runOne(ctx context.Context, schedule *models.BillingSchedule, stats *RunStats) {
	logCtx := r.logg.WithScheduleID(ctx, schedule.ID.String())

	claimed, err := r.repo.ClaimSchedule(ctx, schedule.ID, schedule.NextBillingDate)
	if err != nil {
		stats.recordError(fmt.Errorf("claim schedule %s: %w", schedule.ID, err))
		return
	}
	if !claimed {
		stats.Skipped++
		r.logg.Info(logCtx, "schedule claimed by another run; skipping")
		return
	}

	profile, skipReason, err := r.chargeability(ctx, schedule)
	if err != nil {
		stats.recordError(fmt.Errorf("gate schedule %s: %w", schedule.ID, err))
		return
	}
	if skipReason != "" {
		stats.Skipped++
		r.logg.Warn(r.logg.WithField(logCtx, "reason", skipReason), "schedule not chargeable; skipping")
		r.releaseClaim(ctx, schedule.ID)
		return
	}

	attempt, err := r.processor.Charge(ctx, schedule, profile)
	if err != nil {
		stats.recordError(fmt.Errorf("charge schedule %s: %w", schedule.ID, err))
		return
	}
	stats.Processed++

	if attempt.Approved() {
		if err := r.applySuccess(ctx, schedule); err != nil {
			stats.recordError(fmt.Errorf("apply success for schedule %s: %w", schedule.ID, err))
			return
		}
		stats.Successful++
		r.notifyReceipt(ctx, schedule, attempt)
		return
	}

	paused, failure, err := r.applyFailure(ctx, schedule, attempt)
	if err != nil {
		stats.recordError(fmt.Errorf("apply failure for schedule %s: %w", schedule.ID, err))
		return
	}
	stats.Failed++
	r.notifyFailed(ctx, schedule, attempt, failure, paused)
}

// chargeability reports the profile to charge or the reason the schedule
// must be skipped this pass. Skips are not failures: the retry ladder does
// not advance for them.
func (r *DueRunner) chargeability(ctx context.Context, schedule *models.BillingSchedule) (*models.PaymentProfile, string, error) {
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

func (r *DueRunner) applySuccess(ctx context.Context, schedule *models.BillingSchedule) error {
	now := r.now().UTC()
	next := NextBillingDate(now, schedule.BillingDay, schedule.Frequency)
	return r.repo.UpdateSchedule(ctx, schedule.ID, map[string]any{
		"retry_count":       0,
		"last_billed_date":  now,
		"next_billing_date": next,
		"claimed_at":        nil,
	})
}

// releaseClaim frees a schedule that was claimed but not charged this pass.
// An error here is not fatal: the claim expires on its own.
func (r *DueRunner) releaseClaim(ctx context.Context, scheduleID uuid.UUID) {
	if err := r.repo.UpdateSchedule(ctx, scheduleID, map[string]any{"claimed_at": nil}); err != nil {
		r.logg.Error(r.logg.WithScheduleID(ctx, scheduleID.String()), "releasing schedule claim failed", err)
	}
}

// applyFailure advances the retry ladder and records the dunning entry.
// Reaching the ceiling pauses the schedule; the failure queue keeps working
// the card independently.
func (r *DueRunner) applyFailure(ctx context.Context, schedule *models.BillingSchedule, attempt *Attempt) (bool, *models.BillingFailure, error) {
	now := r.now().UTC()
	newCount := schedule.RetryCount + 1

	failure, err := r.processor.RecordFailure(ctx, schedule, attempt, r.policy.FirstRetryDelay)
	if err != nil {
		return false, nil, err
	}

	if newCount >= r.policy.MaxRetries {
		if err := r.repo.UpdateSchedule(ctx, schedule.ID, map[string]any{
			"retry_count":  newCount,
			"status":       enums.ScheduleStatusPaused,
			"pause_reason": PauseReasonMaxRetries,
			"claimed_at":   nil,
		}); err != nil {
			return false, failure, err
		}
		logCtx := r.logg.WithScheduleID(ctx, schedule.ID.String())
		r.logg.Warn(r.logg.WithField(logCtx, "retry_count", newCount), "schedule paused after exhausting retries")
		return true, failure, nil
	}

	// The retry lands on a calendar day like every other billing date, not
	// at whatever hour this run happened to fire.
	if err := r.repo.UpdateSchedule(ctx, schedule.ID, map[string]any{
		"retry_count":       newCount,
		"next_billing_date": midnightUTC(now.Add(r.policy.BackoffFor(newCount))),
		"claimed_at":        nil,
	}); err != nil {
		return false, failure, err
	}
	return false, failure, nil
}

func (r *DueRunner) notifyReceipt(ctx context.Context, schedule *models.BillingSchedule, attempt *Attempt) {
	if r.notifier == nil {
		return
	}
	event, ok := r.paymentEvent(ctx, schedule, attempt)
	if !ok {
		return
	}
	if err := r.notifier.PaymentReceipt(ctx, event); err != nil {
		r.logg.Error(r.logg.WithScheduleID(ctx, schedule.ID.String()), "payment receipt notification failed", err)
	}
}

func (r *DueRunner) notifyFailed(ctx context.Context, schedule *models.BillingSchedule, attempt *Attempt, failure *models.BillingFailure, paused bool) {
	if r.notifier == nil {
		return
	}
	event, ok := r.paymentEvent(ctx, schedule, attempt)
	if !ok {
		return
	}
	event.FailureReason = attempt.Result.ErrorMessage
	event.SchedulePaused = paused
	if failure != nil {
		retryAt := failure.NextRetryAt
		event.NextRetryAt = &retryAt
	}
	if err := r.notifier.PaymentFailed(ctx, event); err != nil {
		r.logg.Error(r.logg.WithScheduleID(ctx, schedule.ID.String()), "payment failed notification failed", err)
	}
}

func (r *DueRunner) paymentEvent(ctx context.Context, schedule *models.BillingSchedule, attempt *Attempt) (PaymentEvent, bool) {
	member, err := r.repo.FindMember(ctx, schedule.MemberID)
	if err != nil || member == nil {
		if err != nil {
			r.logg.Error(ctx, "member lookup for notification failed", err)
		}
		return PaymentEvent{}, false
	}
	return PaymentEvent{
		MemberID:      member.ID,
		MemberEmail:   member.Email,
		MemberName:    fmt.Sprintf("%s %s", member.FirstName, member.LastName),
		ScheduleID:    schedule.ID,
		TransactionID: attempt.Transaction.ID,
		Amount:        schedule.Amount,
		OccurredAt:    r.now().UTC(),
	}, true
}
