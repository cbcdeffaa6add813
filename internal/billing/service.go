package billing

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omnivurse/crm-eco-sub010/pkg/db/models"
	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
	"github.com/omnivurse/crm-eco-sub010/pkg/errors"
)

// ServiceParams groups dependencies for the schedule service.
type ServiceParams struct {
	Repo Repository
	Now  func() time.Time
}

// Service exposes the operator-facing schedule lifecycle: manual pause,
// resume, and cancel, plus reads. Runner-driven transitions live in the
// runners; this service never charges anything.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a schedule service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, stderrors.New("repo is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, now: now}, nil
}

// GetSchedule fetches one schedule.
func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (*models.BillingSchedule, error) {
	schedule, err := s.repo.FindSchedule(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "finding schedule")
	}
	if schedule == nil {
		return nil, errors.New(errors.CodeNotFound, "schedule not found")
	}
	return schedule, nil
}

// ListSchedulesByMember returns a member's schedules, newest first.
func (s *Service) ListSchedulesByMember(ctx context.Context, memberID uuid.UUID) ([]models.BillingSchedule, error) {
	schedules, err := s.repo.ListSchedulesByMember(ctx, memberID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "listing schedules")
	}
	return schedules, nil
}

// ListTransactions returns a schedule's charge history, newest first.
func (s *Service) ListTransactions(ctx context.Context, scheduleID uuid.UUID) ([]models.BillingTransaction, error) {
	txs, err := s.repo.ListTransactionsBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "listing transactions")
	}
	return txs, nil
}

// CreateSchedule registers a new recurring obligation. An unset next
// billing date defaults to one full period out from now.
func (s *Service) CreateSchedule(ctx context.Context, schedule *models.BillingSchedule) error {
	if schedule == nil {
		return errors.New(errors.CodeValidation, "schedule is required")
	}
	if schedule.Amount.IsNegative() || schedule.Amount.IsZero() {
		return errors.New(errors.CodeValidation, "amount must be positive")
	}
	if schedule.BillingDay < 1 || schedule.BillingDay > 31 {
		return errors.New(errors.CodeValidation, "billing day must be between 1 and 31")
	}
	if !schedule.Frequency.IsValid() {
		return errors.New(errors.CodeValidation, fmt.Sprintf("invalid billing frequency %q", schedule.Frequency))
	}
	if schedule.Status == "" {
		schedule.Status = enums.ScheduleStatusActive
	}
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	if schedule.NextBillingDate.IsZero() {
		schedule.NextBillingDate = NextBillingDate(s.now().UTC(), schedule.BillingDay, schedule.Frequency)
	}
	if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "creating schedule")
	}
	return nil
}

// PauseSchedule halts charging with an operator-supplied reason.
func (s *Service) PauseSchedule(ctx context.Context, id uuid.UUID, reason string) error {
	schedule, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if schedule.Status != enums.ScheduleStatusActive {
		return errors.New(errors.CodeStateConflict, fmt.Sprintf("cannot pause schedule in status %s", schedule.Status))
	}
	if reason == "" {
		reason = "Paused by operator"
	}
	if err := s.repo.UpdateSchedule(ctx, id, map[string]any{
		"status":       enums.ScheduleStatusPaused,
		"pause_reason": reason,
	}); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "pausing schedule")
	}
	return nil
}

// ResumeSchedule reactivates a paused schedule with a clean retry slate. A
// past-due next billing date is left in place so the next run charges it
// immediately.
func (s *Service) ResumeSchedule(ctx context.Context, id uuid.UUID) error {
	schedule, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if schedule.Status != enums.ScheduleStatusPaused {
		return errors.New(errors.CodeStateConflict, fmt.Sprintf("cannot resume schedule in status %s", schedule.Status))
	}
	if err := s.repo.UpdateSchedule(ctx, id, map[string]any{
		"status":       enums.ScheduleStatusActive,
		"pause_reason": nil,
		"retry_count":  0,
	}); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "resuming schedule")
	}
	return nil
}

// CancelSchedule permanently ends a schedule.
func (s *Service) CancelSchedule(ctx context.Context, id uuid.UUID) error {
	schedule, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	switch schedule.Status {
	case enums.ScheduleStatusCancelled:
		return nil
	case enums.ScheduleStatusCompleted:
		return errors.New(errors.CodeStateConflict, "cannot cancel a completed schedule")
	}
	if err := s.repo.UpdateSchedule(ctx, id, map[string]any{
		"status": enums.ScheduleStatusCancelled,
	}); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "cancelling schedule")
	}
	return nil
}
