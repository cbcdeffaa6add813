package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omnivurse/crm-eco-sub010/pkg/db/models"
	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
	"github.com/omnivurse/crm-eco-sub010/pkg/square"
)

type failureRunnerHarness struct {
	repo     *fakeRepo
	gateway  *fakeGateway
	notifier *fakeNotifier
	runner   *FailureRunner
	now      time.Time
	schedule *models.BillingSchedule
	failure  *models.BillingFailure
}

func newFailureRunnerHarness(t *testing.T) *failureRunnerHarness {
	t.Helper()
	now := time.Date(2025, 6, 20, 4, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	gateway := &fakeGateway{}
	notifier := &fakeNotifier{}
	logg := testLogger()

	memberID := uuid.New()
	repo.members[memberID] = &models.Member{ID: memberID, FirstName: "Ben", LastName: "Reyes", Email: "ben@example.com"}

	enrollmentID := uuid.New()
	repo.enrollments[enrollmentID] = &models.Enrollment{ID: enrollmentID, MemberID: memberID, Status: enums.EnrollmentStatusApproved}

	profileID := uuid.New()
	repo.profiles[profileID] = &models.PaymentProfile{
		ID:                profileID,
		MemberID:          memberID,
		GatewayCustomerID: "cust_2",
		GatewayCardID:     "card_2",
		IsActive:          true,
	}

	nextBilling := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	schedule := &models.BillingSchedule{
		ID:               uuid.New(),
		MemberID:         memberID,
		EnrollmentID:     enrollmentID,
		PaymentProfileID: &profileID,
		Amount:           decimal.RequireFromString("25.00"),
		Frequency:        enums.BillingFrequencyMonthly,
		BillingDay:       1,
		NextBillingDate:  nextBilling,
		Status:           enums.ScheduleStatusPaused,
		RetryCount:       4,
		MaxRetries:       4,
	}
	repo.schedules[schedule.ID] = schedule

	failure := &models.BillingFailure{
		ID:            uuid.New(),
		ScheduleID:    schedule.ID,
		TransactionID: uuid.New(),
		Amount:        schedule.Amount,
		FailureReason: "card declined",
		Status:        enums.FailureStatusPending,
		RetryCount:    1,
		NextRetryAt:   now.Add(-time.Hour),
	}
	repo.failures[failure.ID] = failure

	nowFn := func() time.Time { return now }
	processor, err := NewProcessor(ProcessorParams{Repo: repo, Gateway: gateway, Logger: logg, Now: nowFn})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	runner, err := NewFailureRunner(FailureRunnerParams{
		Repo:      repo,
		Processor: processor,
		Notifier:  notifier,
		Policy:    DefaultPolicy(),
		Logger:    logg,
		Now:       nowFn,
	})
	if err != nil {
		t.Fatalf("NewFailureRunner: %v", err)
	}
	return &failureRunnerHarness{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		runner:   runner,
		now:      now,
		schedule: schedule,
		failure:  failure,
	}
}

func TestFailureRunner_resolutionClearsScheduleRetryStateOnly(t *testing.T) {
	h := newFailureRunnerHarness(t)
	h.gateway.results = []square.ChargeResult{{Outcome: square.ChargeOutcomeApproved, TransactionID: "pay_recover"}}
	originalNextBilling := h.schedule.NextBillingDate

	stats, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Processed != 1 || stats.Successful != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	failure := h.repo.failures[h.failure.ID]
	if failure.Status != enums.FailureStatusResolved {
		t.Fatalf("expected resolved failure, got %s", failure.Status)
	}
	if failure.ResolvedAt == nil || failure.ResolvingTransactionID == nil {
		t.Fatalf("resolution fields not set")
	}

	schedule := h.repo.schedules[h.schedule.ID]
	if schedule.RetryCount != 0 {
		t.Fatalf("schedule retry count not reset: %d", schedule.RetryCount)
	}
	if schedule.LastBilledDate == nil || !schedule.LastBilledDate.Equal(h.now) {
		t.Fatalf("last billed date not set")
	}
	if !schedule.NextBillingDate.Equal(originalNextBilling) {
		t.Fatalf("next billing date must stay anchored, got %s", schedule.NextBillingDate)
	}
	// Resolution never reactivates a paused schedule; that is an operator call.
	if schedule.Status != enums.ScheduleStatusPaused {
		t.Fatalf("failure runner must not change schedule status, got %s", schedule.Status)
	}
	if len(h.notifier.receipts) != 1 {
		t.Fatalf("expected receipt notification")
	}
}

func TestFailureRunner_failureReschedulesFixedInterval(t *testing.T) {
	h := newFailureRunnerHarness(t)
	h.gateway.results = []square.ChargeResult{{
		Outcome:      square.ChargeOutcomeDeclined,
		ErrorCode:    "INSUFFICIENT_FUNDS",
		ErrorMessage: "insufficient funds",
	}}

	stats, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	failure := h.repo.failures[h.failure.ID]
	if failure.RetryCount != 2 {
		t.Fatalf("expected retry count 2, got %d", failure.RetryCount)
	}
	want := h.now.Add(72 * time.Hour)
	if !failure.NextRetryAt.Equal(want) {
		t.Fatalf("expected next retry %s, got %s", want, failure.NextRetryAt)
	}
	if failure.LastError == nil || *failure.LastError != "insufficient funds" {
		t.Fatalf("last error not recorded")
	}
	if failure.Status != enums.FailureStatusPending {
		t.Fatalf("failure should stay pending, got %s", failure.Status)
	}

	// The schedule-level ladder is untouched by failure-queue attempts.
	schedule := h.repo.schedules[h.schedule.ID]
	if schedule.RetryCount != 4 || schedule.Status != enums.ScheduleStatusPaused {
		t.Fatalf("failure runner must not touch schedule retry state")
	}
}

func TestFailureRunner_exhaustedRecordsNotSelected(t *testing.T) {
	h := newFailureRunnerHarness(t)
	h.failure.RetryCount = 4

	stats, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Processed != 0 {
		t.Fatalf("exhausted failure should not be attempted: %+v", stats)
	}
	if len(h.gateway.calls) != 0 {
		t.Fatalf("gateway should not be called")
	}
}

func TestFailureRunner_skipsCancelledSchedule(t *testing.T) {
	h := newFailureRunnerHarness(t)
	h.schedule.Status = enums.ScheduleStatusCancelled

	stats, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Skipped != 1 || stats.Processed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestFailureRunner_retriesWhileSchedulePaused(t *testing.T) {
	h := newFailureRunnerHarness(t)
	h.gateway.results = []square.ChargeResult{{Outcome: square.ChargeOutcomeDeclined, ErrorMessage: "declined"}}

	stats, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Paused schedules are exactly what the failure queue is for.
	if stats.Processed != 1 {
		t.Fatalf("paused schedule should still be retried: %+v", stats)
	}
}

func TestFailureRunner_listErrorAbortsRun(t *testing.T) {
	h := newFailureRunnerHarness(t)
	h.repo.listErr = errors.New("db unreachable")

	if _, err := h.runner.Run(context.Background()); err == nil {
		t.Fatalf("expected run error when the batch cannot be read")
	}
}
