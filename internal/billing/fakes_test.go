package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/omnivurse/crm-eco-sub010/pkg/db/models"
	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
	"github.com/omnivurse/crm-eco-sub010/pkg/square"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.ErrorLevel})
}

type fakeRepo struct {
	schedules    map[uuid.UUID]*models.BillingSchedule
	transactions map[uuid.UUID]*models.BillingTransaction
	failures     map[uuid.UUID]*models.BillingFailure
	profiles     map[uuid.UUID]*models.PaymentProfile
	enrollments  map[uuid.UUID]*models.Enrollment
	members      map[uuid.UUID]*models.Member

	claimDenied    bool
	listErr        error
	createTxErr    error
	updateTxErr    error
	createFailErr  error
	updateSchedErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		schedules:    map[uuid.UUID]*models.BillingSchedule{},
		transactions: map[uuid.UUID]*models.BillingTransaction{},
		failures:     map[uuid.UUID]*models.BillingFailure{},
		profiles:     map[uuid.UUID]*models.PaymentProfile{},
		enrollments:  map[uuid.UUID]*models.Enrollment{},
		members:      map[uuid.UUID]*models.Member{},
	}
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) FindSchedule(ctx context.Context, id uuid.UUID) (*models.BillingSchedule, error) {
	schedule, ok := f.schedules[id]
	if !ok {
		return nil, nil
	}
	copied := *schedule
	return &copied, nil
}

func (f *fakeRepo) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]models.BillingSchedule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var due []models.BillingSchedule
	for _, schedule := range f.schedules {
		if schedule.Status == enums.ScheduleStatusActive && !schedule.NextBillingDate.After(now) {
			due = append(due, *schedule)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextBillingDate.Before(due[j].NextBillingDate) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeRepo) ClaimSchedule(ctx context.Context, scheduleID uuid.UUID, dueAt time.Time) (bool, error) {
	if f.claimDenied {
		return false, nil
	}
	schedule, ok := f.schedules[scheduleID]
	if !ok || schedule.Status != enums.ScheduleStatusActive || !schedule.NextBillingDate.Equal(dueAt) {
		return false, nil
	}
	if schedule.ClaimedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	schedule.ClaimedAt = &now
	return true, nil
}

func (f *fakeRepo) UpdateSchedule(ctx context.Context, scheduleID uuid.UUID, updates map[string]any) error {
	if f.updateSchedErr != nil {
		return f.updateSchedErr
	}
	schedule, ok := f.schedules[scheduleID]
	if !ok {
		return fmt.Errorf("schedule %s not found", scheduleID)
	}
	for key, value := range updates {
		switch key {
		case "retry_count":
			schedule.RetryCount = value.(int)
		case "last_billed_date":
			t := value.(time.Time)
			schedule.LastBilledDate = &t
		case "next_billing_date":
			schedule.NextBillingDate = value.(time.Time)
		case "status":
			schedule.Status = value.(enums.ScheduleStatus)
		case "pause_reason":
			if value == nil {
				schedule.PauseReason = nil
			} else {
				reason := value.(string)
				schedule.PauseReason = &reason
			}
		case "claimed_at":
			if value == nil {
				schedule.ClaimedAt = nil
			} else {
				t := value.(time.Time)
				schedule.ClaimedAt = &t
			}
		}
	}
	return nil
}

func (f *fakeRepo) ListSchedulesByMember(ctx context.Context, memberID uuid.UUID) ([]models.BillingSchedule, error) {
	var out []models.BillingSchedule
	for _, schedule := range f.schedules {
		if schedule.MemberID == memberID {
			out = append(out, *schedule)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateSchedule(ctx context.Context, schedule *models.BillingSchedule) error {
	f.schedules[schedule.ID] = schedule
	return nil
}

func (f *fakeRepo) CreateTransaction(ctx context.Context, tx *models.BillingTransaction) error {
	if f.createTxErr != nil {
		return f.createTxErr
	}
	copied := *tx
	f.transactions[tx.ID] = &copied
	return nil
}

func (f *fakeRepo) UpdateTransaction(ctx context.Context, txID uuid.UUID, updates map[string]any) error {
	if f.updateTxErr != nil {
		return f.updateTxErr
	}
	tx, ok := f.transactions[txID]
	if !ok {
		return fmt.Errorf("transaction %s not found", txID)
	}
	for key, value := range updates {
		switch key {
		case "status":
			tx.Status = value.(enums.TransactionStatus)
		case "gateway_transaction_id":
			id := value.(string)
			tx.GatewayTransactionID = &id
		case "error_code":
			code := value.(string)
			tx.ErrorCode = &code
		case "error_message":
			msg := value.(string)
			tx.ErrorMessage = &msg
		case "processed_at":
			t := value.(time.Time)
			tx.ProcessedAt = &t
		}
	}
	return nil
}

func (f *fakeRepo) ListTransactionsBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.BillingTransaction, error) {
	var out []models.BillingTransaction
	for _, tx := range f.transactions {
		if tx.ScheduleID == scheduleID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateFailure(ctx context.Context, failure *models.BillingFailure) error {
	if f.createFailErr != nil {
		return f.createFailErr
	}
	copied := *failure
	f.failures[failure.ID] = &copied
	return nil
}

func (f *fakeRepo) ListRetryableFailures(ctx context.Context, now time.Time, maxRetries, limit int) ([]models.BillingFailure, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.BillingFailure
	for _, failure := range f.failures {
		if failure.Status == enums.FailureStatusPending && !failure.NextRetryAt.After(now) && failure.RetryCount < maxRetries {
			out = append(out, *failure)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) UpdateFailure(ctx context.Context, failureID uuid.UUID, updates map[string]any) error {
	failure, ok := f.failures[failureID]
	if !ok {
		return fmt.Errorf("failure %s not found", failureID)
	}
	for key, value := range updates {
		switch key {
		case "status":
			failure.Status = value.(enums.FailureStatus)
		case "retry_count":
			failure.RetryCount = value.(int)
		case "last_retry_at":
			t := value.(time.Time)
			failure.LastRetryAt = &t
		case "next_retry_at":
			failure.NextRetryAt = value.(time.Time)
		case "last_error":
			msg := value.(string)
			failure.LastError = &msg
		case "resolved_at":
			t := value.(time.Time)
			failure.ResolvedAt = &t
		case "resolving_transaction_id":
			id := value.(uuid.UUID)
			failure.ResolvingTransactionID = &id
		}
	}
	return nil
}

func (f *fakeRepo) FindPaymentProfile(ctx context.Context, id uuid.UUID) (*models.PaymentProfile, error) {
	profile, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	copied := *profile
	return &copied, nil
}

func (f *fakeRepo) FindEnrollment(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	enrollment, ok := f.enrollments[id]
	if !ok {
		return nil, nil
	}
	copied := *enrollment
	return &copied, nil
}

func (f *fakeRepo) FindMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	member, ok := f.members[id]
	if !ok {
		return nil, nil
	}
	copied := *member
	return &copied, nil
}

type fakeGateway struct {
	results []square.ChargeResult
	calls   []square.ChargeParams
}

func (g *fakeGateway) Charge(ctx context.Context, params square.ChargeParams) square.ChargeResult {
	g.calls = append(g.calls, params)
	if len(g.results) == 0 {
		return square.ChargeResult{Outcome: square.ChargeOutcomeApproved, TransactionID: "pay_default"}
	}
	result := g.results[0]
	if len(g.results) > 1 {
		g.results = g.results[1:]
	}
	return result
}

type fakeNotifier struct {
	receipts []PaymentEvent
	failures []PaymentEvent
	err      error
}

func (n *fakeNotifier) PaymentReceipt(ctx context.Context, event PaymentEvent) error {
	n.receipts = append(n.receipts, event)
	return n.err
}

func (n *fakeNotifier) PaymentFailed(ctx context.Context, event PaymentEvent) error {
	n.failures = append(n.failures, event)
	return n.err
}
