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
	"github.com/omnivurse/crm-eco-sub010/pkg/square"
)

// chargeGateway is the slice of the payment client the processor needs.
type chargeGateway interface {
	Charge(ctx context.Context, params square.ChargeParams) square.ChargeResult
}

// ProcessorParams groups dependencies for the charge processor.
type ProcessorParams struct {
	Repo    Repository
	Gateway chargeGateway
	Logger  *logger.Logger
	Now     func() time.Time
}

// Processor executes one charge attempt end to end: it records the attempt
// in the processing state before talking to the gateway, then settles the
// row to its terminal state. Rows are never deleted, so an aborted process
// leaves an inspectable processing row behind.
type Processor struct {
	repo    Repository
	gateway chargeGateway
	logg    *logger.Logger
	now     func() time.Time
}

// Attempt is the outcome of one processed charge.
type Attempt struct {
	Transaction *models.BillingTransaction
	Result      square.ChargeResult
}

// Approved reports whether the gateway settled the charge.
func (a Attempt) Approved() bool {
	return a.Result.Approved()
}

// NewProcessor builds a charge processor.
func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		repo:    params.Repo,
		gateway: params.Gateway,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// Charge runs a single attempt against the member's vaulted card. The
// returned error covers persistence problems only; gateway declines and
// outages are reported through the Attempt result.
func (p *Processor) Charge(ctx context.Context, schedule *models.BillingSchedule, profile *models.PaymentProfile) (*Attempt, error) {
	now := p.now().UTC()
	tx := &models.BillingTransaction{
		ID:          uuid.New(),
		ScheduleID:  schedule.ID,
		Amount:      schedule.Amount,
		Status:      enums.TransactionStatusProcessing,
		SubmittedAt: now,
	}
	if err := p.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	logCtx := p.logg.WithScheduleID(ctx, schedule.ID.String())
	logCtx = p.logg.WithField(logCtx, "transaction_id", tx.ID.String())

	result := p.gateway.Charge(ctx, square.ChargeParams{
		Amount:      schedule.Amount,
		CustomerID:  profile.GatewayCustomerID,
		CardID:      profile.GatewayCardID,
		ReferenceID: schedule.ID.String(),
		Note:        "Recurring membership dues",
	})

	processedAt := p.now().UTC()
	updates := map[string]any{
		"processed_at": processedAt,
	}
	if result.Approved() {
		tx.Status = enums.TransactionStatusSuccess
		updates["status"] = enums.TransactionStatusSuccess
		if result.TransactionID != "" {
			tx.GatewayTransactionID = &result.TransactionID
			updates["gateway_transaction_id"] = result.TransactionID
		}
		p.logg.Info(logCtx, "charge approved")
	} else {
		tx.Status = enums.TransactionStatusFailed
		updates["status"] = enums.TransactionStatusFailed
		if result.ErrorCode != "" {
			tx.ErrorCode = &result.ErrorCode
			updates["error_code"] = result.ErrorCode
		}
		if result.ErrorMessage != "" {
			tx.ErrorMessage = &result.ErrorMessage
			updates["error_message"] = result.ErrorMessage
		}
		failCtx := p.logg.WithField(logCtx, "error_code", result.ErrorCode)
		p.logg.Warn(failCtx, "charge failed")
	}
	tx.ProcessedAt = &processedAt

	if err := p.repo.UpdateTransaction(ctx, tx.ID, updates); err != nil {
		return nil, fmt.Errorf("finalize transaction: %w", err)
	}
	return &Attempt{Transaction: tx, Result: result}, nil
}

// RecordFailure writes the dunning record that feeds the failure queue.
// The first pickup is one day out regardless of the schedule backoff.
func (p *Processor) RecordFailure(ctx context.Context, schedule *models.BillingSchedule, attempt *Attempt, firstRetryDelay time.Duration) (*models.BillingFailure, error) {
	if firstRetryDelay <= 0 {
		firstRetryDelay = defaultFirstRetryDelay
	}
	now := p.now().UTC()
	reason := attempt.Result.ErrorMessage
	if reason == "" {
		reason = "charge declined"
	}
	failure := &models.BillingFailure{
		ID:            uuid.New(),
		ScheduleID:    schedule.ID,
		TransactionID: attempt.Transaction.ID,
		Amount:        schedule.Amount,
		FailureReason: reason,
		Status:        enums.FailureStatusPending,
		NextRetryAt:   now.Add(firstRetryDelay),
	}
	if attempt.Result.ErrorCode != "" {
		code := attempt.Result.ErrorCode
		failure.FailureCode = &code
	}
	if err := p.repo.CreateFailure(ctx, failure); err != nil {
		return nil, fmt.Errorf("create failure record: %w", err)
	}
	return failure, nil
}
