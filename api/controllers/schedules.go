package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omnivurse/crm-eco-sub010/api/responses"
	"github.com/omnivurse/crm-eco-sub010/api/validators"
	"github.com/omnivurse/crm-eco-sub010/pkg/db/models"
	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
	pkgerrors "github.com/omnivurse/crm-eco-sub010/pkg/errors"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
)

// ScheduleService describes the schedule lifecycle methods used by the HTTP
// controllers.
type ScheduleService interface {
	GetSchedule(ctx context.Context, id uuid.UUID) (*models.BillingSchedule, error)
	ListSchedulesByMember(ctx context.Context, memberID uuid.UUID) ([]models.BillingSchedule, error)
	ListTransactions(ctx context.Context, scheduleID uuid.UUID) ([]models.BillingTransaction, error)
	CreateSchedule(ctx context.Context, schedule *models.BillingSchedule) error
	PauseSchedule(ctx context.Context, id uuid.UUID, reason string) error
	ResumeSchedule(ctx context.Context, id uuid.UUID) error
	CancelSchedule(ctx context.Context, id uuid.UUID) error
}

type scheduleResponse struct {
	ID               string  `json:"id"`
	MemberID         string  `json:"member_id"`
	EnrollmentID     string  `json:"enrollment_id"`
	PaymentProfileID *string `json:"payment_profile_id,omitempty"`
	Amount           string  `json:"amount"`
	Frequency        string  `json:"frequency"`
	BillingDay       int     `json:"billing_day"`
	NextBillingDate  string  `json:"next_billing_date"`
	LastBilledDate   *string `json:"last_billed_date,omitempty"`
	Status           string  `json:"status"`
	PauseReason      *string `json:"pause_reason,omitempty"`
	RetryCount       int     `json:"retry_count"`
	MaxRetries       int     `json:"max_retries"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

type scheduleListResponse struct {
	Schedules []scheduleResponse `json:"schedules"`
}

type transactionResponse struct {
	ID                   string  `json:"id"`
	ScheduleID           string  `json:"schedule_id"`
	Amount               string  `json:"amount"`
	Status               string  `json:"status"`
	GatewayTransactionID *string `json:"gateway_transaction_id,omitempty"`
	ErrorCode            *string `json:"error_code,omitempty"`
	ErrorMessage         *string `json:"error_message,omitempty"`
	SubmittedAt          string  `json:"submitted_at"`
	ProcessedAt          *string `json:"processed_at,omitempty"`
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
}

type scheduleCreateRequest struct {
	MemberID         string `json:"member_id" validate:"required"`
	EnrollmentID     string `json:"enrollment_id" validate:"required"`
	PaymentProfileID string `json:"payment_profile_id,omitempty"`
	Amount           string `json:"amount" validate:"required"`
	Frequency        string `json:"frequency" validate:"required"`
	BillingDay       int    `json:"billing_day" validate:"required,min=1,max=31"`
	NextBillingDate  string `json:"next_billing_date,omitempty"`
}

type schedulePauseRequest struct {
	Reason string `json:"reason,omitempty"`
}

func ScheduleDetail(svc ScheduleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := scheduleIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		schedule, err := svc.GetSchedule(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toScheduleResponse(schedule))
	}
}

func MemberSchedules(svc ScheduleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		memberID, err := uuidParam(r, "memberId", "invalid member id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		schedules, err := svc.ListSchedulesByMember(ctx, memberID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := scheduleListResponse{Schedules: make([]scheduleResponse, 0, len(schedules))}
		for i := range schedules {
			out.Schedules = append(out.Schedules, toScheduleResponse(&schedules[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func ScheduleTransactions(svc ScheduleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := scheduleIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		txs, err := svc.ListTransactions(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := transactionListResponse{Transactions: make([]transactionResponse, 0, len(txs))}
		for i := range txs {
			out.Transactions = append(out.Transactions, toTransactionResponse(&txs[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func ScheduleCreate(svc ScheduleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req scheduleCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		schedule, err := scheduleFromCreateRequest(req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.CreateSchedule(ctx, schedule); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toScheduleResponse(schedule))
	}
}

func SchedulePause(svc ScheduleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := scheduleIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req schedulePauseRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		if err := svc.PauseSchedule(ctx, id, validators.SanitizeString(req.Reason, 255)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.ScheduleStatusPaused)})
	}
}

func ScheduleResume(svc ScheduleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := scheduleIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.ResumeSchedule(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.ScheduleStatusActive)})
	}
}

func ScheduleCancel(svc ScheduleService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := scheduleIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.CancelSchedule(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.ScheduleStatusCancelled)})
	}
}

func scheduleFromCreateRequest(req scheduleCreateRequest) (*models.BillingSchedule, error) {
	memberID, err := uuid.Parse(req.MemberID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid member id")
	}
	enrollmentID, err := uuid.Parse(req.EnrollmentID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid enrollment id")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a decimal string")
	}

	frequency, err := enums.ParseBillingFrequency(req.Frequency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing frequency")
	}

	schedule := &models.BillingSchedule{
		MemberID:     memberID,
		EnrollmentID: enrollmentID,
		Amount:       amount,
		Frequency:    frequency,
		BillingDay:   req.BillingDay,
	}

	if req.PaymentProfileID != "" {
		profileID, err := uuid.Parse(req.PaymentProfileID)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment profile id")
		}
		schedule.PaymentProfileID = &profileID
	}

	if req.NextBillingDate != "" {
		next, err := time.Parse(time.RFC3339, req.NextBillingDate)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "next billing date must be RFC 3339")
		}
		schedule.NextBillingDate = next.UTC()
	}

	return schedule, nil
}

func scheduleIDParam(r *http.Request) (uuid.UUID, error) {
	return uuidParam(r, "scheduleId", "invalid schedule id")
}

func uuidParam(r *http.Request, name, invalidMsg string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, invalidMsg)
	}
	return id, nil
}

func toScheduleResponse(schedule *models.BillingSchedule) scheduleResponse {
	out := scheduleResponse{
		ID:              schedule.ID.String(),
		MemberID:        schedule.MemberID.String(),
		EnrollmentID:    schedule.EnrollmentID.String(),
		Amount:          schedule.Amount.StringFixed(2),
		Frequency:       schedule.Frequency.String(),
		BillingDay:      schedule.BillingDay,
		NextBillingDate: schedule.NextBillingDate.UTC().Format(time.RFC3339),
		Status:          schedule.Status.String(),
		PauseReason:     schedule.PauseReason,
		RetryCount:      schedule.RetryCount,
		MaxRetries:      schedule.MaxRetries,
		CreatedAt:       schedule.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       schedule.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if schedule.PaymentProfileID != nil {
		id := schedule.PaymentProfileID.String()
		out.PaymentProfileID = &id
	}
	if schedule.LastBilledDate != nil {
		last := schedule.LastBilledDate.UTC().Format(time.RFC3339)
		out.LastBilledDate = &last
	}
	return out
}

func toTransactionResponse(tx *models.BillingTransaction) transactionResponse {
	out := transactionResponse{
		ID:                   tx.ID.String(),
		ScheduleID:           tx.ScheduleID.String(),
		Amount:               tx.Amount.StringFixed(2),
		Status:               tx.Status.String(),
		GatewayTransactionID: tx.GatewayTransactionID,
		ErrorCode:            tx.ErrorCode,
		ErrorMessage:         tx.ErrorMessage,
		SubmittedAt:          tx.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if tx.ProcessedAt != nil {
		processed := tx.ProcessedAt.UTC().Format(time.RFC3339)
		out.ProcessedAt = &processed
	}
	return out
}
