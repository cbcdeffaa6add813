package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omnivurse/crm-eco-sub010/pkg/db/models"
	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
	pkgerrors "github.com/omnivurse/crm-eco-sub010/pkg/errors"
	"github.com/omnivurse/crm-eco-sub010/pkg/types"
)

type fakeScheduleService struct {
	schedule     *models.BillingSchedule
	transactions []models.BillingTransaction
	err          error

	created     *models.BillingSchedule
	pausedWith  string
	resumedID   uuid.UUID
	cancelledID uuid.UUID
}

func (f *fakeScheduleService) GetSchedule(context.Context, uuid.UUID) (*models.BillingSchedule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.schedule, nil
}

func (f *fakeScheduleService) ListSchedulesByMember(context.Context, uuid.UUID) ([]models.BillingSchedule, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.schedule == nil {
		return nil, nil
	}
	return []models.BillingSchedule{*f.schedule}, nil
}

func (f *fakeScheduleService) ListTransactions(context.Context, uuid.UUID) ([]models.BillingTransaction, error) {
	return f.transactions, f.err
}

func (f *fakeScheduleService) CreateSchedule(_ context.Context, schedule *models.BillingSchedule) error {
	if f.err != nil {
		return f.err
	}
	schedule.ID = uuid.MustParse("11111111-2222-3333-4444-555555555555")
	f.created = schedule
	return nil
}

func (f *fakeScheduleService) PauseSchedule(_ context.Context, _ uuid.UUID, reason string) error {
	if f.err != nil {
		return f.err
	}
	f.pausedWith = reason
	return nil
}

func (f *fakeScheduleService) ResumeSchedule(_ context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.resumedID = id
	return nil
}

func (f *fakeScheduleService) CancelSchedule(_ context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.cancelledID = id
	return nil
}

func requestWithScheduleID(method, target, id string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("scheduleId", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func testSchedule() *models.BillingSchedule {
	reason := "Max payment retries exceeded"
	return &models.BillingSchedule{
		ID:              uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		MemberID:        uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"),
		EnrollmentID:    uuid.MustParse("99999999-8888-7777-6666-555555555555"),
		Amount:          decimal.RequireFromString("49.99"),
		Frequency:       enums.BillingFrequencyMonthly,
		BillingDay:      15,
		NextBillingDate: time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC),
		Status:          enums.ScheduleStatusPaused,
		PauseReason:     &reason,
		RetryCount:      4,
		MaxRetries:      4,
	}
}

func TestScheduleDetailReturnsDTO(t *testing.T) {
	svc := &fakeScheduleService{schedule: testSchedule()}

	w := httptest.NewRecorder()
	req := requestWithScheduleID(http.MethodGet, "/api/v1/schedules/x", "11111111-2222-3333-4444-555555555555", "")
	ScheduleDetail(svc, nil)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d", w.Code)
	}

	var body struct {
		Data scheduleResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if body.Data.Amount != "49.99" {
		t.Fatalf("unexpected amount %q", body.Data.Amount)
	}
	if body.Data.Status != "paused" {
		t.Fatalf("unexpected status %q", body.Data.Status)
	}
	if body.Data.PauseReason == nil || *body.Data.PauseReason != "Max payment retries exceeded" {
		t.Fatalf("pause reason missing from payload")
	}
	if body.Data.NextBillingDate != "2025-07-15T00:00:00Z" {
		t.Fatalf("unexpected next billing date %q", body.Data.NextBillingDate)
	}
}

func TestScheduleDetailRejectsMalformedID(t *testing.T) {
	svc := &fakeScheduleService{schedule: testSchedule()}

	w := httptest.NewRecorder()
	req := requestWithScheduleID(http.MethodGet, "/api/v1/schedules/nope", "nope", "")
	ScheduleDetail(svc, nil)(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 but got %d", w.Code)
	}
}

func TestScheduleDetailNotFound(t *testing.T) {
	svc := &fakeScheduleService{err: pkgerrors.New(pkgerrors.CodeNotFound, "schedule not found")}

	w := httptest.NewRecorder()
	req := requestWithScheduleID(http.MethodGet, "/api/v1/schedules/x", "11111111-2222-3333-4444-555555555555", "")
	ScheduleDetail(svc, nil)(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 but got %d", w.Code)
	}
}

func TestScheduleCreateParsesPayload(t *testing.T) {
	svc := &fakeScheduleService{}

	payload := `{
		"member_id": "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		"enrollment_id": "99999999-8888-7777-6666-555555555555",
		"payment_profile_id": "12121212-3434-5656-7878-909090909090",
		"amount": "19.99",
		"frequency": "quarterly",
		"billing_day": 1,
		"next_billing_date": "2025-10-01T00:00:00Z"
	}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", strings.NewReader(payload))
	ScheduleCreate(svc, nil)(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 but got %d: %s", w.Code, w.Body.String())
	}
	if svc.created == nil {
		t.Fatalf("expected service to receive a schedule")
	}
	if !svc.created.Amount.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("unexpected amount %s", svc.created.Amount)
	}
	if svc.created.Frequency != enums.BillingFrequencyQuarterly {
		t.Fatalf("unexpected frequency %s", svc.created.Frequency)
	}
	if svc.created.PaymentProfileID == nil {
		t.Fatalf("expected payment profile id to be set")
	}
	if !svc.created.NextBillingDate.Equal(time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next billing date %v", svc.created.NextBillingDate)
	}
}

func TestScheduleCreateRejectsUnknownFrequency(t *testing.T) {
	svc := &fakeScheduleService{}

	payload := `{
		"member_id": "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		"enrollment_id": "99999999-8888-7777-6666-555555555555",
		"amount": "19.99",
		"frequency": "weekly",
		"billing_day": 1
	}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", strings.NewReader(payload))
	ScheduleCreate(svc, nil)(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 but got %d", w.Code)
	}
	if svc.created != nil {
		t.Fatalf("service must not be called for invalid payloads")
	}
}

func TestScheduleCreateValidatesRequiredFields(t *testing.T) {
	svc := &fakeScheduleService{}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", strings.NewReader(`{"billing_day": 40}`))
	ScheduleCreate(svc, nil)(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 but got %d", w.Code)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
}

func TestSchedulePausePassesTrimmedReason(t *testing.T) {
	svc := &fakeScheduleService{}

	w := httptest.NewRecorder()
	req := requestWithScheduleID(http.MethodPost, "/api/v1/schedules/x/pause",
		"11111111-2222-3333-4444-555555555555", `{"reason": "  Member request  "}`)
	SchedulePause(svc, nil)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d", w.Code)
	}
	if svc.pausedWith != "Member request" {
		t.Fatalf("unexpected reason %q", svc.pausedWith)
	}
}

func TestSchedulePauseStateConflictIs422(t *testing.T) {
	svc := &fakeScheduleService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "cannot pause schedule in status cancelled")}

	w := httptest.NewRecorder()
	req := requestWithScheduleID(http.MethodPost, "/api/v1/schedules/x/pause",
		"11111111-2222-3333-4444-555555555555", "")
	SchedulePause(svc, nil)(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 but got %d", w.Code)
	}
}

func TestScheduleCancel(t *testing.T) {
	svc := &fakeScheduleService{}
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	w := httptest.NewRecorder()
	req := requestWithScheduleID(http.MethodPost, "/api/v1/schedules/x/cancel", id.String(), "")
	ScheduleCancel(svc, nil)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d", w.Code)
	}
	if svc.cancelledID != id {
		t.Fatalf("expected cancel for %s, got %s", id, svc.cancelledID)
	}
}

func TestScheduleTransactionsReturnsHistory(t *testing.T) {
	gatewayID := "sq_123"
	svc := &fakeScheduleService{transactions: []models.BillingTransaction{{
		ID:                   uuid.MustParse("21212121-4343-6565-8787-090909090909"),
		ScheduleID:           uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		Amount:               decimal.RequireFromString("49.99"),
		Status:               enums.TransactionStatusSuccess,
		GatewayTransactionID: &gatewayID,
		SubmittedAt:          time.Date(2025, time.June, 15, 3, 0, 0, 0, time.UTC),
	}}}

	w := httptest.NewRecorder()
	req := requestWithScheduleID(http.MethodGet, "/api/v1/schedules/x/transactions",
		"11111111-2222-3333-4444-555555555555", "")
	ScheduleTransactions(svc, nil)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d", w.Code)
	}

	var body struct {
		Data transactionListResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if len(body.Data.Transactions) != 1 {
		t.Fatalf("expected one transaction, got %d", len(body.Data.Transactions))
	}
	if got := body.Data.Transactions[0].GatewayTransactionID; got == nil || *got != "sq_123" {
		t.Fatalf("gateway transaction id missing")
	}
}
