package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/omnivurse/crm-eco-sub010/internal/billing"
	"github.com/omnivurse/crm-eco-sub010/pkg/config"
	"github.com/omnivurse/crm-eco-sub010/pkg/db/models"
	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubRunService struct {
	result billing.RunResult
}

func (s stubRunService) Run(context.Context) (*billing.RunResult, error) {
	result := s.result
	return &result, nil
}

type stubScheduleService struct {
	schedule models.BillingSchedule
}

func (s stubScheduleService) GetSchedule(context.Context, uuid.UUID) (*models.BillingSchedule, error) {
	schedule := s.schedule
	return &schedule, nil
}

func (s stubScheduleService) ListSchedulesByMember(context.Context, uuid.UUID) ([]models.BillingSchedule, error) {
	return []models.BillingSchedule{s.schedule}, nil
}

func (s stubScheduleService) ListTransactions(context.Context, uuid.UUID) ([]models.BillingTransaction, error) {
	return nil, nil
}

func (s stubScheduleService) CreateSchedule(_ context.Context, schedule *models.BillingSchedule) error {
	schedule.ID = s.schedule.ID
	return nil
}

func (s stubScheduleService) PauseSchedule(context.Context, uuid.UUID, string) error {
	return nil
}

func (s stubScheduleService) ResumeSchedule(context.Context, uuid.UUID) error {
	return nil
}

func (s stubScheduleService) CancelSchedule(context.Context, uuid.UUID) error {
	return nil
}

type stubIdempotencyStore struct {
	records map[string]string
}

func (s *stubIdempotencyStore) IdempotencyKey(scope, key string) string {
	return "crm:idempotency:" + scope + ":" + key
}

func (s *stubIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	if stored, ok := s.records[key]; ok {
		return stored, nil
	}
	return "", redis.Nil
}

func (s *stubIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.records[key] = value.(string)
	return true, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	scheduleID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	return NewRouter(RouterParams{
		Config: &config.Config{App: config.AppConfig{Env: "test"}},
		Logger: logger.New(logger.Options{Level: zerolog.ErrorLevel}),
		DB:     stubPinger{},
		Redis:  stubPinger{},
		IdempotencyStore: &stubIdempotencyStore{records: map[string]string{}},
		RunService: stubRunService{result: billing.RunResult{
			Due: billing.RunStats{Processed: 2, Successful: 2},
		}},
		ScheduleService: stubScheduleService{schedule: models.BillingSchedule{
			ID:              scheduleID,
			MemberID:        uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"),
			EnrollmentID:    uuid.MustParse("99999999-8888-7777-6666-555555555555"),
			Amount:          decimal.RequireFromString("49.99"),
			Frequency:       enums.BillingFrequencyMonthly,
			BillingDay:      15,
			NextBillingDate: time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC),
			Status:          enums.ScheduleStatusActive,
		}},
	})
}

func TestRouterHealthLive(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d", w.Code)
	}
	if got := w.Header().Get("X-CRM-Env"); got != "test" {
		t.Fatalf("unexpected env header %q", got)
	}
}

func TestRouterHealthReadyReportsDependencies(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d", w.Code)
	}

	var body struct {
		Data struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode readiness payload: %v", err)
	}
	if body.Data.Dependencies["database"] != "up" {
		t.Fatalf("expected database up, got %v", body.Data.Dependencies)
	}
	if body.Data.Dependencies["pubsub"] != "skipped" {
		t.Fatalf("expected pubsub skipped, got %v", body.Data.Dependencies)
	}
}

func TestRouterBillingRunNeedsNoIdempotencyKey(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/internal/billing/run", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d", w.Code)
	}

	var body struct {
		Data struct {
			Success bool `json:"success"`
			Results struct {
				Due billing.RunStats `json:"due"`
			} `json:"results"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode run payload: %v", err)
	}
	if !body.Data.Success {
		t.Fatalf("expected success=true")
	}
	if body.Data.Results.Due.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", body.Data.Results.Due.Processed)
	}
}

func TestRouterScheduleCreateRequiresIdempotencyKey(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 but got %d", w.Code)
	}
}

func TestRouterSchedulePauseRoutes(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules/11111111-2222-3333-4444-555555555555/pause", nil)
	req.Header.Set("Idempotency-Key", "pause-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 but got %d", w.Code)
	}
}

func TestRouterUnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 but got %d", w.Code)
	}
}
