package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/omnivurse/crm-eco-sub010/pkg/config"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	defaultTimeout = 30 * time.Second
)

var (
	// ErrAccessTokenRequired marks the configuration error that must abort a
	// billing run before any schedule is charged.
	ErrAccessTokenRequired = errors.New("square access token is required")
	ErrLocationIDRequired  = errors.New("square location id is required")

	errInvalidSquareEnv = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired   = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client wraps the single outbound charge operation against Square with
// centralized auth, logging, idempotency, and timeout handling. It never
// retries; all retry policy belongs to the billing runners.
type Client struct {
	sdk         *sqclient.Client
	locationID  string
	currency    string
	environment string
	baseURL     string
	timeout     time.Duration
	logger      *logger.Logger
}

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, ErrAccessTokenRequired
	}

	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, ErrLocationIDRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	baseURL := baseURLs[env]
	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(accessToken),
	)

	c := &Client{
		sdk:         sdk,
		locationID:  locationID,
		currency:    cfg.Currency,
		environment: env,
		baseURL:     baseURL,
		timeout:     timeout,
		logger:      logg,
	}

	logg.Info(ctx, "square client initialized")
	return c, nil
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// NewIdempotencyKey returns a unique key for Square operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "crm"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// Charge submits one payment for the given customer/card pair.
// Every failure mode, including transport errors and timeouts, is folded
// into the returned ChargeResult so callers see a single tagged outcome.
func (c *Client) Charge(ctx context.Context, params ChargeParams) ChargeResult {
	req := params.toSquareRequest(c.locationID, c.currency, c.ensureIdempotencyKey("charge", params.IdempotencyKey))
	c.log(ctx, "request", "create_payment", map[string]any{
		"customer_id": params.CustomerID,
		"card_id":     params.CardID,
		"amount":      params.Amount.StringFixed(2),
	})

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.sdk.Payments.Create(callCtx, req)
	if err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return resultFromError(err)
	}

	result := resultFromPayment(resp.GetPayment())
	c.log(ctx, "response", "create_payment", map[string]any{
		"payment_id": result.TransactionID,
		"outcome":    string(result.Outcome),
	})
	return result
}

func (c *Client) ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return c.NewIdempotencyKey(prefix)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("square %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func resultFromPayment(payment *sq.Payment) ChargeResult {
	if payment == nil {
		return ChargeResult{
			Outcome:      ChargeOutcomeError,
			ErrorCode:    "EMPTY_RESPONSE",
			ErrorMessage: "gateway returned no payment",
		}
	}
	id := stringValue(payment.GetID())
	switch strings.ToUpper(stringValue(payment.GetStatus())) {
	case "COMPLETED", "APPROVED":
		return ChargeResult{Outcome: ChargeOutcomeApproved, TransactionID: id}
	default:
		return ChargeResult{
			Outcome:       ChargeOutcomeDeclined,
			TransactionID: id,
			ErrorCode:     "PAYMENT_NOT_COMPLETED",
			ErrorMessage:  fmt.Sprintf("payment ended in status %s", stringValue(payment.GetStatus())),
		}
	}
}

func resultFromError(err error) ChargeResult {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		// Transport and parse failures follow the decline path so the
		// caller's retry policy still applies.
		return ChargeResult{
			Outcome:      ChargeOutcomeError,
			ErrorCode:    "GATEWAY_UNREACHABLE",
			ErrorMessage: err.Error(),
		}
	}

	code := "GATEWAY_DECLINED"
	if squareErrors := extractSquareErrors(apiErr); len(squareErrors) > 0 && squareErrors[0] != nil {
		code = string(squareErrors[0].Code)
	}

	outcome := ChargeOutcomeDeclined
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		outcome = ChargeOutcomeError
	case apiErr.StatusCode >= http.StatusInternalServerError:
		outcome = ChargeOutcomeError
	}

	return ChargeResult{
		Outcome:      outcome,
		ErrorCode:    code,
		ErrorMessage: err.Error(),
	}
}

func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
