package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEvent carries the variables the notification templates render.
type PaymentEvent struct {
	MemberID       uuid.UUID
	MemberEmail    string
	MemberName     string
	ScheduleID     uuid.UUID
	TransactionID  uuid.UUID
	Amount         decimal.Decimal
	OccurredAt     time.Time
	FailureReason  string
	NextRetryAt    *time.Time
	SchedulePaused bool
}

// Notifier delivers member-facing payment notifications. Delivery problems
// must never change billing state; runners log returned errors and move on.
type Notifier interface {
	PaymentReceipt(ctx context.Context, event PaymentEvent) error
	PaymentFailed(ctx context.Context, event PaymentEvent) error
}
