package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
)

// BillingFailure is the secondary dunning record created for every failed
// transaction. Its retryCount is independent from the schedule's and it is
// mutated only by the failure-queue runner.
type BillingFailure struct {
	ID                      uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ScheduleID              uuid.UUID           `gorm:"column:schedule_id;type:uuid;not null;index"`
	TransactionID           uuid.UUID           `gorm:"column:transaction_id;type:uuid;not null"`
	Amount                  decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	FailureReason           string              `gorm:"column:failure_reason;not null"`
	FailureCode             *string             `gorm:"column:failure_code"`
	Status                  enums.FailureStatus `gorm:"column:status;type:failure_status;not null;default:'pending';index"`
	RetryCount              int                 `gorm:"column:retry_count;not null;default:0"`
	LastRetryAt             *time.Time          `gorm:"column:last_retry_at"`
	NextRetryAt             time.Time           `gorm:"column:next_retry_at;not null;index"`
	LastError               *string             `gorm:"column:last_error"`
	ResolvedAt              *time.Time          `gorm:"column:resolved_at"`
	ResolvingTransactionID  *uuid.UUID          `gorm:"column:resolving_transaction_id;type:uuid"`
	CreatedAt               time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
