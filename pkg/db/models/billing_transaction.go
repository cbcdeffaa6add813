package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
)

// BillingTransaction records one charge attempt. A row is created in the
// processing state before the gateway call and updated in place to its
// terminal state; rows are never deleted.
type BillingTransaction struct {
	ID                   uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ScheduleID           uuid.UUID               `gorm:"column:schedule_id;type:uuid;not null;index"`
	Amount               decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Status               enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'processing'"`
	GatewayTransactionID *string                 `gorm:"column:gateway_transaction_id"`
	ErrorCode            *string                 `gorm:"column:error_code"`
	ErrorMessage         *string                 `gorm:"column:error_message"`
	SubmittedAt          time.Time               `gorm:"column:submitted_at;not null"`
	ProcessedAt          *time.Time              `gorm:"column:processed_at"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
