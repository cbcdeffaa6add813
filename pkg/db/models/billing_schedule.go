package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
)

// BillingSchedule is one recurring obligation for one member/enrollment.
//
// retryCount is reset to zero by any successful charge and only the
// due-schedule runner may transition the status to paused.
type BillingSchedule struct {
	ID               uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MemberID         uuid.UUID              `gorm:"column:member_id;type:uuid;not null;index"`
	EnrollmentID     uuid.UUID              `gorm:"column:enrollment_id;type:uuid;not null;index"`
	PaymentProfileID *uuid.UUID             `gorm:"column:payment_profile_id;type:uuid"`
	Amount           decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	Frequency        enums.BillingFrequency `gorm:"column:frequency;type:billing_frequency;not null;default:'monthly'"`
	BillingDay       int                    `gorm:"column:billing_day;not null"`
	NextBillingDate  time.Time              `gorm:"column:next_billing_date;not null;index"`
	LastBilledDate   *time.Time             `gorm:"column:last_billed_date"`
	Status           enums.ScheduleStatus   `gorm:"column:status;type:schedule_status;not null;default:'active';index"`
	PauseReason      *string                `gorm:"column:pause_reason"`
	RetryCount       int                    `gorm:"column:retry_count;not null;default:0"`
	MaxRetries       int                    `gorm:"column:max_retries;not null;default:4"`
	ClaimedAt        *time.Time             `gorm:"column:claimed_at"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
