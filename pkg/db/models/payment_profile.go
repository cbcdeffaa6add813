package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentProfile mirrors the gateway-side vault entry for a member.
// The billing engine reads it only; the CRM owns its lifecycle.
type PaymentProfile struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MemberID          uuid.UUID  `gorm:"column:member_id;type:uuid;not null;index"`
	GatewayCustomerID string     `gorm:"column:gateway_customer_id;not null"`
	GatewayCardID     string     `gorm:"column:gateway_card_id;not null"`
	CardBrand         *string    `gorm:"column:card_brand"`
	CardLast4         *string    `gorm:"column:card_last4"`
	IsActive          bool       `gorm:"column:is_active;not null;default:true"`
	DeactivatedAt     *time.Time `gorm:"column:deactivated_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
