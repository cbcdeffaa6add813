package models

import (
	"time"

	"github.com/google/uuid"
)

// Member is the CRM contact a schedule bills. Read-only to the engine;
// used for notification variables only.
type Member struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	FirstName string    `gorm:"column:first_name;not null"`
	LastName  string    `gorm:"column:last_name;not null"`
	Email     string    `gorm:"column:email;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
