package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
)

// Enrollment is the membership record owned by the CRM enrollment workflow.
// The billing engine only consults its status when gating charges.
type Enrollment struct {
	ID        uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MemberID  uuid.UUID              `gorm:"column:member_id;type:uuid;not null;index"`
	Status    enums.EnrollmentStatus `gorm:"column:status;type:enrollment_status;not null;default:'pending'"`
	StartedAt *time.Time             `gorm:"column:started_at"`
	EndedAt   *time.Time             `gorm:"column:ended_at"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
