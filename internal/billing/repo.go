package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/omnivurse/crm-eco-sub010/internal/repo"
	"github.com/omnivurse/crm-eco-sub010/pkg/db/models"
	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
)

// Repository handles dunning persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindSchedule(ctx context.Context, id uuid.UUID) (*models.BillingSchedule, error)
	ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]models.BillingSchedule, error)
	ClaimSchedule(ctx context.Context, scheduleID uuid.UUID, dueAt time.Time) (bool, error)
	UpdateSchedule(ctx context.Context, scheduleID uuid.UUID, updates map[string]any) error
	ListSchedulesByMember(ctx context.Context, memberID uuid.UUID) ([]models.BillingSchedule, error)
	CreateSchedule(ctx context.Context, schedule *models.BillingSchedule) error

	CreateTransaction(ctx context.Context, tx *models.BillingTransaction) error
	UpdateTransaction(ctx context.Context, txID uuid.UUID, updates map[string]any) error
	ListTransactionsBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.BillingTransaction, error)

	CreateFailure(ctx context.Context, failure *models.BillingFailure) error
	ListRetryableFailures(ctx context.Context, now time.Time, maxRetries, limit int) ([]models.BillingFailure, error)
	UpdateFailure(ctx context.Context, failureID uuid.UUID, updates map[string]any) error

	FindPaymentProfile(ctx context.Context, id uuid.UUID) (*models.PaymentProfile, error)
	FindEnrollment(ctx context.Context, id uuid.UUID) (*models.Enrollment, error)
	FindMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a dunning repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) FindSchedule(ctx context.Context, id uuid.UUID) (*models.BillingSchedule, error) {
	var schedule models.BillingSchedule
	if err := r.DB(ctx).
		Where("id = ?", id).
		First(&schedule).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &schedule, nil
}

func (r *repository) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]models.BillingSchedule, error) {
	if limit <= 0 {
		limit = defaultDueBatchSize
	}
	var schedules []models.BillingSchedule
	if err := r.DB(ctx).
		Where("status = ?", enums.ScheduleStatusActive).
		Where("next_billing_date <= ?", now).
		Order("next_billing_date ASC").
		Limit(limit).
		Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// claimStaleAfter bounds how long a claim from a crashed run blocks its
// schedule. Runs settle items in seconds; anything older is abandoned.
const claimStaleAfter = 15 * time.Minute

// ClaimSchedule stamps the row with a claim marker, but only when it is
// still in the state the caller listed it in and no live claim is held.
// The marker is real state: a second run racing the same schedule sees
// claimed_at already set and gets zero rows, even while the first run is
// still waiting on the gateway. Settling the item clears the marker.
func (r *repository) ClaimSchedule(ctx context.Context, scheduleID uuid.UUID, dueAt time.Time) (bool, error) {
	now := time.Now().UTC()
	result := r.DB(ctx).
		Model(&models.BillingSchedule{}).
		Where("id = ?", scheduleID).
		Where("status = ?", enums.ScheduleStatusActive).
		Where("next_billing_date = ?", dueAt).
		Where("(claimed_at IS NULL OR claimed_at < ?)", now.Add(-claimStaleAfter)).
		Update("claimed_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) UpdateSchedule(ctx context.Context, scheduleID uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).
		Model(&models.BillingSchedule{}).
		Where("id = ?", scheduleID).
		Updates(updates).Error
}

func (r *repository) ListSchedulesByMember(ctx context.Context, memberID uuid.UUID) ([]models.BillingSchedule, error) {
	var schedules []models.BillingSchedule
	if err := r.DB(ctx).
		Where("member_id = ?", memberID).
		Order("created_at DESC").
		Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *repository) CreateSchedule(ctx context.Context, schedule *models.BillingSchedule) error {
	return r.DB(ctx).Create(schedule).Error
}

func (r *repository) CreateTransaction(ctx context.Context, tx *models.BillingTransaction) error {
	return r.DB(ctx).Create(tx).Error
}

func (r *repository) UpdateTransaction(ctx context.Context, txID uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).
		Model(&models.BillingTransaction{}).
		Where("id = ?", txID).
		Updates(updates).Error
}

func (r *repository) ListTransactionsBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.BillingTransaction, error) {
	var txs []models.BillingTransaction
	if err := r.DB(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("created_at DESC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *repository) CreateFailure(ctx context.Context, failure *models.BillingFailure) error {
	return r.DB(ctx).Create(failure).Error
}

func (r *repository) ListRetryableFailures(ctx context.Context, now time.Time, maxRetries, limit int) ([]models.BillingFailure, error) {
	if limit <= 0 {
		limit = defaultFailureBatchSize
	}
	if maxRetries <= 0 {
		maxRetries = defaultFailureMaxRetries
	}
	var failures []models.BillingFailure
	if err := r.DB(ctx).
		Where("status = ?", enums.FailureStatusPending).
		Where("next_retry_at <= ?", now).
		Where("retry_count < ?", maxRetries).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&failures).Error; err != nil {
		return nil, err
	}
	return failures, nil
}

func (r *repository) UpdateFailure(ctx context.Context, failureID uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).
		Model(&models.BillingFailure{}).
		Where("id = ?", failureID).
		Updates(updates).Error
}

func (r *repository) FindPaymentProfile(ctx context.Context, id uuid.UUID) (*models.PaymentProfile, error) {
	var profile models.PaymentProfile
	if err := r.DB(ctx).
		Where("id = ?", id).
		First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *repository) FindEnrollment(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.DB(ctx).
		Where("id = ?", id).
		First(&enrollment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &enrollment, nil
}

func (r *repository) FindMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := r.DB(ctx).
		Where("id = ?", id).
		First(&member).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}
