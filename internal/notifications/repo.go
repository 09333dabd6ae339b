package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/pagination"
)

// Repository manages account-scoped notification rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Notification, error)
	CountUnread(ctx context.Context, accountID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, accountID, id uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repository) List(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Notification, error) {
	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Notification
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountUnread(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("account_id = ? AND read_at IS NULL", accountID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead is idempotent: marking an already read notification is a no-op that
// still reports success, only an unknown or foreign id yields false.
func (r *repository) MarkRead(ctx context.Context, accountID, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND account_id = ? AND read_at IS NULL", id, accountID).
		Update("read_at", time.Now())
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND account_id = ?", id, accountID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("account_id = ? AND read_at IS NULL", accountID).
		Update("read_at", time.Now())
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}
