package giftorders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	"github.com/giftmarket/giftmarket-backend/pkg/pagination"
)

// Repository manages gift order rows and their public tracking links.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.GiftOrder) error
	Find(ctx context.Context, id uuid.UUID) (*models.GiftOrder, error)
	FindForAccount(ctx context.Context, accountID, id uuid.UUID) (*models.GiftOrder, error)
	List(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.GiftOrder, error)
	UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.GiftOrderStatus, updates map[string]any) (bool, error)
	UpdateShippingUnpaid(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	ListStalePendingPayment(ctx context.Context, cutoff time.Time, limit int) ([]models.GiftOrder, error)

	CreateTrackingLink(ctx context.Context, link *models.TrackingLink) error
	FindTrackingLink(ctx context.Context, code string) (*models.TrackingLink, error)
	IncrementTrackingViews(ctx context.Context, code string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gift orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.GiftOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.GiftOrder, error) {
	var order models.GiftOrder
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindForAccount(ctx context.Context, accountID, id uuid.UUID) (*models.GiftOrder, error) {
	var order models.GiftOrder
	if err := r.db.WithContext(ctx).
		First(&order, "id = ? AND account_id = ?", id, accountID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.GiftOrder, error) {
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

	var rows []models.GiftOrder
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateStatusGuarded flips status only when the row still holds the expected
// value, same contract as the product order repository.
func (r *repository) UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.GiftOrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	for column, value := range updates {
		values[column] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.GiftOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateShippingUnpaid rewrites shipping fields only while the order has not
// been paid. The paid_at guard keeps the fee frozen after payment.
func (r *repository) UpdateShippingUnpaid(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	values := map[string]any{"updated_at": time.Now()}
	for column, value := range updates {
		values[column] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.GiftOrder{}).
		Where("id = ? AND status = ? AND paid_at IS NULL", id, enums.GiftOrderStatusPendingPayment).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListStalePendingPayment(ctx context.Context, cutoff time.Time, limit int) ([]models.GiftOrder, error) {
	var rows []models.GiftOrder
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.GiftOrderStatusPendingPayment, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateTrackingLink(ctx context.Context, link *models.TrackingLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

func (r *repository) FindTrackingLink(ctx context.Context, code string) (*models.TrackingLink, error) {
	var link models.TrackingLink
	if err := r.db.WithContext(ctx).First(&link, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// IncrementTrackingViews bumps the counter in a single UPDATE so concurrent
// resolves never lose a view.
func (r *repository) IncrementTrackingViews(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).
		Model(&models.TrackingLink{}).
		Where("code = ?", code).
		Update("view_count", gorm.Expr("view_count + 1")).Error
}
