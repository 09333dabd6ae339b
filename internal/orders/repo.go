package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	"github.com/giftmarket/giftmarket-backend/pkg/pagination"
)

// Repository manages product order rows. Status changes go through the guarded
// compare-and-set so a stale writer can never clobber a concurrent transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	Find(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForAccount(ctx context.Context, accountID, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindForAccount(ctx context.Context, accountID, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		First(&order, "id = ? AND account_id = ?", id, accountID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
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

	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateStatusGuarded flips status only when the row still holds the expected
// value. A zero row count means the order moved under us and the caller must
// treat the transition as illegal.
func (r *repository) UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	for column, value := range updates {
		values[column] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
