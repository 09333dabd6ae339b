package refunds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
)

// Repository holds the guarded refund gates. Both gates key on the current
// refund_status so marking and accepting are single-use no matter how many
// writers race.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	MarkOrderRefunded(ctx context.Context, id uuid.UUID, amountCents int64, moveStatus bool) (bool, error)
	AcceptOrderRefund(ctx context.Context, id uuid.UUID) (bool, error)

	FindGiftOrder(ctx context.Context, id uuid.UUID) (*models.GiftOrder, error)
	MarkGiftOrderRefunded(ctx context.Context, id uuid.UUID, amountCents int64) (bool, error)
	AcceptGiftOrderRefund(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a refunds repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderRefunded snapshots the refund amount. The refund_status guard makes
// a second mark a no-op; moveStatus additionally flips a live order to the
// refunded status.
func (r *repository) MarkOrderRefunded(ctx context.Context, id uuid.UUID, amountCents int64, moveStatus bool) (bool, error) {
	values := map[string]any{
		"refund_status":       enums.RefundStatusRefunded,
		"refund_amount_cents": amountCents,
		"updated_at":          time.Now(),
	}
	if moveStatus {
		values["status"] = enums.OrderStatusRefunded
	}

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND refund_status = ?", id, enums.RefundStatusNone).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AcceptOrderRefund flips the single-use gate. Exactly one caller ever sees a
// non-zero row count for a given order.
func (r *repository) AcceptOrderRefund(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND refund_status = ?", id, enums.RefundStatusRefunded).
		Updates(map[string]any{
			"refund_status": enums.RefundStatusAccepted,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) FindGiftOrder(ctx context.Context, id uuid.UUID) (*models.GiftOrder, error) {
	var order models.GiftOrder
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) MarkGiftOrderRefunded(ctx context.Context, id uuid.UUID, amountCents int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GiftOrder{}).
		Where("id = ? AND refund_status = ?", id, enums.RefundStatusNone).
		Updates(map[string]any{
			"refund_status":       enums.RefundStatusRefunded,
			"refund_amount_cents": amountCents,
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) AcceptGiftOrderRefund(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GiftOrder{}).
		Where("id = ? AND refund_status = ? AND status <> ?", id, enums.RefundStatusRefunded, enums.GiftOrderStatusCancelled).
		Updates(map[string]any{
			"refund_status": enums.RefundStatusAccepted,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
