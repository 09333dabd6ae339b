package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
)

// Repository manages catalog reads and the stock mutations order flows need.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListActive(ctx context.Context) ([]models.Product, error)
	ReserveStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	ReleaseStock(ctx context.Context, id uuid.UUID, qty int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListActive(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ReserveStock atomically decrements stock and bumps sales_count. The guarded
// UPDATE only matches an active product with enough stock; a zero row count
// means the product was unavailable, with no partial write.
func (r *repository) ReserveStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND active = ? AND stock >= ?", id, true, qty).
		Updates(map[string]any{
			"stock":       gorm.Expr("stock - ?", qty),
			"sales_count": gorm.Expr("sales_count + ?", qty),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReleaseStock returns reserved units when an order is cancelled.
func (r *repository) ReleaseStock(ctx context.Context, id uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stock":       gorm.Expr("stock + ?", qty),
			"sales_count": gorm.Expr("sales_count - ?", qty),
		}).Error
}
