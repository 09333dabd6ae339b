package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
)

// Repository manages account provisioning and profile-level updates. Balance
// mutations live in the ledger repository, never here.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.Account) error
	Find(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.AccountStatus) error
	UpdateCashbackPreference(ctx context.Context, id uuid.UUID, cashbackFirst bool) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an accounts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.AccountStatus) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) UpdateCashbackPreference(ctx context.Context, id uuid.UUID, cashbackFirst bool) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"cashback_first": cashbackFirst,
			"updated_at":     time.Now(),
		}).Error
}
