package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/pagination"
)

// Repository manages persistence for accounts and their transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	LockAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	UpdateAccountBalances(ctx context.Context, account *models.Account) error
	CreateTransaction(ctx context.Context, row *models.Transaction) error
	FindTransactionByProviderRef(ctx context.Context, providerRef string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Transaction, error)
	SumTransactionAmounts(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// LockAccount loads the account row under SELECT ... FOR UPDATE. Every balance
// mutation goes through this lock, which serializes concurrent debits per
// account and makes the funds check race-free. SQLite has no row locks; its
// single-writer lock covers the same guarantee there.
func (r *repository) LockAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := r.db.WithContext(ctx)
	if query.Dialector != nil && query.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var account models.Account
	if err := query.First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) UpdateAccountBalances(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]any{
			"balance_cents":         account.BalanceCents,
			"cashback_cents":        account.CashbackCents,
			"total_deposited_cents": account.TotalDepositedCents,
			"total_spent_cents":     account.TotalSpentCents,
			"transaction_count":     account.TransactionCount,
			"updated_at":            time.Now(),
		}).Error
}

func (r *repository) CreateTransaction(ctx context.Context, row *models.Transaction) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindTransactionByProviderRef(ctx context.Context, providerRef string) (*models.Transaction, error) {
	var row models.Transaction
	if err := r.db.WithContext(ctx).
		First(&row, "provider_ref = ?", providerRef).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var rows []models.Transaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SumTransactionAmounts totals the signed transaction log for an account.
// Used by reconciliation checks: the sum must equal current available funds.
func (r *repository) SumTransactionAmounts(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var total *int64
	if err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("account_id = ?", accountID).
		Select("SUM(amount_cents)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
