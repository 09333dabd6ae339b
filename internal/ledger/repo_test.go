package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	accounts := `
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  balance_cents INTEGER NOT NULL DEFAULT 0,
  cashback_cents INTEGER NOT NULL DEFAULT 0,
  cashback_first INTEGER NOT NULL DEFAULT 0,
  total_deposited_cents INTEGER NOT NULL DEFAULT 0,
  total_spent_cents INTEGER NOT NULL DEFAULT 0,
  transaction_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	transactions := `
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  balance_after_cents INTEGER NOT NULL,
  description TEXT NOT NULL,
  provider_ref TEXT UNIQUE,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS transactions`).Error)
	require.NoError(t, db.Exec(`DROP TABLE IF EXISTS accounts`).Error)
	require.NoError(t, db.Exec(accounts).Error)
	require.NoError(t, db.Exec(transactions).Error)
	return db
}

func newAccount(t *testing.T, db *gorm.DB, balanceCents int64) *models.Account {
	t.Helper()

	account := &models.Account{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		DisplayName:  "Test Buyer",
		Status:       enums.AccountStatusActive,
		BalanceCents: balanceCents,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func TestRepository_LockAndUpdateBalances(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	account := newAccount(t, db, 5000)

	locked, err := repo.LockAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), locked.BalanceCents)

	locked.BalanceCents = 3000
	locked.TotalSpentCents = 2000
	locked.TransactionCount = 1
	require.NoError(t, repo.UpdateAccountBalances(ctx, locked))

	reloaded, err := repo.FindAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), reloaded.BalanceCents)
	assert.Equal(t, int64(2000), reloaded.TotalSpentCents)
	assert.Equal(t, int64(1), reloaded.TransactionCount)
}

func TestRepository_ProviderRefUnique(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	account := newAccount(t, db, 0)
	ref := "sq-payment-42"

	first := &models.Transaction{
		ID:          uuid.New(),
		AccountID:   account.ID,
		Kind:        enums.TransactionKindDeposit,
		AmountCents: 1000,
		Description: "deposit",
		ProviderRef: &ref,
	}
	require.NoError(t, repo.CreateTransaction(ctx, first))

	dup := &models.Transaction{
		ID:          uuid.New(),
		AccountID:   account.ID,
		Kind:        enums.TransactionKindDeposit,
		AmountCents: 1000,
		Description: "deposit",
		ProviderRef: &ref,
	}
	err := repo.CreateTransaction(ctx, dup)
	require.Error(t, err)

	found, err := repo.FindTransactionByProviderRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestRepository_ListTransactionsPaginates(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	account := newAccount(t, db, 0)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		row := &models.Transaction{
			ID:          uuid.New(),
			AccountID:   account.ID,
			Kind:        enums.TransactionKindPurchase,
			AmountCents: -100,
			Description: "order",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(row).Error)
	}

	rows, err := repo.ListTransactions(ctx, account.ID, 3, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))
}

func TestRepository_SumTransactionAmounts(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	account := newAccount(t, db, 0)
	amounts := []int64{10000, -4000, 4000}
	for _, amount := range amounts {
		require.NoError(t, db.Create(&models.Transaction{
			ID:          uuid.New(),
			AccountID:   account.ID,
			Kind:        enums.TransactionKindDeposit,
			AmountCents: amount,
			Description: "row",
		}).Error)
	}

	sum, err := repo.SumTransactionAmounts(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), sum)
}
