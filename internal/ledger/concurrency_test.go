package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/giftmarket/giftmarket-backend/pkg/db"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
)

// Eight spenders race an account funded for seven and a half debits. The row
// lock serializes them, exactly seven land, and the eighth bounces with
// insufficient funds leaving the account untouched.
func TestDebit_ParallelSpendersNeverOverdraw(t *testing.T) {
	db := setupLedgerTestDB(t)

	conn, err := db.DB()
	require.NoError(t, err)
	// One connection keeps sqlite writers serialized.
	conn.SetMaxOpenConns(1)

	client := dbpkg.FromConn(db)
	svc, err := NewService(NewRepository(db), client, &fakeOutbox{})
	require.NoError(t, err)

	const spenders = 8
	const amountCents = int64(1000)
	budget := int64(spenders)*amountCents - amountCents/2
	account := newAccount(t, db, budget)

	ctx := context.Background()
	results := make(chan error, spenders)
	var wg sync.WaitGroup
	for i := 0; i < spenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- client.WithTx(ctx, func(tx *gorm.DB) error {
				_, err := svc.Debit(ctx, tx, DebitInput{
					AccountID:   account.ID,
					AmountCents: amountCents,
					Kind:        enums.TransactionKindPurchase,
					Description: "parallel spend",
				})
				return err
			})
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds):
			rejected++
		default:
			t.Fatalf("unexpected debit error: %v", err)
		}
	}
	require.Equal(t, spenders-1, succeeded)
	require.Equal(t, 1, rejected)

	reloaded, err := svc.Balance(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, amountCents/2, reloaded.AvailableCents())

	sum, err := NewRepository(db).SumTransactionAmounts(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, -int64(spenders-1)*amountCents, sum)
}
