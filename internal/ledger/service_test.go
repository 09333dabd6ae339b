package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/outbox"
	"github.com/giftmarket/giftmarket-backend/pkg/pagination"
)

type fakeRepository struct {
	accounts     map[uuid.UUID]*models.Account
	transactions []*models.Transaction
}

func newFakeRepository(accounts ...*models.Account) *fakeRepository {
	repo := &fakeRepository{accounts: map[uuid.UUID]*models.Account{}}
	for _, account := range accounts {
		repo.accounts[account.ID] = account
	}
	return repo
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) FindAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeRepository) LockAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return f.FindAccount(ctx, id)
}

func (f *fakeRepository) UpdateAccountBalances(_ context.Context, account *models.Account) error {
	stored, ok := f.accounts[account.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*stored = *account
	return nil
}

func (f *fakeRepository) CreateTransaction(_ context.Context, row *models.Transaction) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	f.transactions = append(f.transactions, row)
	return nil
}

func (f *fakeRepository) FindTransactionByProviderRef(_ context.Context, providerRef string) (*models.Transaction, error) {
	for _, row := range f.transactions {
		if row.ProviderRef != nil && *row.ProviderRef == providerRef {
			return row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) ListTransactions(_ context.Context, accountID uuid.UUID, limit int, _ *pagination.Cursor) ([]models.Transaction, error) {
	var rows []models.Transaction
	for _, row := range f.transactions {
		if row.AccountID == accountID {
			rows = append(rows, *row)
		}
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

func (f *fakeRepository) SumTransactionAmounts(_ context.Context, accountID uuid.UUID) (int64, error) {
	var total int64
	for _, row := range f.transactions {
		if row.AccountID == accountID {
			total += row.AmountCents
		}
	}
	return total, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func newTestService(t *testing.T, repo Repository) (Service, *fakeOutbox) {
	t.Helper()
	box := &fakeOutbox{}
	svc, err := NewService(repo, fakeTxRunner{}, box)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, box
}

func activeAccount(mainCents, cashbackCents int64) *models.Account {
	return &models.Account{
		ID:            uuid.New(),
		Status:        enums.AccountStatusActive,
		BalanceCents:  mainCents,
		CashbackCents: cashbackCents,
	}
}

func TestDebit_RecordsSingleRowAndConservesBalance(t *testing.T) {
	account := activeAccount(10000, 0)
	repo := newFakeRepository(account)
	svc, _ := newTestService(t, repo)

	row, err := svc.Debit(context.Background(), &gorm.DB{}, DebitInput{
		AccountID:   account.ID,
		AmountCents: 4000,
		Kind:        enums.TransactionKindPurchase,
		Description: "order",
	})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if row.AmountCents != -4000 {
		t.Fatalf("expected amount -4000, got %d", row.AmountCents)
	}
	if row.BalanceAfterCents != 6000 {
		t.Fatalf("expected balance_after 6000, got %d", row.BalanceAfterCents)
	}
	if account.BalanceCents != 6000 {
		t.Fatalf("expected main balance 6000, got %d", account.BalanceCents)
	}
	if account.TotalSpentCents != 4000 {
		t.Fatalf("expected total spent 4000, got %d", account.TotalSpentCents)
	}
	if len(repo.transactions) != 1 {
		t.Fatalf("expected exactly one transaction row, got %d", len(repo.transactions))
	}
}

func TestDebit_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	account := activeAccount(3000, 500)
	repo := newFakeRepository(account)
	svc, _ := newTestService(t, repo)

	_, err := svc.Debit(context.Background(), &gorm.DB{}, DebitInput{
		AccountID:   account.ID,
		AmountCents: 4000,
		Kind:        enums.TransactionKindPurchase,
		Description: "order",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
	if account.BalanceCents != 3000 || account.CashbackCents != 500 {
		t.Fatalf("balances mutated on failed debit: %d/%d", account.BalanceCents, account.CashbackCents)
	}
	if len(repo.transactions) != 0 {
		t.Fatalf("expected no transaction rows, got %d", len(repo.transactions))
	}
}

func TestDebit_CashbackFirstDrawsCashbackPool(t *testing.T) {
	account := activeAccount(3000, 500)
	account.CashbackFirst = true
	repo := newFakeRepository(account)
	svc, _ := newTestService(t, repo)

	row, err := svc.Debit(context.Background(), &gorm.DB{}, DebitInput{
		AccountID:   account.ID,
		AmountCents: 1000,
		Kind:        enums.TransactionKindPurchase,
		Description: "order",
	})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if account.CashbackCents != 0 {
		t.Fatalf("expected cashback drained, got %d", account.CashbackCents)
	}
	if account.BalanceCents != 2500 {
		t.Fatalf("expected main 2500, got %d", account.BalanceCents)
	}
	if row.AmountCents != -1000 {
		t.Fatalf("expected one row for the full amount, got %d", row.AmountCents)
	}
	if len(repo.transactions) != 1 {
		t.Fatalf("split debit must still record one row, got %d", len(repo.transactions))
	}
}

func TestDebit_DefaultPreferenceDrawsMainFirst(t *testing.T) {
	account := activeAccount(800, 500)
	repo := newFakeRepository(account)
	svc, _ := newTestService(t, repo)

	if _, err := svc.Debit(context.Background(), &gorm.DB{}, DebitInput{
		AccountID:   account.ID,
		AmountCents: 1000,
		Kind:        enums.TransactionKindPurchase,
		Description: "order",
	}); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if account.BalanceCents != 0 {
		t.Fatalf("expected main drained, got %d", account.BalanceCents)
	}
	if account.CashbackCents != 300 {
		t.Fatalf("expected cashback 300, got %d", account.CashbackCents)
	}
}

func TestDebit_DisabledAccountRejected(t *testing.T) {
	account := activeAccount(10000, 0)
	account.Status = enums.AccountStatusDisabled
	repo := newFakeRepository(account)
	svc, _ := newTestService(t, repo)

	_, err := svc.Debit(context.Background(), &gorm.DB{}, DebitInput{
		AccountID:   account.ID,
		AmountCents: 100,
		Kind:        enums.TransactionKindPurchase,
		Description: "order",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestCredit_AddsToMainBalance(t *testing.T) {
	account := activeAccount(1000, 200)
	repo := newFakeRepository(account)
	svc, _ := newTestService(t, repo)

	row, err := svc.Credit(context.Background(), &gorm.DB{}, CreditInput{
		AccountID:   account.ID,
		AmountCents: 2500,
		Kind:        enums.TransactionKindRefund,
		Description: "refund",
	})
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if account.BalanceCents != 3500 {
		t.Fatalf("expected main 3500, got %d", account.BalanceCents)
	}
	if account.CashbackCents != 200 {
		t.Fatalf("credit must not touch cashback, got %d", account.CashbackCents)
	}
	if row.BalanceAfterCents != 3700 {
		t.Fatalf("expected balance_after 3700, got %d", row.BalanceAfterCents)
	}
}

func TestDeposit_IdempotentByProviderRef(t *testing.T) {
	account := activeAccount(0, 0)
	repo := newFakeRepository(account)
	svc, box := newTestService(t, repo)

	first, created, err := svc.Deposit(context.Background(), DepositInput{
		AccountID:   account.ID,
		ProviderRef: "sq-payment-123",
		AmountCents: 10000,
	})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if !created {
		t.Fatal("expected first deposit to create a row")
	}
	if account.BalanceCents != 10000 {
		t.Fatalf("expected balance 10000, got %d", account.BalanceCents)
	}

	second, created, err := svc.Deposit(context.Background(), DepositInput{
		AccountID:   account.ID,
		ProviderRef: "sq-payment-123",
		AmountCents: 10000,
	})
	if err != nil {
		t.Fatalf("repeat Deposit: %v", err)
	}
	if created {
		t.Fatal("repeat deposit must not create a new row")
	}
	if second.ID != first.ID {
		t.Fatalf("expected original row back, got %s vs %s", second.ID, first.ID)
	}
	if account.BalanceCents != 10000 {
		t.Fatalf("balance credited twice: %d", account.BalanceCents)
	}
	if len(repo.transactions) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(repo.transactions))
	}
	if len(box.events) != 1 {
		t.Fatalf("expected one deposit event, got %d", len(box.events))
	}
	if box.events[0].EventType != enums.EventDepositCredited {
		t.Fatalf("unexpected event type %s", box.events[0].EventType)
	}
}

func TestDeposit_Validation(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := newTestService(t, repo)

	tests := []struct {
		name  string
		input DepositInput
	}{
		{name: "missing account", input: DepositInput{ProviderRef: "ref", AmountCents: 100}},
		{name: "missing reference", input: DepositInput{AccountID: uuid.New(), AmountCents: 100}},
		{name: "non-positive amount", input: DepositInput{AccountID: uuid.New(), ProviderRef: "ref"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.Deposit(context.Background(), tc.input); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected VALIDATION error, got %v", err)
			}
		})
	}
}

func TestTransactionLogConservation(t *testing.T) {
	account := activeAccount(0, 0)
	repo := newFakeRepository(account)
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	if _, _, err := svc.Deposit(ctx, DepositInput{AccountID: account.ID, ProviderRef: "ref-1", AmountCents: 10000}); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := svc.Debit(ctx, &gorm.DB{}, DebitInput{AccountID: account.ID, AmountCents: 4000, Kind: enums.TransactionKindPurchase, Description: "order"}); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if _, err := svc.Credit(ctx, &gorm.DB{}, CreditInput{AccountID: account.ID, AmountCents: 4000, Kind: enums.TransactionKindRefund, Description: "refund"}); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	sum, err := repo.SumTransactionAmounts(ctx, account.ID)
	if err != nil {
		t.Fatalf("SumTransactionAmounts: %v", err)
	}
	if sum != account.AvailableCents() {
		t.Fatalf("ledger sum %d does not match available funds %d", sum, account.AvailableCents())
	}
	if account.BalanceCents != 10000 {
		t.Fatalf("expected balance restored to 10000, got %d", account.BalanceCents)
	}
}
