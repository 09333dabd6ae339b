package accounts

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
)

type fakeRepository struct {
	accounts map[uuid.UUID]*models.Account
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{accounts: map[uuid.UUID]*models.Account{}}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(_ context.Context, account *models.Account) error {
	for _, existing := range f.accounts {
		if existing.Email == account.Email {
			return fmt.Errorf(`duplicate key value violates unique constraint "accounts_email_key"`)
		}
	}
	account.ID = uuid.New()
	copied := *account
	f.accounts[account.ID] = &copied
	return nil
}

func (f *fakeRepository) Find(_ context.Context, id uuid.UUID) (*models.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeRepository) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	for _, account := range f.accounts {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) UpdateStatus(_ context.Context, id uuid.UUID, status enums.AccountStatus) error {
	account, ok := f.accounts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	account.Status = status
	return nil
}

func (f *fakeRepository) UpdateCashbackPreference(_ context.Context, id uuid.UUID, cashbackFirst bool) error {
	account, ok := f.accounts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	account.CashbackFirst = cashbackFirst
	return nil
}

func newTestService(t *testing.T) (Service, *fakeRepository) {
	t.Helper()
	repo := newFakeRepository()
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo
}

func TestProvision_CreatesActiveAccount(t *testing.T) {
	svc, _ := newTestService(t)

	account, err := svc.Provision(context.Background(), ProvisionInput{
		Email:       "  Buyer@Example.com ",
		DisplayName: "Buyer One",
	})
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if account.Email != "buyer@example.com" {
		t.Fatalf("expected normalized email, got %q", account.Email)
	}
	if account.Status != enums.AccountStatusActive {
		t.Fatalf("expected active status, got %s", account.Status)
	}
	if account.BalanceCents != 0 || account.CashbackCents != 0 {
		t.Fatalf("expected zero balances, got %d/%d", account.BalanceCents, account.CashbackCents)
	}
}

func TestProvision_DuplicateEmailConflicts(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Provision(context.Background(), ProvisionInput{Email: "a@b.com", DisplayName: "A"}); err != nil {
		t.Fatalf("first Provision: %v", err)
	}
	_, err := svc.Provision(context.Background(), ProvisionInput{Email: "a@b.com", DisplayName: "B"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestProvision_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []ProvisionInput{
		{Email: "", DisplayName: "x"},
		{Email: "a@b.com", DisplayName: "   "},
	}
	for _, input := range cases {
		if _, err := svc.Provision(context.Background(), input); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
}

func TestDisable_PreservesBalances(t *testing.T) {
	svc, repo := newTestService(t)

	id := uuid.New()
	repo.accounts[id] = &models.Account{
		ID:            id,
		Email:         "a@b.com",
		Status:        enums.AccountStatusActive,
		BalanceCents:  5000,
		CashbackCents: 250,
	}

	if err := svc.Disable(context.Background(), id); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	account := repo.accounts[id]
	if account.Status != enums.AccountStatusDisabled {
		t.Fatalf("expected disabled, got %s", account.Status)
	}
	if account.BalanceCents != 5000 || account.CashbackCents != 250 {
		t.Fatalf("balances changed on disable: %d/%d", account.BalanceCents, account.CashbackCents)
	}

	// Disabling twice is a no-op, not an error.
	if err := svc.Disable(context.Background(), id); err != nil {
		t.Fatalf("second Disable: %v", err)
	}
}

func TestDisable_UnknownAccount(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Disable(context.Background(), uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetCashbackPreference(t *testing.T) {
	svc, repo := newTestService(t)

	id := uuid.New()
	repo.accounts[id] = &models.Account{ID: id, Email: "a@b.com", Status: enums.AccountStatusActive}

	account, err := svc.SetCashbackPreference(context.Background(), id, true)
	if err != nil {
		t.Fatalf("SetCashbackPreference: %v", err)
	}
	if !account.CashbackFirst {
		t.Fatal("expected cashback_first to be set")
	}
	if !repo.accounts[id].CashbackFirst {
		t.Fatal("expected preference persisted")
	}

	account, err = svc.SetCashbackPreference(context.Background(), id, false)
	if err != nil {
		t.Fatalf("SetCashbackPreference reset: %v", err)
	}
	if account.CashbackFirst {
		t.Fatal("expected cashback_first cleared")
	}
}
