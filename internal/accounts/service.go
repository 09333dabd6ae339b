package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/giftmarket/giftmarket-backend/pkg/db"
	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
)

// Service provisions buyer accounts and manages their profile settings.
type Service interface {
	Provision(ctx context.Context, input ProvisionInput) (*models.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
	Disable(ctx context.Context, id uuid.UUID) error
	SetCashbackPreference(ctx context.Context, id uuid.UUID, cashbackFirst bool) (*models.Account, error)
}

type service struct {
	repo Repository
}

// ProvisionInput carries the fields needed to open an account.
type ProvisionInput struct {
	Email       string
	DisplayName string
}

// NewService wires an accounts service with the required dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	return &service{repo: repo}, nil
}

// Provision opens a new active account with zero balances. Email is the
// external identity and must be unique.
func (s *service) Provision(ctx context.Context, input ProvisionInput) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name required")
	}

	account := &models.Account{
		Email:       email,
		DisplayName: displayName,
		Status:      enums.AccountStatusActive,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if dbpkg.IsUniqueViolation(err, "accounts_email_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account")
	}
	return account, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	account, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	return account, nil
}

// Disable soft-disables an account. Balances and history are preserved; the
// ledger rejects debits against disabled accounts.
func (s *service) Disable(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	account, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	if account.Status == enums.AccountStatusDisabled {
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, id, enums.AccountStatusDisabled); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "disable account")
	}
	return nil
}

func (s *service) SetCashbackPreference(ctx context.Context, id uuid.UUID, cashbackFirst bool) (*models.Account, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	account, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	if account.CashbackFirst == cashbackFirst {
		return account, nil
	}
	if err := s.repo.UpdateCashbackPreference(ctx, id, cashbackFirst); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cashback preference")
	}
	account.CashbackFirst = cashbackFirst
	return account, nil
}
