package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/giftmarket/giftmarket-backend/pkg/db"
	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/outbox"
	"github.com/giftmarket/giftmarket-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service moves money between an account's balances and its transaction log.
// Debit and Credit run inside a caller-provided transaction so order state
// changes and money movement share one atomic unit; Deposit opens its own.
type Service interface {
	Debit(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.Transaction, error)
	Credit(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.Transaction, error)
	Deposit(ctx context.Context, input DepositInput) (*models.Transaction, bool, error)
	Balance(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	Transactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Transaction, string, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// DebitInput captures a withdrawal from an account's spendable funds.
type DebitInput struct {
	AccountID   uuid.UUID
	AmountCents int64
	Kind        enums.TransactionKind
	Description string
}

// CreditInput captures an addition to an account's main balance.
type CreditInput struct {
	AccountID   uuid.UUID
	AmountCents int64
	Kind        enums.TransactionKind
	Description string
}

// DepositInput carries an externally verified payment to credit.
type DepositInput struct {
	AccountID   uuid.UUID
	ProviderRef string
	AmountCents int64
}

// DepositCreditedEvent is emitted when a deposit lands on an account.
type DepositCreditedEvent struct {
	AccountID     uuid.UUID `json:"account_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	ProviderRef   string    `json:"provider_ref"`
	AmountCents   int64     `json:"amount_cents"`
}

// NewService wires a ledger service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc}, nil
}

// Debit withdraws from the account under its row lock. The funds check covers
// main plus cashback; when it fails nothing is written and the account state is
// untouched. The cashback-first preference draws from the cashback pool up to
// its available amount and the remainder from main; either way a single
// transaction row records the full debit.
func (s *service) Debit(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.Transaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction kind %q", input.Kind))
	}

	repo := s.repo.WithTx(tx)
	account, err := repo.LockAccount(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock account")
	}
	if account.Status != enums.AccountStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is disabled")
	}
	if account.AvailableCents() < input.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "available funds below debit amount").
			WithDetails(map[string]any{
				"available_cents": account.AvailableCents(),
				"required_cents":  input.AmountCents,
			})
	}

	fromCashback := int64(0)
	if account.CashbackFirst {
		fromCashback = min64(account.CashbackCents, input.AmountCents)
	} else {
		fromMain := min64(account.BalanceCents, input.AmountCents)
		fromCashback = input.AmountCents - fromMain
	}
	account.CashbackCents -= fromCashback
	account.BalanceCents -= input.AmountCents - fromCashback
	account.TotalSpentCents += input.AmountCents
	account.TransactionCount++

	row := &models.Transaction{
		AccountID:         account.ID,
		Kind:              input.Kind,
		AmountCents:       -input.AmountCents,
		BalanceAfterCents: account.AvailableCents(),
		Description:       input.Description,
	}
	if err := repo.CreateTransaction(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record debit")
	}
	if err := repo.UpdateAccountBalances(ctx, account); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balances")
	}
	return row, nil
}

// Credit adds funds to the main balance inside the caller's transaction.
func (s *service) Credit(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.Transaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction kind %q", input.Kind))
	}

	repo := s.repo.WithTx(tx)
	account, err := repo.LockAccount(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock account")
	}

	account.BalanceCents += input.AmountCents
	account.TransactionCount++

	row := &models.Transaction{
		AccountID:         account.ID,
		Kind:              input.Kind,
		AmountCents:       input.AmountCents,
		BalanceAfterCents: account.AvailableCents(),
		Description:       input.Description,
	}
	if err := repo.CreateTransaction(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record credit")
	}
	if err := repo.UpdateAccountBalances(ctx, account); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balances")
	}
	return row, nil
}

// Deposit credits a verified payment exactly once per provider reference. The
// account row lock serializes same-account retries and the unique index on
// provider_ref closes the remaining race; re-presenting a reference returns the
// original transaction row with created=false.
func (s *service) Deposit(ctx context.Context, input DepositInput) (*models.Transaction, bool, error) {
	if input.AccountID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.ProviderRef == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "provider reference required")
	}
	if input.AmountCents <= 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "deposit amount must be positive")
	}

	var (
		row     *models.Transaction
		created bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		account, err := repo.LockAccount(ctx, input.AccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock account")
		}

		existing, err := repo.FindTransactionByProviderRef(ctx, input.ProviderRef)
		if err == nil {
			row = existing
			created = false
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check provider reference")
		}

		account.BalanceCents += input.AmountCents
		account.TotalDepositedCents += input.AmountCents
		account.TransactionCount++

		providerRef := input.ProviderRef
		row = &models.Transaction{
			AccountID:         account.ID,
			Kind:              enums.TransactionKindDeposit,
			AmountCents:       input.AmountCents,
			BalanceAfterCents: account.AvailableCents(),
			Description:       fmt.Sprintf("deposit %s", providerRef),
			ProviderRef:       &providerRef,
		}
		if err := repo.CreateTransaction(ctx, row); err != nil {
			if dbpkg.IsUniqueViolation(err, "transactions_provider_ref_key") {
				return pkgerrors.New(pkgerrors.CodeConflict, "provider reference already credited")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record deposit")
		}
		if err := repo.UpdateAccountBalances(ctx, account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balances")
		}
		created = true

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDepositCredited,
			AggregateType: enums.AggregateLedger,
			AggregateID:   row.ID,
			Version:       1,
			Data: DepositCreditedEvent{
				AccountID:     account.ID,
				TransactionID: row.ID,
				ProviderRef:   input.ProviderRef,
				AmountCents:   input.AmountCents,
			},
		})
	})
	if err != nil {
		// A concurrent deposit with the same reference may have committed
		// between our check and insert; surface the original row instead.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
			existing, lookupErr := s.repo.FindTransactionByProviderRef(ctx, input.ProviderRef)
			if lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	return row, created, nil
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	account, err := s.repo.FindAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	return account, nil
}

func (s *service) Transactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Transaction, string, error) {
	if accountID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListTransactions(ctx, accountID, limit+1, cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
