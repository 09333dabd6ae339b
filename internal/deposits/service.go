package deposits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/internal/ledger"
	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	"github.com/giftmarket/giftmarket-backend/pkg/square"
)

// paymentVerifier is the slice of the gateway client deposits need.
type paymentVerifier interface {
	VerifyPayment(ctx context.Context, providerRef string) (*square.PaymentVerification, error)
}

type ledgerService interface {
	Deposit(ctx context.Context, input ledger.DepositInput) (*models.Transaction, bool, error)
}

// Input identifies the gateway payment to credit to an account.
type Input struct {
	AccountID   uuid.UUID
	ProviderRef string
}

// Result reports the credited transaction and whether this call created it.
// Replayed is true when the provider reference had already been credited.
type Result struct {
	Transaction *models.Transaction
	Replayed    bool
}

// Service verifies a gateway payment and credits it to the ledger exactly once.
type Service interface {
	Deposit(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	gateway       paymentVerifier
	ledger        ledgerService
	verifyTimeout time.Duration
	logg          *logger.Logger
}

// NewService wires the deposit flow. verifyTimeout bounds the synchronous
// gateway verification call.
func NewService(gateway paymentVerifier, ledgerSvc ledgerService, verifyTimeout time.Duration, logg *logger.Logger) (Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment verifier required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if verifyTimeout <= 0 {
		return nil, fmt.Errorf("verify timeout must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{gateway: gateway, ledger: ledgerSvc, verifyTimeout: verifyTimeout, logg: logg}, nil
}

// Deposit verifies the payment with the gateway and credits the verified amount.
// When verification times out the error is retryable and nothing is credited;
// re-presenting the same provider reference later is safe because the ledger
// deduplicates on it.
func (s *service) Deposit(ctx context.Context, input Input) (*Result, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	ref := strings.TrimSpace(input.ProviderRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider reference required")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	verification, err := s.gateway.VerifyPayment(verifyCtx, ref)
	if err != nil {
		return nil, err
	}
	if !verification.Completed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment has not completed")
	}
	if verification.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	row, created, err := s.ledger.Deposit(ctx, ledger.DepositInput{
		AccountID:   input.AccountID,
		ProviderRef: ref,
		AmountCents: verification.AmountCents,
	})
	if err != nil {
		return nil, err
	}

	if !created {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"provider_ref":   ref,
			"transaction_id": row.ID,
		}), "deposit replayed")
	}
	return &Result{Transaction: row, Replayed: !created}, nil
}
