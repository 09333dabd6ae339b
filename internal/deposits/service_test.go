package deposits

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/internal/ledger"
	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	"github.com/giftmarket/giftmarket-backend/pkg/square"
)

type fakeVerifier struct {
	verification *square.PaymentVerification
	err          error
	calls        int
}

func (f *fakeVerifier) VerifyPayment(_ context.Context, _ string) (*square.PaymentVerification, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.verification, nil
}

type fakeLedger struct {
	deposits map[string]*models.Transaction
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{deposits: map[string]*models.Transaction{}}
}

func (f *fakeLedger) Deposit(_ context.Context, input ledger.DepositInput) (*models.Transaction, bool, error) {
	if existing, ok := f.deposits[input.ProviderRef]; ok {
		return existing, false, nil
	}
	ref := input.ProviderRef
	row := &models.Transaction{
		ID:          uuid.New(),
		AccountID:   input.AccountID,
		AmountCents: input.AmountCents,
		ProviderRef: &ref,
	}
	f.deposits[input.ProviderRef] = row
	return row, true, nil
}

func newService(t *testing.T, gateway paymentVerifier, ledgerSvc ledgerService) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(gateway, ledgerSvc, 5*time.Second, logg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestDeposit_CreditsVerifiedAmount(t *testing.T) {
	gateway := &fakeVerifier{verification: &square.PaymentVerification{
		ProviderRef: "pay_1",
		AmountCents: 10000,
		Currency:    "USD",
		Completed:   true,
	}}
	ledgerSvc := newFakeLedger()
	svc := newService(t, gateway, ledgerSvc)

	result, err := svc.Deposit(context.Background(), Input{AccountID: uuid.New(), ProviderRef: "pay_1"})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if result.Replayed {
		t.Fatal("fresh deposit reported as replayed")
	}
	if result.Transaction.AmountCents != 10000 {
		t.Fatalf("expected the verified amount, got %d", result.Transaction.AmountCents)
	}
}

func TestDeposit_ReplaySurfacesOriginalTransaction(t *testing.T) {
	gateway := &fakeVerifier{verification: &square.PaymentVerification{
		ProviderRef: "pay_2",
		AmountCents: 2500,
		Completed:   true,
	}}
	ledgerSvc := newFakeLedger()
	svc := newService(t, gateway, ledgerSvc)
	accountID := uuid.New()

	first, err := svc.Deposit(context.Background(), Input{AccountID: accountID, ProviderRef: "pay_2"})
	if err != nil {
		t.Fatalf("first Deposit: %v", err)
	}
	second, err := svc.Deposit(context.Background(), Input{AccountID: accountID, ProviderRef: "pay_2"})
	if err != nil {
		t.Fatalf("second Deposit: %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected replay to be flagged")
	}
	if second.Transaction.ID != first.Transaction.ID {
		t.Fatal("replay returned a different transaction")
	}
	if len(ledgerSvc.deposits) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(ledgerSvc.deposits))
	}
}

func TestDeposit_TimeoutIsRetryableAndCreditsNothing(t *testing.T) {
	gateway := &fakeVerifier{err: pkgerrors.New(pkgerrors.CodeExternalTimeout, "square get payment timed out")}
	ledgerSvc := newFakeLedger()
	svc := newService(t, gateway, ledgerSvc)

	_, err := svc.Deposit(context.Background(), Input{AccountID: uuid.New(), ProviderRef: "pay_3"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeExternalTimeout) {
		t.Fatalf("expected external timeout, got %v", err)
	}
	if len(ledgerSvc.deposits) != 0 {
		t.Fatal("nothing should be credited when verification fails")
	}

	// The same reference can be re-presented once the gateway recovers.
	gateway.err = nil
	gateway.verification = &square.PaymentVerification{ProviderRef: "pay_3", AmountCents: 500, Completed: true}
	result, err := svc.Deposit(context.Background(), Input{AccountID: uuid.New(), ProviderRef: "pay_3"})
	if err != nil {
		t.Fatalf("retry Deposit: %v", err)
	}
	if result.Replayed {
		t.Fatal("retry after failure should credit fresh")
	}
}

func TestDeposit_IncompletePaymentRejected(t *testing.T) {
	gateway := &fakeVerifier{verification: &square.PaymentVerification{
		ProviderRef: "pay_4",
		AmountCents: 900,
		Completed:   false,
	}}
	ledgerSvc := newFakeLedger()
	svc := newService(t, gateway, ledgerSvc)

	_, err := svc.Deposit(context.Background(), Input{AccountID: uuid.New(), ProviderRef: "pay_4"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(ledgerSvc.deposits) != 0 {
		t.Fatal("incomplete payment must not be credited")
	}
}
