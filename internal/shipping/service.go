package shipping

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
)

// Service quotes shipping fees. The ledger only ever sees the base-currency
// cents; display conversion is cosmetic and never stored.
type Service interface {
	Quote(ctx context.Context, input QuoteInput) (*Quote, error)
	Fee(pkg Package, dest Destination) (int64, error)
}

type service struct {
	calculator *Calculator
	rates      RateProvider
	base       enums.Currency
}

// QuoteInput describes the parcel plus an optional display currency.
type QuoteInput struct {
	Package         Package
	Destination     Destination
	DisplayCurrency enums.Currency
}

// Quote is a priced shipment. Display is set only when a conversion was asked
// for and differs from the base currency.
type Quote struct {
	FeeCents int64          `json:"fee_cents"`
	Currency enums.Currency `json:"currency"`
	Zone     Zone           `json:"zone"`
	Display  *DisplayAmount `json:"display,omitempty"`
}

// DisplayAmount is a converted fee for presentation.
type DisplayAmount struct {
	Currency enums.Currency `json:"currency"`
	Amount   string         `json:"amount"`
}

// NewService wires a shipping service with the required dependencies.
func NewService(calculator *Calculator, rates RateProvider, base enums.Currency) (Service, error) {
	if calculator == nil {
		return nil, fmt.Errorf("calculator required")
	}
	if rates == nil {
		return nil, fmt.Errorf("rate provider required")
	}
	if !base.IsValid() {
		return nil, fmt.Errorf("invalid base currency %q", base)
	}
	return &service{calculator: calculator, rates: rates, base: base}, nil
}

// Fee is the pure calculation used by gift order creation.
func (s *service) Fee(pkg Package, dest Destination) (int64, error) {
	return s.calculator.Calculate(pkg, dest)
}

func (s *service) Quote(ctx context.Context, input QuoteInput) (*Quote, error) {
	feeCents, err := s.calculator.Calculate(input.Package, input.Destination)
	if err != nil {
		return nil, err
	}

	quote := &Quote{
		FeeCents: feeCents,
		Currency: s.base,
		Zone:     s.calculator.ZoneFor(input.Destination.Country),
	}
	if input.DisplayCurrency == "" || input.DisplayCurrency == s.base {
		return quote, nil
	}
	if !input.DisplayCurrency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid display currency %q", input.DisplayCurrency))
	}

	rate, err := s.rates.Rate(ctx, s.base, input.DisplayCurrency)
	if err != nil {
		return nil, err
	}
	converted := decimal.NewFromInt(feeCents).
		Div(decimal.NewFromInt(100)).
		Mul(rate).
		Round(2)
	quote.Display = &DisplayAmount{
		Currency: input.DisplayCurrency,
		Amount:   converted.StringFixed(2),
	}
	return quote, nil
}
