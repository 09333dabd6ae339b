package controllers

import (
	"net/http"

	"github.com/giftmarket/giftmarket-backend/api/responses"
	"github.com/giftmarket/giftmarket-backend/api/validators"
	"github.com/giftmarket/giftmarket-backend/internal/accounts"
	"github.com/giftmarket/giftmarket-backend/internal/ledger"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
)

type provisionAccountRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=120"`
}

type cashbackPreferenceRequest struct {
	CashbackFirst *bool `json:"cashback_first" validate:"required"`
}

// AccountMe returns the authenticated account's profile.
func AccountMe(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		account, err := svc.Get(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// AccountBalance returns the authenticated account's spendable and cashback balances.
func AccountBalance(ledgerSvc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		account, err := ledgerSvc.Balance(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"balance_cents":   account.BalanceCents,
			"cashback_cents":  account.CashbackCents,
			"available_cents": account.AvailableCents(),
		})
	}
}

// AccountTransactions pages through the authenticated account's ledger history.
func AccountTransactions(ledgerSvc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, next, err := ledgerSvc.Transactions(r.Context(), accountID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"transactions": rows,
			"next_cursor":  next,
		})
	}
}

// AccountSetCashbackPreference toggles whether debits draw cashback first.
func AccountSetCashbackPreference(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cashbackPreferenceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		account, err := svc.SetCashbackPreference(r.Context(), accountID, *payload.CashbackFirst)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// AdminProvisionAccount creates a buyer account.
func AdminProvisionAccount(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload provisionAccountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		account, err := svc.Provision(r.Context(), accounts.ProvisionInput{
			Email:       payload.Email,
			DisplayName: payload.DisplayName,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, account)
	}
}

// AdminDisableAccount blocks further spending on an account. Balances stay put.
func AdminDisableAccount(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuidURLParam(r, "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Disable(r.Context(), accountID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "disabled"})
	}
}
