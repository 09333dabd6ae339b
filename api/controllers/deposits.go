package controllers

import (
	"net/http"

	"github.com/giftmarket/giftmarket-backend/api/responses"
	"github.com/giftmarket/giftmarket-backend/api/validators"
	"github.com/giftmarket/giftmarket-backend/internal/deposits"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
)

type depositRequest struct {
	ProviderRef string `json:"provider_ref" validate:"required,min=1,max=255"`
}

// DepositCreate verifies a gateway payment and credits the account. Replaying
// the same provider reference returns the original transaction.
func DepositCreate(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload depositRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Deposit(r.Context(), deposits.Input{
			AccountID:   accountID,
			ProviderRef: payload.ProviderRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result.Transaction)
	}
}
