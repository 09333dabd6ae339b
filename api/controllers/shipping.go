package controllers

import (
	"net/http"
	"strings"

	"github.com/giftmarket/giftmarket-backend/api/responses"
	"github.com/giftmarket/giftmarket-backend/api/validators"
	"github.com/giftmarket/giftmarket-backend/internal/shipping"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
)

type shippingQuoteRequest struct {
	Parcel          parcelRequest `json:"parcel" validate:"required"`
	Country         string        `json:"country" validate:"required,iso3166_1_alpha2"`
	City            string        `json:"city,omitempty" validate:"omitempty,max=120"`
	DisplayCurrency string        `json:"display_currency,omitempty"`
}

// ShippingQuote prices a parcel without creating anything.
func ShippingQuote(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload shippingQuoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		parcel, err := payload.Parcel.toPackage()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var display enums.Currency
		if raw := strings.TrimSpace(payload.DisplayCurrency); raw != "" {
			display, err = enums.ParseCurrency(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid display currency"))
				return
			}
		}

		quote, err := svc.Quote(r.Context(), shipping.QuoteInput{
			Package: parcel,
			Destination: shipping.Destination{
				Country: payload.Country,
				City:    payload.City,
			},
			DisplayCurrency: display,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
