package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/api/responses"
	"github.com/giftmarket/giftmarket-backend/api/validators"
	"github.com/giftmarket/giftmarket-backend/internal/giftorders"
	"github.com/giftmarket/giftmarket-backend/internal/refunds"
	"github.com/giftmarket/giftmarket-backend/internal/shipping"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	"github.com/giftmarket/giftmarket-backend/pkg/types"
)

type parcelRequest struct {
	WeightGrams int64  `json:"weight_grams" validate:"required,gt=0"`
	SizeClass   string `json:"size_class" validate:"required"`
	Fragile     bool   `json:"fragile"`
}

type createGiftOrderRequest struct {
	ProductID        uuid.UUID     `json:"product_id" validate:"required"`
	Quantity         int           `json:"quantity" validate:"required,gt=0"`
	RecipientName    string        `json:"recipient_name" validate:"required,min=1,max=120"`
	RecipientAddress types.Address `json:"recipient_address" validate:"required"`
	SenderMessage    *string       `json:"sender_message,omitempty" validate:"omitempty,max=500"`
	HideSender       bool          `json:"hide_sender"`
	Parcel           parcelRequest `json:"parcel" validate:"required"`
}

type recalculateShippingRequest struct {
	Parcel           parcelRequest  `json:"parcel" validate:"required"`
	Quantity         *int           `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	RecipientAddress *types.Address `json:"recipient_address,omitempty"`
}

func (p parcelRequest) toPackage() (shipping.Package, error) {
	size, err := enums.ParseSizeClass(p.SizeClass)
	if err != nil {
		return shipping.Package{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid size class")
	}
	return shipping.Package{
		WeightGrams: p.WeightGrams,
		SizeClass:   size,
		Fragile:     p.Fragile,
	}, nil
}

// GiftOrderCreate quotes the shipping fee and creates an unpaid gift order.
// No money moves until payment is confirmed.
func GiftOrderCreate(svc giftorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createGiftOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		parcel, err := payload.Parcel.toPackage()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Create(r.Context(), giftorders.CreateInput{
			AccountID:        accountID,
			ProductID:        payload.ProductID,
			Quantity:         payload.Quantity,
			RecipientName:    payload.RecipientName,
			RecipientAddress: payload.RecipientAddress,
			SenderMessage:    payload.SenderMessage,
			HideSender:       payload.HideSender,
			Parcel:           parcel,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// GiftOrderList pages through the authenticated account's gift orders.
func GiftOrderList(svc giftorders.Service, logg *logger.Logger) http.HandlerFunc {
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
		rows, next, err := svc.List(r.Context(), accountID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"gift_orders": rows,
			"next_cursor": next,
		})
	}
}

// GiftOrderDetail returns one gift order owned by the authenticated account.
func GiftOrderDetail(svc giftorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		giftOrderID, err := uuidURLParam(r, "giftOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), accountID, giftOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// GiftOrderConfirmPayment debits the frozen total and reserves stock.
func GiftOrderConfirmPayment(svc giftorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		giftOrderID, err := uuidURLParam(r, "giftOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.ConfirmPayment(r.Context(), accountID, giftOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// GiftOrderCancel cancels within the cancellation window. Paid orders are
// refunded in full.
func GiftOrderCancel(svc giftorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		giftOrderID, err := uuidURLParam(r, "giftOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), accountID, giftOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// GiftOrderRecalculateShipping reprices an unpaid order after a quantity or
// destination change.
func GiftOrderRecalculateShipping(svc giftorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		giftOrderID, err := uuidURLParam(r, "giftOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload recalculateShippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		parcel, err := payload.Parcel.toPackage()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.RecalculateShipping(r.Context(), giftorders.RecalculateInput{
			AccountID:        accountID,
			GiftOrderID:      giftOrderID,
			Parcel:           parcel,
			Quantity:         payload.Quantity,
			RecipientAddress: payload.RecipientAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// GiftOrderAcceptRefund claims a marked refund on a gift order.
func GiftOrderAcceptRefund(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		giftOrderID, err := uuidURLParam(r, "giftOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transaction, err := svc.AcceptRefund(r.Context(), refunds.AcceptInput{
			Target:    refunds.TargetGiftOrder,
			ID:        giftOrderID,
			AccountID: accountID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transaction)
	}
}

// TrackingResolve is the public, unauthenticated tracking page lookup.
func TrackingResolve(svc giftorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		view, err := svc.ResolveTracking(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
