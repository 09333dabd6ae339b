package controllers

import (
	"net/http"

	"github.com/giftmarket/giftmarket-backend/api/responses"
	"github.com/giftmarket/giftmarket-backend/api/validators"
	"github.com/giftmarket/giftmarket-backend/internal/giftorders"
	"github.com/giftmarket/giftmarket-backend/internal/orders"
	"github.com/giftmarket/giftmarket-backend/internal/refunds"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	"github.com/giftmarket/giftmarket-backend/pkg/types"
)

type advanceOrderRequest struct {
	Target      string             `json:"target" validate:"required"`
	Fulfillment *types.Fulfillment `json:"fulfillment,omitempty"`
	AdminNotes  *string            `json:"admin_notes,omitempty" validate:"omitempty,max=2000"`
}

type advanceGiftOrderRequest struct {
	Target       string  `json:"target" validate:"required"`
	Courier      *string `json:"courier,omitempty" validate:"omitempty,min=1,max=120"`
	TrackingCode *string `json:"tracking_code,omitempty" validate:"omitempty,min=1,max=120"`
}

type markRefundRequest struct {
	AmountCents *int64 `json:"amount_cents,omitempty" validate:"omitempty,gt=0"`
	Reason      string `json:"reason" validate:"required,min=1,max=500"`
}

// AdminAdvanceOrder moves an order along its lifecycle. Fulfillment payloads
// ride along only when the order is being completed.
func AdminAdvanceOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuidURLParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload advanceOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(payload.Target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}
		order, err := svc.Advance(r.Context(), orders.AdvanceInput{
			OrderID:     orderID,
			Target:      target,
			Fulfillment: payload.Fulfillment,
			AdminNotes:  payload.AdminNotes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminAdvanceGiftOrder moves a gift order along the fulfillment chain.
func AdminAdvanceGiftOrder(svc giftorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		giftOrderID, err := uuidURLParam(r, "giftOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload advanceGiftOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseGiftOrderStatus(payload.Target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}
		order, err := svc.Advance(r.Context(), giftorders.AdvanceInput{
			GiftOrderID:  giftOrderID,
			Target:       target,
			Courier:      payload.Courier,
			TrackingCode: payload.TrackingCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminMarkOrderRefunded snapshots a refund amount on an order for the buyer
// to accept later.
func AdminMarkOrderRefunded(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return markRefunded(svc, logg, refunds.TargetOrder, "orderId")
}

// AdminMarkGiftOrderRefunded snapshots a refund amount on a paid gift order.
func AdminMarkGiftOrderRefunded(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return markRefunded(svc, logg, refunds.TargetGiftOrder, "giftOrderId")
}

func markRefunded(svc refunds.Service, logg *logger.Logger, target refunds.Target, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidURLParam(r, param)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload markRefundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.MarkRefunded(r.Context(), refunds.MarkInput{
			Target:      target,
			ID:          id,
			AmountCents: payload.AmountCents,
			Reason:      payload.Reason,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "refund_marked"})
	}
}
