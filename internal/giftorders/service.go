package giftorders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/internal/catalog"
	"github.com/giftmarket/giftmarket-backend/internal/ledger"
	"github.com/giftmarket/giftmarket-backend/internal/shipping"
	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/outbox"
	"github.com/giftmarket/giftmarket-backend/pkg/pagination"
	"github.com/giftmarket/giftmarket-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ledgerService interface {
	Debit(ctx context.Context, tx *gorm.DB, input ledger.DebitInput) (*models.Transaction, error)
	Credit(ctx context.Context, tx *gorm.DB, input ledger.CreditInput) (*models.Transaction, error)
}

type feeCalculator interface {
	Fee(pkg shipping.Package, dest shipping.Destination) (int64, error)
}

// Service runs the gift order lifecycle. Creation never moves money; the debit
// happens at ConfirmPayment, and the shipping fee is frozen from that point on.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.GiftOrder, error)
	ConfirmPayment(ctx context.Context, accountID, giftOrderID uuid.UUID) (*models.GiftOrder, error)
	Advance(ctx context.Context, input AdvanceInput) (*models.GiftOrder, error)
	Cancel(ctx context.Context, accountID, giftOrderID uuid.UUID) (*models.GiftOrder, error)
	RecalculateShipping(ctx context.Context, input RecalculateInput) (*models.GiftOrder, error)
	Get(ctx context.Context, accountID, giftOrderID uuid.UUID) (*models.GiftOrder, error)
	List(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.GiftOrder, string, error)
	ResolveTracking(ctx context.Context, code string) (*TrackingView, error)
	ExpireUnpaid(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type service struct {
	repo         Repository
	catalog      catalog.Repository
	ledger       ledgerService
	fees         feeCalculator
	tx           txRunner
	outbox       outboxPublisher
	cancelWindow time.Duration
	now          func() time.Time
}

// CreateInput describes a new gift order. The parcel details feed the shipping
// fee calculation at creation time.
type CreateInput struct {
	AccountID        uuid.UUID
	ProductID        uuid.UUID
	Quantity         int
	RecipientName    string
	RecipientAddress types.Address
	SenderMessage    *string
	HideSender       bool
	Parcel           shipping.Package
}

// AdvanceInput moves a gift order along the fulfillment chain. Courier and
// tracking metadata may only be attached when the target is shipped.
type AdvanceInput struct {
	GiftOrderID  uuid.UUID
	Target       enums.GiftOrderStatus
	Courier      *string
	TrackingCode *string
}

// RecalculateInput rewrites the shipping fee of an unpaid order after a
// quantity or destination change.
type RecalculateInput struct {
	AccountID        uuid.UUID
	GiftOrderID      uuid.UUID
	Parcel           shipping.Package
	Quantity         *int
	RecipientAddress *types.Address
}

// TrackingView is the public projection a recipient sees for a tracking code.
type TrackingView struct {
	Status        enums.GiftOrderStatus `json:"status"`
	RecipientName string                `json:"recipient_name"`
	Courier       *string               `json:"courier,omitempty"`
	TrackingCode  *string               `json:"tracking_code,omitempty"`
	SenderMessage *string               `json:"sender_message,omitempty"`
	ShippedAt     *time.Time            `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time            `json:"delivered_at,omitempty"`
	ViewCount     int64                 `json:"view_count"`
}

// CreatedEvent is the outbox payload for a new gift order.
type CreatedEvent struct {
	GiftOrderID uuid.UUID `json:"gift_order_id"`
	AccountID   uuid.UUID `json:"account_id"`
	ProductID   uuid.UUID `json:"product_id"`
	Quantity    int       `json:"quantity"`
	TotalCents  int64     `json:"total_cents"`
}

// StatusChangedEvent is the outbox payload for a gift order transition.
type StatusChangedEvent struct {
	GiftOrderID uuid.UUID             `json:"gift_order_id"`
	AccountID   uuid.UUID             `json:"account_id"`
	From        enums.GiftOrderStatus `json:"from"`
	To          enums.GiftOrderStatus `json:"to"`
}

// NewService wires a gift orders service with the required dependencies.
func NewService(repo Repository, catalogRepo catalog.Repository, ledgerSvc ledgerService, fees feeCalculator, tx txRunner, outboxSvc outboxPublisher, cancelWindow time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("gift orders repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if fees == nil {
		return nil, fmt.Errorf("fee calculator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cancelWindow <= 0 {
		return nil, fmt.Errorf("cancel window must be positive")
	}
	return &service{
		repo:         repo,
		catalog:      catalogRepo,
		ledger:       ledgerSvc,
		fees:         fees,
		tx:           tx,
		outbox:       outboxSvc,
		cancelWindow: cancelWindow,
		now:          time.Now,
	}, nil
}

// Create opens a gift order in pending_payment without touching the ledger.
// The shipping fee is computed exactly once here; a tracking link is created
// alongside so the recipient can follow the order from the start.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.GiftOrder, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.RecipientName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient name required")
	}
	if err := input.RecipientAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid recipient address")
	}

	feeCents, err := s.fees.Fee(input.Parcel, shipping.Destination{
		Country: input.RecipientAddress.Country,
		City:    input.RecipientAddress.City,
	})
	if err != nil {
		return nil, err
	}

	var order *models.GiftOrder
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.catalog.WithTx(tx).FindProduct(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !product.Active || product.Stock < input.Quantity {
			return pkgerrors.New(pkgerrors.CodeProductUnavailable, "product unavailable").
				WithDetails(map[string]any{"product_id": product.ID, "requested_qty": input.Quantity})
		}

		order = &models.GiftOrder{
			AccountID:        input.AccountID,
			ProductID:        product.ID,
			Quantity:         input.Quantity,
			PriceCents:       product.PriceCents,
			ShippingFeeCents: feeCents,
			TotalCents:       int64(input.Quantity)*product.PriceCents + feeCents,
			Status:           enums.GiftOrderStatusPendingPayment,
			RefundStatus:     enums.RefundStatusNone,
			RecipientName:    input.RecipientName,
			RecipientAddress: input.RecipientAddress,
			SenderMessage:    input.SenderMessage,
			HideSender:       input.HideSender,
		}
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gift order")
		}

		code, err := generateTrackingCode()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate tracking code")
		}
		if err := repo.CreateTrackingLink(ctx, &models.TrackingLink{
			GiftOrderID: order.ID,
			Code:        code,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tracking link")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGiftOrderCreated,
			AggregateType: enums.AggregateGiftOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: CreatedEvent{
				GiftOrderID: order.ID,
				AccountID:   order.AccountID,
				ProductID:   order.ProductID,
				Quantity:    order.Quantity,
				TotalCents:  order.TotalCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmPayment debits the frozen total and moves the order to confirmed in
// one transaction. A rejected debit rolls everything back, leaving the order in
// pending_payment for a retry or cancel.
func (s *service) ConfirmPayment(ctx context.Context, accountID, giftOrderID uuid.UUID) (*models.GiftOrder, error) {
	if accountID == uuid.Nil || giftOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id and gift order id required")
	}

	var order *models.GiftOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindForAccount(ctx, accountID, giftOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gift order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift order")
		}
		if current.Status != enums.GiftOrderStatusPendingPayment {
			return invalidTransition(current.Status, enums.GiftOrderStatusConfirmed)
		}

		if _, err := s.ledger.Debit(ctx, tx, ledger.DebitInput{
			AccountID:   current.AccountID,
			AmountCents: current.TotalCents,
			Kind:        enums.TransactionKindPurchase,
			Description: fmt.Sprintf("gift order %s", current.ID),
		}); err != nil {
			return err
		}

		reserved, err := s.catalog.WithTx(tx).ReserveStock(ctx, current.ProductID, current.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if !reserved {
			return pkgerrors.New(pkgerrors.CodeProductUnavailable, "product unavailable").
				WithDetails(map[string]any{"product_id": current.ProductID, "requested_qty": current.Quantity})
		}

		moved, err := repo.UpdateStatusGuarded(ctx, current.ID, current.Status, enums.GiftOrderStatusConfirmed, map[string]any{
			"paid_at": s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
		}
		if !moved {
			return invalidTransition(current.Status, enums.GiftOrderStatusConfirmed)
		}

		from := current.Status
		order, err = repo.Find(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload gift order")
		}
		return s.emitStatusChanged(ctx, tx, order, from)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Advance moves a gift order along the fulfillment chain. Confirmed and
// cancelled are reachable only through their dedicated entry points.
func (s *service) Advance(ctx context.Context, input AdvanceInput) (*models.GiftOrder, error) {
	if input.GiftOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gift order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid gift order status %q", input.Target))
	}
	switch input.Target {
	case enums.GiftOrderStatusConfirmed:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment confirmation has its own entry point")
	case enums.GiftOrderStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation has its own entry point")
	}
	if (input.Courier != nil || input.TrackingCode != nil) && input.Target != enums.GiftOrderStatusShipped {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "courier metadata may only be attached when shipping")
	}

	var order *models.GiftOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.Find(ctx, input.GiftOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gift order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift order")
		}
		if !CanTransition(current.Status, input.Target) {
			return invalidTransition(current.Status, input.Target)
		}

		updates := map[string]any{}
		switch input.Target {
		case enums.GiftOrderStatusShipped:
			updates["shipped_at"] = s.now()
			if input.Courier != nil {
				updates["courier"] = *input.Courier
			}
			if input.TrackingCode != nil {
				updates["tracking_code"] = *input.TrackingCode
			}
		case enums.GiftOrderStatusDelivered:
			updates["delivered_at"] = s.now()
		}

		moved, err := repo.UpdateStatusGuarded(ctx, current.ID, current.Status, input.Target, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update gift order status")
		}
		if !moved {
			return invalidTransition(current.Status, input.Target)
		}

		from := current.Status
		order, err = repo.Find(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload gift order")
		}
		return s.emitStatusChanged(ctx, tx, order, from)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel cancels a gift order within the creation window. Paid orders get the
// full total credited back and their stock released in the same transaction.
func (s *service) Cancel(ctx context.Context, accountID, giftOrderID uuid.UUID) (*models.GiftOrder, error) {
	if accountID == uuid.Nil || giftOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id and gift order id required")
	}

	var order *models.GiftOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindForAccount(ctx, accountID, giftOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gift order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift order")
		}
		if !CanTransition(current.Status, enums.GiftOrderStatusCancelled) {
			return invalidTransition(current.Status, enums.GiftOrderStatusCancelled)
		}
		if s.now().Sub(current.CreatedAt) > s.cancelWindow {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "cancellation window has closed").
				WithDetails(map[string]any{
					"created_at":    current.CreatedAt,
					"cancel_window": s.cancelWindow.String(),
				})
		}
		if current.RefundStatus != enums.RefundStatusNone {
			return pkgerrors.New(pkgerrors.CodeInvalidRefundState, "a refund is already in flight for this gift order")
		}

		if current.Paid() {
			if _, err := s.ledger.Credit(ctx, tx, ledger.CreditInput{
				AccountID:   current.AccountID,
				AmountCents: current.TotalCents,
				Kind:        enums.TransactionKindRefund,
				Description: fmt.Sprintf("cancel gift order %s", current.ID),
			}); err != nil {
				return err
			}
			if err := s.catalog.WithTx(tx).ReleaseStock(ctx, current.ProductID, current.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
			}
		}

		moved, err := repo.UpdateStatusGuarded(ctx, current.ID, current.Status, enums.GiftOrderStatusCancelled, map[string]any{
			"cancelled_at": s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel gift order")
		}
		if !moved {
			return invalidTransition(current.Status, enums.GiftOrderStatusCancelled)
		}

		from := current.Status
		order, err = repo.Find(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload gift order")
		}
		return s.emitStatusChanged(ctx, tx, order, from)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ExpireUnpaid cancels gift orders that sat in pending_payment past the
// TTL. Unpaid orders hold no funds and no stock, so expiry is a plain
// transition. The guarded update skips any order that got paid concurrently.
func (s *service) ExpireUnpaid(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if olderThan <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "expiry ttl must be positive")
	}
	if limit <= 0 {
		limit = 100
	}

	cutoff := s.now().Add(-olderThan)
	stale, err := s.repo.ListStalePendingPayment(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale gift orders")
	}

	expired := 0
	var errs []error
	for i := range stale {
		current := stale[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			moved, err := repo.UpdateStatusGuarded(ctx, current.ID, enums.GiftOrderStatusPendingPayment, enums.GiftOrderStatusCancelled, map[string]any{
				"cancelled_at": s.now(),
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire gift order")
			}
			if !moved {
				return nil
			}
			order, err := repo.Find(ctx, current.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload gift order")
			}
			expired++
			return s.emitStatusChanged(ctx, tx, order, enums.GiftOrderStatusPendingPayment)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return expired, multierr.Combine(errs...)
}

// RecalculateShipping recomputes the fee after a quantity or destination
// change. The paid_at guard in the repository keeps paid orders untouched.
func (s *service) RecalculateShipping(ctx context.Context, input RecalculateInput) (*models.GiftOrder, error) {
	if input.AccountID == uuid.Nil || input.GiftOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id and gift order id required")
	}
	if input.Quantity != nil && *input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.RecipientAddress != nil {
		if err := input.RecipientAddress.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid recipient address")
		}
	}

	var order *models.GiftOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindForAccount(ctx, input.AccountID, input.GiftOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gift order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift order")
		}
		if current.Paid() || current.Status != enums.GiftOrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeConflict, "shipping fee is frozen once payment is confirmed")
		}

		address := current.RecipientAddress
		if input.RecipientAddress != nil {
			address = *input.RecipientAddress
		}
		quantity := current.Quantity
		if input.Quantity != nil {
			quantity = *input.Quantity
		}

		feeCents, err := s.fees.Fee(input.Parcel, shipping.Destination{
			Country: address.Country,
			City:    address.City,
		})
		if err != nil {
			return err
		}

		updates := map[string]any{
			"shipping_fee_cents": feeCents,
			"quantity":           quantity,
			"total_cents":        int64(quantity)*current.PriceCents + feeCents,
		}
		if input.RecipientAddress != nil {
			updates["recipient_address"] = address
		}
		updated, err := repo.UpdateShippingUnpaid(ctx, current.ID, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipping fee")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeConflict, "shipping fee is frozen once payment is confirmed")
		}

		order, err = repo.Find(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload gift order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, accountID, giftOrderID uuid.UUID) (*models.GiftOrder, error) {
	if accountID == uuid.Nil || giftOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id and gift order id required")
	}
	order, err := s.repo.FindForAccount(ctx, accountID, giftOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gift order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.GiftOrder, string, error) {
	if accountID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, accountID, limit+1, cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list gift orders")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// ResolveTracking looks up the public tracking view for a code and counts the
// view. The sender is hidden when the order asked for it.
func (s *service) ResolveTracking(ctx context.Context, code string) (*TrackingView, error) {
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking code required")
	}

	link, err := s.repo.FindTrackingLink(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tracking code not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tracking link")
	}
	if err := s.repo.IncrementTrackingViews(ctx, code); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count tracking view")
	}

	order, err := s.repo.Find(ctx, link.GiftOrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift order")
	}

	view := &TrackingView{
		Status:        order.Status,
		RecipientName: order.RecipientName,
		Courier:       order.Courier,
		TrackingCode:  order.TrackingCode,
		ShippedAt:     order.ShippedAt,
		DeliveredAt:   order.DeliveredAt,
		ViewCount:     link.ViewCount + 1,
	}
	if !order.HideSender {
		view.SenderMessage = order.SenderMessage
	}
	return view, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.GiftOrder, from enums.GiftOrderStatus) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventGiftOrderStatusChanged,
		AggregateType: enums.AggregateGiftOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: StatusChangedEvent{
			GiftOrderID: order.ID,
			AccountID:   order.AccountID,
			From:        from,
			To:          order.Status,
		},
	})
}

func generateTrackingCode() (string, error) {
	raw := make([]byte, 10)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return fmt.Sprintf("gm-%s", hex.EncodeToString(raw)), nil
}

func invalidTransition(from, to enums.GiftOrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move gift order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
