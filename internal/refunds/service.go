package refunds

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/internal/ledger"
	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ledgerService interface {
	Credit(ctx context.Context, tx *gorm.DB, input ledger.CreditInput) (*models.Transaction, error)
}

// Target selects which order family a refund operation applies to.
type Target string

const (
	TargetOrder     Target = "order"
	TargetGiftOrder Target = "gift_order"
)

// Service coordinates two-phase refunds. MarkRefunded is the admin intent that
// snapshots the amount; AcceptRefund is the only path that credits money, and
// its gate fires exactly once per order.
type Service interface {
	MarkRefunded(ctx context.Context, input MarkInput) error
	AcceptRefund(ctx context.Context, input AcceptInput) (*models.Transaction, error)
}

type service struct {
	repo   Repository
	ledger ledgerService
	tx     txRunner
	outbox outboxPublisher
}

// MarkInput flags an order as refundable. AmountCents overrides the full-price
// default for partial refunds.
type MarkInput struct {
	Target      Target
	ID          uuid.UUID
	AmountCents *int64
	Reason      string
}

// AcceptInput is the buyer's claim of a marked refund.
type AcceptInput struct {
	Target    Target
	ID        uuid.UUID
	AccountID uuid.UUID
}

// AvailableEvent is the outbox payload when a refund is marked.
type AvailableEvent struct {
	Target      Target    `json:"target"`
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason,omitempty"`
}

// AcceptedEvent is the outbox payload when a refund credit lands.
type AcceptedEvent struct {
	Target        Target    `json:"target"`
	ID            uuid.UUID `json:"id"`
	AccountID     uuid.UUID `json:"account_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AmountCents   int64     `json:"amount_cents"`
}

// NewService wires a refunds service with the required dependencies.
func NewService(repo Repository, ledgerSvc ledgerService, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, ledger: ledgerSvc, tx: tx, outbox: outboxSvc}, nil
}

// MarkRefunded snapshots the refund amount at mark time. No money moves here.
// Product orders still in pending/processing also move to the refunded status;
// completed orders keep theirs. Gift orders keep their status in any case.
func (s *service) MarkRefunded(ctx context.Context, input MarkInput) error {
	if input.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AmountCents != nil && *input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	switch input.Target {
	case TargetOrder:
		return s.markOrder(ctx, input)
	case TargetGiftOrder:
		return s.markGiftOrder(ctx, input)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid refund target %q", input.Target))
	}
}

func (s *service) markOrder(ctx context.Context, input MarkInput) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, input.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.RefundStatus != enums.RefundStatusNone {
			return refundStateError(order.RefundStatus)
		}
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeInvalidRefundState, "cancelled orders were already credited")
		}

		amount := order.PriceCents
		if input.AmountCents != nil {
			if *input.AmountCents > order.PriceCents {
				return pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds order price")
			}
			amount = *input.AmountCents
		}

		moveStatus := order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusProcessing
		marked, err := repo.MarkOrderRefunded(ctx, order.ID, amount, moveStatus)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
		}
		if !marked {
			return refundStateError(order.RefundStatus)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundAvailable,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: AvailableEvent{
				Target:      TargetOrder,
				ID:          order.ID,
				AccountID:   order.AccountID,
				AmountCents: amount,
				Reason:      input.Reason,
			},
		})
	})
}

func (s *service) markGiftOrder(ctx context.Context, input MarkInput) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindGiftOrder(ctx, input.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gift order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift order")
		}
		if order.RefundStatus != enums.RefundStatusNone {
			return refundStateError(order.RefundStatus)
		}
		if order.Status == enums.GiftOrderStatusDelivered || order.Status == enums.GiftOrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeInvalidRefundState, "gift order is past the refundable states")
		}
		if !order.Paid() {
			return pkgerrors.New(pkgerrors.CodeInvalidRefundState, "no payment captured to refund")
		}

		amount := order.TotalCents
		if input.AmountCents != nil {
			if *input.AmountCents > order.TotalCents {
				return pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds gift order total")
			}
			amount = *input.AmountCents
		}

		marked, err := repo.MarkGiftOrderRefunded(ctx, order.ID, amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark gift order refunded")
		}
		if !marked {
			return refundStateError(order.RefundStatus)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundAvailable,
			AggregateType: enums.AggregateGiftOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: AvailableEvent{
				Target:      TargetGiftOrder,
				ID:          order.ID,
				AccountID:   order.AccountID,
				AmountCents: amount,
				Reason:      input.Reason,
			},
		})
	})
}

// AcceptRefund credits the snapshotted amount exactly once. The guarded gate
// and the ledger credit share one transaction, so a gate that did not fire
// means no credit and a fired gate that fails later rolls back both.
func (s *service) AcceptRefund(ctx context.Context, input AcceptInput) (*models.Transaction, error) {
	if input.ID == uuid.Nil || input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and account id required")
	}

	var row *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var (
			orderAccountID uuid.UUID
			amount         *int64
			aggregate      enums.OutboxAggregateType
			gate           func(context.Context, uuid.UUID) (bool, error)
		)
		switch input.Target {
		case TargetOrder:
			order, err := repo.FindOrder(ctx, input.ID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
			}
			orderAccountID = order.AccountID
			amount = order.RefundAmountCents
			aggregate = enums.AggregateOrder
			gate = repo.AcceptOrderRefund
		case TargetGiftOrder:
			order, err := repo.FindGiftOrder(ctx, input.ID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "gift order not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift order")
			}
			orderAccountID = order.AccountID
			amount = order.RefundAmountCents
			aggregate = enums.AggregateGiftOrder
			gate = repo.AcceptGiftOrderRefund
		default:
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid refund target %q", input.Target))
		}

		if orderAccountID != input.AccountID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		accepted, err := gate(ctx, input.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept refund gate")
		}
		if !accepted {
			return pkgerrors.New(pkgerrors.CodeInvalidRefundState, "no refund available to accept")
		}
		if amount == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "refund marked without a snapshot amount")
		}

		row, err = s.ledger.Credit(ctx, tx, ledger.CreditInput{
			AccountID:   input.AccountID,
			AmountCents: *amount,
			Kind:        enums.TransactionKindRefund,
			Description: fmt.Sprintf("refund %s %s", input.Target, input.ID),
		})
		if err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundAccepted,
			AggregateType: aggregate,
			AggregateID:   input.ID,
			Version:       1,
			Data: AcceptedEvent{
				Target:        input.Target,
				ID:            input.ID,
				AccountID:     input.AccountID,
				TransactionID: row.ID,
				AmountCents:   *amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func refundStateError(current enums.RefundStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidRefundState, fmt.Sprintf("refund state is %s", current)).
		WithDetails(map[string]any{"refund_status": current})
}
