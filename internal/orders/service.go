package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/internal/catalog"
	"github.com/giftmarket/giftmarket-backend/internal/ledger"
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

// Service runs the product order lifecycle. Purchase is the only path that
// creates an order; money movement, stock reservation and the order row commit
// or roll back as one unit.
type Service interface {
	Purchase(ctx context.Context, input PurchaseInput) (*models.Order, error)
	Advance(ctx context.Context, input AdvanceInput) (*models.Order, error)
	Cancel(ctx context.Context, accountID, orderID uuid.UUID) (*models.Order, error)
	Get(ctx context.Context, accountID, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
}

type service struct {
	repo    Repository
	catalog catalog.Repository
	ledger  ledgerService
	tx      txRunner
	outbox  outboxPublisher
}

// PurchaseInput identifies the buyer and the product to order.
type PurchaseInput struct {
	AccountID uuid.UUID
	ProductID uuid.UUID
}

// AdvanceInput moves an order to a target status. Fulfillment may only be
// attached when the target is completed.
type AdvanceInput struct {
	OrderID     uuid.UUID
	Target      enums.OrderStatus
	Fulfillment *types.Fulfillment
	AdminNotes  *string
}

// CreatedEvent is the outbox payload for a new order.
type CreatedEvent struct {
	OrderID    uuid.UUID           `json:"order_id"`
	AccountID  uuid.UUID           `json:"account_id"`
	ProductID  uuid.UUID           `json:"product_id"`
	Category   enums.OrderCategory `json:"category"`
	PriceCents int64               `json:"price_cents"`
}

// StatusChangedEvent is the outbox payload for a status transition.
type StatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	AccountID uuid.UUID         `json:"account_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
}

// NewService wires an orders service with the required dependencies.
func NewService(repo Repository, catalogRepo catalog.Repository, ledgerSvc ledgerService, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
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
	return &service{repo: repo, catalog: catalogRepo, ledger: ledgerSvc, tx: tx, outbox: outboxSvc}, nil
}

// Purchase debits the buyer, reserves stock and creates the order in one
// transaction. Any failure rolls back the whole unit, so a rejected debit
// leaves no order row and no stock change.
func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*models.Order, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		catalogRepo := s.catalog.WithTx(tx)

		product, err := catalogRepo.FindProduct(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !product.Active || product.Stock < 1 {
			return pkgerrors.New(pkgerrors.CodeProductUnavailable, "product unavailable").
				WithDetails(map[string]any{"product_id": product.ID})
		}

		if _, err := s.ledger.Debit(ctx, tx, ledger.DebitInput{
			AccountID:   input.AccountID,
			AmountCents: product.PriceCents,
			Kind:        enums.TransactionKindPurchase,
			Description: fmt.Sprintf("purchase %s", product.Name),
		}); err != nil {
			return err
		}

		reserved, err := catalogRepo.ReserveStock(ctx, product.ID, 1)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if !reserved {
			return pkgerrors.New(pkgerrors.CodeProductUnavailable, "product unavailable").
				WithDetails(map[string]any{"product_id": product.ID})
		}

		order = &models.Order{
			AccountID:    input.AccountID,
			ProductID:    product.ID,
			Category:     product.Category,
			PriceCents:   product.PriceCents,
			Status:       enums.OrderStatusPending,
			RefundStatus: enums.RefundStatusNone,
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: CreatedEvent{
				OrderID:    order.ID,
				AccountID:  order.AccountID,
				ProductID:  order.ProductID,
				Category:   order.Category,
				PriceCents: order.PriceCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Advance moves an order to the target status. The transition is checked
// against the adjacency map and re-checked by the guarded update, so a
// concurrent transition surfaces as illegal rather than a silent overwrite.
func (s *service) Advance(ctx context.Context, input AdvanceInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", input.Target))
	}
	if input.Fulfillment != nil && input.Target != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fulfillment may only be attached when completing")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.Find(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if !CanTransition(current.Status, input.Target) {
			return invalidTransition(current.Status, input.Target)
		}

		updates := map[string]any{}
		if input.AdminNotes != nil {
			updates["admin_notes"] = *input.AdminNotes
		}
		if input.Target == enums.OrderStatusCompleted {
			now := time.Now()
			updates["completed_at"] = now
			if input.Fulfillment != nil {
				if input.Fulfillment.Category != current.Category {
					return pkgerrors.New(pkgerrors.CodeValidation, "fulfillment category does not match order")
				}
				if err := input.Fulfillment.Validate(); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fulfillment")
				}
				updates["fulfillment"] = input.Fulfillment
			}
		}

		moved, err := repo.UpdateStatusGuarded(ctx, current.ID, current.Status, input.Target, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return invalidTransition(current.Status, input.Target)
		}

		from := current.Status
		order, err = repo.Find(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: StatusChangedEvent{
				OrderID:   order.ID,
				AccountID: order.AccountID,
				From:      from,
				To:        order.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel refunds the purchase price and cancels the order in one transaction.
// Legal only from pending or processing.
func (s *service) Cancel(ctx context.Context, accountID, orderID uuid.UUID) (*models.Order, error) {
	if accountID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id and order id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindForAccount(ctx, accountID, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if current.Status != enums.OrderStatusPending && current.Status != enums.OrderStatusProcessing {
			return invalidTransition(current.Status, enums.OrderStatusCancelled)
		}

		if _, err := s.ledger.Credit(ctx, tx, ledger.CreditInput{
			AccountID:   current.AccountID,
			AmountCents: current.PriceCents,
			Kind:        enums.TransactionKindRefund,
			Description: fmt.Sprintf("cancel order %s", current.ID),
		}); err != nil {
			return err
		}
		if err := s.catalog.WithTx(tx).ReleaseStock(ctx, current.ProductID, 1); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
		}

		moved, err := repo.UpdateStatusGuarded(ctx, current.ID, current.Status, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at": time.Now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !moved {
			return invalidTransition(current.Status, enums.OrderStatusCancelled)
		}

		from := current.Status
		order, err = repo.Find(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: StatusChangedEvent{
				OrderID:   order.ID,
				AccountID: order.AccountID,
				From:      from,
				To:        order.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Get returns the buyer's order. The fulfillment payload is visible only once
// the order is completed.
func (s *service) Get(ctx context.Context, accountID, orderID uuid.UUID) (*models.Order, error) {
	if accountID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id and order id required")
	}
	order, err := s.repo.FindForAccount(ctx, accountID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	redactFulfillment(order)
	return order, nil
}

func (s *service) List(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
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
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	for i := range rows {
		redactFulfillment(&rows[i])
	}
	return rows, next, nil
}

func redactFulfillment(order *models.Order) {
	if order.Status != enums.OrderStatusCompleted {
		order.Fulfillment = nil
	}
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
