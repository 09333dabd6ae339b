package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/internal/giftorders"
	"github.com/giftmarket/giftmarket-backend/internal/ledger"
	"github.com/giftmarket/giftmarket-backend/internal/orders"
	"github.com/giftmarket/giftmarket-backend/internal/refunds"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	"github.com/giftmarket/giftmarket-backend/pkg/outbox"
	"github.com/giftmarket/giftmarket-backend/pkg/outbox/idempotency"
)

const consumerName = "notifications"

// Consumer turns order lifecycle events into notification records. Failures
// here never touch the flows that produced the events; a bad message is logged
// and dropped, a transient failure is redelivered.
type Consumer struct {
	sub  *pubsub.Subscriber
	svc  Service
	idem *idempotency.Manager
	logg *logger.Logger
}

type processResult struct {
	ack bool
}

// NewConsumer wires the notification consumer.
func NewConsumer(sub *pubsub.Subscriber, svc Service, idem *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if sub == nil {
		return nil, fmt.Errorf("subscriber required")
	}
	if svc == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if idem == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{sub: sub, svc: svc, idem: idem, logg: logg}, nil
}

// Run blocks receiving messages until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.Data, msg.Attributes)
		if result.ack {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

func (c *Consumer) process(ctx context.Context, data []byte, attrs map[string]string) processResult {
	eventType := attrs["event_type"]

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(ctx, "dropping malformed event payload", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(ctx, "dropping event without a valid event id", err)
		return processResult{ack: true}
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	processed, err := c.idem.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{ack: false}
	}
	if processed {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	input, ok, err := translate(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "dropping undecodable event", err)
		return processResult{ack: true}
	}
	if !ok {
		c.logg.Info(logCtx, "no notification for event type")
		return processResult{ack: true}
	}

	if _, err := c.svc.Record(logCtx, input); err != nil {
		// Release the idempotency mark so redelivery gets another attempt.
		if delErr := c.idem.Delete(logCtx, consumerName, eventID); delErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency mark", delErr)
		}
		c.logg.Error(logCtx, "failed to record notification", err)
		return processResult{ack: false}
	}

	c.logg.Info(logCtx, "notification recorded")
	return processResult{ack: true}
}

func translate(eventType string, data json.RawMessage) (RecordInput, bool, error) {
	switch enums.OutboxEventType(eventType) {
	case enums.EventOrderCreated:
		var payload orders.CreatedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return RecordInput{}, false, err
		}
		link := fmt.Sprintf("/orders/%s", payload.OrderID)
		return RecordInput{
			AccountID: payload.AccountID,
			Type:      enums.NotificationTypeOrderCreated,
			Title:     "Order received",
			Message:   fmt.Sprintf("Your order for %s is being prepared.", formatCents(payload.PriceCents)),
			Link:      &link,
		}, true, nil

	case enums.EventOrderStatusChanged:
		var payload orders.StatusChangedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return RecordInput{}, false, err
		}
		link := fmt.Sprintf("/orders/%s", payload.OrderID)
		return RecordInput{
			AccountID: payload.AccountID,
			Type:      enums.NotificationTypeOrderStatus,
			Title:     "Order update",
			Message:   fmt.Sprintf("Your order is now %s.", payload.To),
			Link:      &link,
		}, true, nil

	case enums.EventGiftOrderCreated:
		var payload giftorders.CreatedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return RecordInput{}, false, err
		}
		link := fmt.Sprintf("/gift-orders/%s", payload.GiftOrderID)
		return RecordInput{
			AccountID: payload.AccountID,
			Type:      enums.NotificationTypeGiftOrderStatus,
			Title:     "Gift order created",
			Message:   fmt.Sprintf("Your gift order of %s is awaiting payment.", formatCents(payload.TotalCents)),
			Link:      &link,
		}, true, nil

	case enums.EventGiftOrderStatusChanged:
		var payload giftorders.StatusChangedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return RecordInput{}, false, err
		}
		link := fmt.Sprintf("/gift-orders/%s", payload.GiftOrderID)
		return RecordInput{
			AccountID: payload.AccountID,
			Type:      enums.NotificationTypeGiftOrderStatus,
			Title:     "Gift order update",
			Message:   fmt.Sprintf("Your gift order is now %s.", payload.To),
			Link:      &link,
		}, true, nil

	case enums.EventRefundAvailable:
		var payload refunds.AvailableEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return RecordInput{}, false, err
		}
		link := refundLink(payload.Target, payload.ID)
		return RecordInput{
			AccountID: payload.AccountID,
			Type:      enums.NotificationTypeRefundAvailable,
			Title:     "Refund available",
			Message:   fmt.Sprintf("A refund of %s is ready to claim.", formatCents(payload.AmountCents)),
			Link:      &link,
		}, true, nil

	case enums.EventRefundAccepted:
		var payload refunds.AcceptedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return RecordInput{}, false, err
		}
		link := refundLink(payload.Target, payload.ID)
		return RecordInput{
			AccountID: payload.AccountID,
			Type:      enums.NotificationTypeSystem,
			Title:     "Refund credited",
			Message:   fmt.Sprintf("%s was returned to your balance.", formatCents(payload.AmountCents)),
			Link:      &link,
		}, true, nil

	case enums.EventDepositCredited:
		var payload ledger.DepositCreditedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return RecordInput{}, false, err
		}
		return RecordInput{
			AccountID: payload.AccountID,
			Type:      enums.NotificationTypeDeposit,
			Title:     "Deposit credited",
			Message:   fmt.Sprintf("%s was added to your balance.", formatCents(payload.AmountCents)),
		}, true, nil
	}

	return RecordInput{}, false, nil
}

func refundLink(target refunds.Target, id uuid.UUID) string {
	if target == refunds.TargetGiftOrder {
		return fmt.Sprintf("/gift-orders/%s", id)
	}
	return fmt.Sprintf("/orders/%s", id)
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d USD", cents/100, cents%100)
}
