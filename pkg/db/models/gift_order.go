package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	"github.com/giftmarket/giftmarket-backend/pkg/types"
)

// GiftOrder is a physical gift shipment. Money moves at ConfirmPayment, not at
// creation; the shipping fee is frozen once payment is confirmed.
type GiftOrder struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID         uuid.UUID             `gorm:"column:account_id;type:uuid;not null;index:gift_orders_account_idx"`
	ProductID         uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	Quantity          int                   `gorm:"column:quantity;not null"`
	PriceCents        int64                 `gorm:"column:price_cents;not null"`
	ShippingFeeCents  int64                 `gorm:"column:shipping_fee_cents;not null"`
	TotalCents        int64                 `gorm:"column:total_cents;not null"`
	Status            enums.GiftOrderStatus `gorm:"column:status;type:text;not null;default:'pending_payment'"`
	RefundStatus      enums.RefundStatus    `gorm:"column:refund_status;type:text;not null;default:'none'"`
	RefundAmountCents *int64                `gorm:"column:refund_amount_cents"`
	RecipientName     string                `gorm:"column:recipient_name;type:text;not null"`
	RecipientAddress  types.Address         `gorm:"column:recipient_address;type:jsonb;not null"`
	SenderMessage     *string               `gorm:"column:sender_message;type:text"`
	HideSender        bool                  `gorm:"column:hide_sender;not null;default:false"`
	Courier           *string               `gorm:"column:courier;type:text"`
	TrackingCode      *string               `gorm:"column:tracking_code;type:text;uniqueIndex:gift_orders_tracking_code_key"`
	PaidAt            *time.Time            `gorm:"column:paid_at"`
	ShippedAt         *time.Time            `gorm:"column:shipped_at"`
	DeliveredAt       *time.Time            `gorm:"column:delivered_at"`
	CancelledAt       *time.Time            `gorm:"column:cancelled_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// Paid reports whether money has been captured for the order.
func (g GiftOrder) Paid() bool {
	return g.PaidAt != nil
}
