package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	"github.com/giftmarket/giftmarket-backend/pkg/types"
)

// Order is a digital-goods order. PriceCents is snapshotted at purchase time
// and never rewritten. Fulfillment is attached when the order completes and its
// variant must match Category.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID         uuid.UUID           `gorm:"column:account_id;type:uuid;not null;index:orders_account_idx"`
	ProductID         uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	Category          enums.OrderCategory `gorm:"column:category;type:text;not null"`
	PriceCents        int64               `gorm:"column:price_cents;not null"`
	Status            enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	RefundStatus      enums.RefundStatus  `gorm:"column:refund_status;type:text;not null;default:'none'"`
	RefundAmountCents *int64              `gorm:"column:refund_amount_cents"`
	Fulfillment       *types.Fulfillment  `gorm:"column:fulfillment;type:jsonb"`
	AdminNotes        *string             `gorm:"column:admin_notes;type:text"`
	CompletedAt       *time.Time          `gorm:"column:completed_at"`
	CancelledAt       *time.Time          `gorm:"column:cancelled_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
