package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackingLink is the public alias a recipient uses to follow a gift order.
// Resolving a link increments ViewCount and never mutates the order itself.
type TrackingLink struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GiftOrderID uuid.UUID `gorm:"column:gift_order_id;type:uuid;not null;index:tracking_links_gift_order_idx"`
	Code        string    `gorm:"column:code;type:text;not null;uniqueIndex:tracking_links_code_key"`
	ViewCount   int64     `gorm:"column:view_count;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
