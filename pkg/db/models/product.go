package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/pkg/enums"
)

// Product is the catalog row orders snapshot their price from.
type Product struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name       string              `gorm:"column:name;type:text;not null"`
	Category   enums.OrderCategory `gorm:"column:category;type:text;not null"`
	PriceCents int64               `gorm:"column:price_cents;not null"`
	Currency   enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	Stock      int                 `gorm:"column:stock;not null;default:0"`
	Active     bool                `gorm:"column:active;not null;default:true"`
	SalesCount int64               `gorm:"column:sales_count;not null;default:0"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
