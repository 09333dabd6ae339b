package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/pkg/enums"
)

// Transaction is the append-only ledger row recorded alongside every balance
// change. Amounts are signed: credits positive, debits negative. ProviderRef
// carries the payment-provider reference for deposits and is unique, which is
// what makes deposit crediting idempotent.
type Transaction struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID         uuid.UUID             `gorm:"column:account_id;type:uuid;not null;index:transactions_account_idx"`
	Kind              enums.TransactionKind `gorm:"column:kind;type:text;not null"`
	AmountCents       int64                 `gorm:"column:amount_cents;not null"`
	BalanceAfterCents int64                 `gorm:"column:balance_after_cents;not null"`
	Description       string                `gorm:"column:description;type:text;not null"`
	ProviderRef       *string               `gorm:"column:provider_ref;type:text;uniqueIndex:transactions_provider_ref_key"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
}
