package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/pkg/enums"
)

// Account holds the monetary balances for a buyer. Balances are mutated only
// through the ledger; accounts are disabled, never deleted.
type Account struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email               string              `gorm:"column:email;type:text;not null;uniqueIndex:accounts_email_key"`
	DisplayName         string              `gorm:"column:display_name;type:text;not null"`
	Status              enums.AccountStatus `gorm:"column:status;type:text;not null;default:'active'"`
	BalanceCents        int64               `gorm:"column:balance_cents;not null;default:0"`
	CashbackCents       int64               `gorm:"column:cashback_cents;not null;default:0"`
	CashbackFirst       bool                `gorm:"column:cashback_first;not null;default:false"`
	TotalDepositedCents int64               `gorm:"column:total_deposited_cents;not null;default:0"`
	TotalSpentCents     int64               `gorm:"column:total_spent_cents;not null;default:0"`
	TransactionCount    int64               `gorm:"column:transaction_count;not null;default:0"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// AvailableCents is the total spendable amount across both pools.
func (a Account) AvailableCents() int64 {
	return a.BalanceCents + a.CashbackCents
}
