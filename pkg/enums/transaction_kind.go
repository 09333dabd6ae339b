package enums

import "fmt"

// TransactionKind classifies ledger transaction rows.
type TransactionKind string

const (
	TransactionKindDeposit       TransactionKind = "deposit"
	TransactionKindPurchase      TransactionKind = "purchase"
	TransactionKindRefund        TransactionKind = "refund"
	TransactionKindReferralBonus TransactionKind = "referral_bonus"
	TransactionKindWithdrawal    TransactionKind = "withdrawal"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindDeposit,
	TransactionKindPurchase,
	TransactionKindRefund,
	TransactionKindReferralBonus,
	TransactionKindWithdrawal,
}

// String implements fmt.Stringer.
func (t TransactionKind) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionKind.
func (t TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionKind converts raw input into a TransactionKind.
func ParseTransactionKind(value string) (TransactionKind, error) {
	for _, candidate := range validTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind %q", value)
}
