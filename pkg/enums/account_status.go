package enums

import "fmt"

// AccountStatus tracks whether an account may transact.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

var validAccountStatuses = []AccountStatus{
	AccountStatusActive,
	AccountStatusDisabled,
}

// String implements fmt.Stringer.
func (a AccountStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AccountStatus.
func (a AccountStatus) IsValid() bool {
	for _, candidate := range validAccountStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAccountStatus converts raw input into an AccountStatus.
func ParseAccountStatus(value string) (AccountStatus, error) {
	for _, candidate := range validAccountStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account status %q", value)
}
