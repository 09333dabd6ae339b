package enums

import "fmt"

// GiftOrderStatus tracks the lifecycle of a physical gift order.
type GiftOrderStatus string

const (
	GiftOrderStatusPendingPayment GiftOrderStatus = "pending_payment"
	GiftOrderStatusConfirmed      GiftOrderStatus = "confirmed"
	GiftOrderStatusProcessing     GiftOrderStatus = "processing"
	GiftOrderStatusShipped        GiftOrderStatus = "shipped"
	GiftOrderStatusOutForDelivery GiftOrderStatus = "out_for_delivery"
	GiftOrderStatusDelivered      GiftOrderStatus = "delivered"
	GiftOrderStatusCancelled      GiftOrderStatus = "cancelled"
)

var validGiftOrderStatuses = []GiftOrderStatus{
	GiftOrderStatusPendingPayment,
	GiftOrderStatusConfirmed,
	GiftOrderStatusProcessing,
	GiftOrderStatusShipped,
	GiftOrderStatusOutForDelivery,
	GiftOrderStatusDelivered,
	GiftOrderStatusCancelled,
}

// String implements fmt.Stringer.
func (g GiftOrderStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GiftOrderStatus.
func (g GiftOrderStatus) IsValid() bool {
	for _, candidate := range validGiftOrderStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from the status.
func (g GiftOrderStatus) IsTerminal() bool {
	switch g {
	case GiftOrderStatusDelivered, GiftOrderStatusCancelled:
		return true
	}
	return false
}

// ParseGiftOrderStatus converts raw input into a GiftOrderStatus.
func ParseGiftOrderStatus(value string) (GiftOrderStatus, error) {
	for _, candidate := range validGiftOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gift order status %q", value)
}
