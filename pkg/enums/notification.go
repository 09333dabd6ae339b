package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOrderCreated    NotificationType = "order_created"
	NotificationTypeOrderStatus     NotificationType = "order_status"
	NotificationTypeGiftOrderStatus NotificationType = "gift_order_status"
	NotificationTypeRefundAvailable NotificationType = "refund_available"
	NotificationTypeDeposit         NotificationType = "deposit"
	NotificationTypeSystem          NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderCreated,
	NotificationTypeOrderStatus,
	NotificationTypeGiftOrderStatus,
	NotificationTypeRefundAvailable,
	NotificationTypeDeposit,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
