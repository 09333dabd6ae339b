package giftorders

import "github.com/giftmarket/giftmarket-backend/pkg/enums"

// transitions is the adjacency map for gift orders. Cancellation legality also
// depends on the creation-time window, checked in the service.
var transitions = map[enums.GiftOrderStatus][]enums.GiftOrderStatus{
	enums.GiftOrderStatusPendingPayment: {
		enums.GiftOrderStatusConfirmed,
		enums.GiftOrderStatusCancelled,
	},
	enums.GiftOrderStatusConfirmed: {
		enums.GiftOrderStatusProcessing,
		enums.GiftOrderStatusCancelled,
	},
	enums.GiftOrderStatusProcessing: {
		enums.GiftOrderStatusShipped,
	},
	enums.GiftOrderStatusShipped: {
		enums.GiftOrderStatusOutForDelivery,
	},
	enums.GiftOrderStatusOutForDelivery: {
		enums.GiftOrderStatusDelivered,
	},
	enums.GiftOrderStatusDelivered: {},
}

// CanTransition reports whether from → to is a legal gift order transition.
func CanTransition(from, to enums.GiftOrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
