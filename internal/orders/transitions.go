package orders

import "github.com/giftmarket/giftmarket-backend/pkg/enums"

// transitions is the adjacency map for product orders. Missing keys are
// terminal states.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusProcessing,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusCompleted: {},
}

// CanTransition reports whether from → to is a legal order transition.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
