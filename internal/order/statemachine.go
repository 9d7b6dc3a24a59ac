package order

import (
	"fmt"

	"github.com/lumenquant/tradingcore/internal/domain"
)

var allowedTransitions = map[domain.OrderState]map[domain.OrderState]bool{
	domain.OrderStateNew: {
		domain.OrderStatePendingSubmit: true,
		domain.OrderStateRejected:      true, // pre-broker risk rejection
	},
	domain.OrderStatePendingSubmit: {
		domain.OrderStateOpen:     true,
		domain.OrderStateRejected: true,
	},
	domain.OrderStateOpen: {
		domain.OrderStatePartiallyFilled: true,
		domain.OrderStateFilled:          true,
		domain.OrderStateCancelPending:   true,
		domain.OrderStateExpired:         true,
	},
	domain.OrderStatePartiallyFilled: {
		domain.OrderStatePartiallyFilled: true,
		domain.OrderStateFilled:          true,
		domain.OrderStateCancelPending:   true,
		domain.OrderStateExpired:         true,
	},
	domain.OrderStateCancelPending: {
		domain.OrderStateCancelled:       true,
		domain.OrderStateOpen:            true, // cancel request itself rejected
		domain.OrderStatePartiallyFilled: true, // raced with a fill
		domain.OrderStateFilled:          true, // raced with a fill
	},
}

// ValidateTransition returns an error if moving an order from `from` to
// `to` is not a legal state-machine transition.
func ValidateTransition(from, to domain.OrderState) error {
	if from.IsTerminal() {
		return fmt.Errorf("order is already in terminal state %s, cannot transition to %s", from, to)
	}
	next, ok := allowedTransitions[from]
	if !ok || !next[to] {
		return fmt.Errorf("illegal order transition %s -> %s", from, to)
	}
	return nil
}
