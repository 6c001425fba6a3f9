package service

import (
	"errors"
	"fmt"

	"github.com/mesa-pos/api/internal/enum"
)

// ErrInvalidState is returned when a requested status change is not in
// the transition table.
var ErrInvalidState = errors.New("invalid order state transition")

// allowedTransitions is the closed transition table for order status.
// Key is current status, value is the set of statuses it can move to.
// Every edge points forward; SETTLED is absorbing. READY is reachable
// straight from PENDING when an order's lines all complete at once.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:       {enum.OrderStatusInPreparation, enum.OrderStatusReady},
	enum.OrderStatusInPreparation: {enum.OrderStatusReady},
	enum.OrderStatusReady:         {enum.OrderStatusSettled},
}

// CanTransition reports whether the status change from current to next
// is in the transition table.
func CanTransition(current, next string) bool {
	for _, s := range allowedTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// ValidateTransition is CanTransition with a descriptive error.
func ValidateTransition(current, next string) error {
	if !CanTransition(current, next) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidState, current, next)
	}
	return nil
}
