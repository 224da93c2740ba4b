package orders

import (
	"fmt"

	"quickeats/gorest/models"
)

// allowedTransitions lists, per status, the statuses an admin may move an order
// to. Statuses missing from the map are terminal.
var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:   {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing: {models.StatusOnTheWay, models.StatusCancelled},
	models.StatusOnTheWay:  {models.StatusDelivered},
}

// NextStatuses returns the statuses reachable from current in one step.
func NextStatuses(current models.OrderStatus) []models.OrderStatus {
	return append([]models.OrderStatus(nil), allowedTransitions[current]...)
}

func validateTransition(current, next models.OrderStatus) error {
	allowed, ok := allowedTransitions[current]
	if !ok {
		return fmt.Errorf("order is %s: %w", current, models.ErrInvalidTransition)
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("cannot move from %s to %s: %w", current, next, models.ErrInvalidTransition)
}

// cancellable is narrower than the transition table on purpose: only orders
// that have not left the kitchen can be withdrawn by their owner.
func cancellable(s models.OrderStatus) bool {
	return s == models.StatusPending || s == models.StatusPreparing
}
