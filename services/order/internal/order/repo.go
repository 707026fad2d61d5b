package order

import (
	"context"

	"github.com/google/uuid"
)

// OrderRepo is the Order Store. Get returns nil, nil for unknown ids. Save
// succeeds only when the stored version equals order.Version and bumps it.
// A nil restaurantID in the list methods matches every restaurant.
type OrderRepo interface {
	Create(ctx context.Context, order *Order) error
	// CreateWithDiscount persists the order and takes one usage unit of
	// discountID in a single transaction. It returns discount.ErrExhausted
	// and stores nothing when no unit is left.
	CreateWithDiscount(ctx context.Context, order *Order, discountID uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]*Order, error)
	ListByStatus(ctx context.Context, restaurantID uuid.UUID, status string) ([]*Order, error)
	// ListActiveDineIn returns non-completed dine-in orders. An empty
	// tableNumber matches every table.
	ListActiveDineIn(ctx context.Context, restaurantID uuid.UUID, tableNumber string) ([]*Order, error)
	Save(ctx context.Context, order *Order) error
}
