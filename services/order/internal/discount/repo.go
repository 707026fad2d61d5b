package discount

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrVersionConflict is returned by Save when the stored version moved on.
var ErrVersionConflict = errors.New("discount version conflict")

// DiscountRepo lists in catalog order: oldest first.
type DiscountRepo interface {
	Create(ctx context.Context, discount *Discount) error
	Get(ctx context.Context, id uuid.UUID) (*Discount, error)
	List(ctx context.Context, restaurantID uuid.UUID, filter Filter) ([]*Discount, error)
	Save(ctx context.Context, discount *Discount) error
	Delete(ctx context.Context, id uuid.UUID) error
}
