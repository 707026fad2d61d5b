package order

import (
	"fmt"
	"time"

	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
)

var statuses = orderstatus.Statuses

// progression lists the guarded next steps per order type. Completion from
// any other state goes through ForceComplete.
var progression = map[OrderType]map[string][]string{
	TypeDineIn: {
		statuses.Pending.Name:   {statuses.Preparing.Name},
		statuses.Preparing.Name: {statuses.Completed.Name},
	},
	TypeTakeaway: {
		statuses.Pending.Name:   {statuses.Preparing.Name},
		statuses.Preparing.Name: {statuses.Completed.Name},
	},
	TypeDelivery: {
		statuses.Pending.Name:        {statuses.Preparing.Name},
		statuses.Preparing.Name:      {statuses.OutForDelivery.Name},
		statuses.OutForDelivery.Name: {statuses.Delivered.Name},
		statuses.Delivered.Name:      {statuses.Completed.Name},
	},
}

// CanAdvance reports whether to is a normal next step for the order.
func (o *Order) CanAdvance(to orderstatus.Status) bool {
	for _, next := range progression[o.OrderType][o.Status] {
		if next == to.Name {
			return true
		}
	}
	return false
}

// Advance moves the order one step along its normal progression.
func (o *Order) Advance(to orderstatus.Status, now time.Time) error {
	if !o.CanAdvance(to) {
		return fmt.Errorf("%w: %s order cannot go from %s to %s", ErrInvalidTransition, o.OrderType, o.Status, to.Name)
	}
	o.SetStatus(to, now)
	return nil
}

// SetStatus overwrites the status with no check against the prior one.
func (o *Order) SetStatus(to orderstatus.Status, now time.Time) {
	o.Status = to.Name
	if to.Name == statuses.Completed.Name {
		if o.CompletedAt == nil {
			t := now
			o.CompletedAt = &t
		}
	} else {
		o.CompletedAt = nil
	}
	o.BeforeUpdate(now)
}

// ForceComplete is the administrative override used by clear-table and
// clear-order. It is legal from every status.
func (o *Order) ForceComplete(now time.Time) {
	o.SetStatus(statuses.Completed, now)
}
