package discount

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

func ValidateDiscount(ctx context.Context, d *Discount) []string {
	var errors []string

	if d.RestaurantID == uuid.Nil {
		errors = append(errors, "restaurant_id is required")
	}

	if strings.TrimSpace(d.Name) == "" {
		errors = append(errors, "name is required")
	}

	switch d.Type {
	case TypePercentage:
		if d.Value <= 0 || d.Value > 100 {
			errors = append(errors, "percentage value must be between 0 and 100")
		}
	case TypeFixed:
		if d.Value <= 0 {
			errors = append(errors, "fixed value must be greater than 0")
		}
	default:
		errors = append(errors, "type must be percentage or fixed")
	}

	if d.MinOrderAmount < 0 {
		errors = append(errors, "min_order_amount cannot be negative")
	}

	if d.MaxDiscountAmount != nil && *d.MaxDiscountAmount <= 0 {
		errors = append(errors, "max_discount_amount must be greater than 0")
	}

	if d.UsageLimit != nil && *d.UsageLimit < 0 {
		errors = append(errors, "usage_limit cannot be negative")
	}

	if d.StartDate != nil && d.EndDate != nil && d.EndDate.Before(*d.StartDate) {
		errors = append(errors, "end_date must not be before start_date")
	}

	return errors
}
