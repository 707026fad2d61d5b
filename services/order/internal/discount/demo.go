package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// DemoSeedingFunc returns a lifecycle start hook that seeds the demo catalog.
func DemoSeedingFunc(ctx context.Context, repo DiscountRepo, restaurantID uuid.UUID, logger apt.Logger) func(context.Context) error {
	return func(context.Context) error {
		go func() {
			if err := ApplyDemoSeeds(ctx, repo, restaurantID, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("demo discount seeding failed", "error", err)
			}
		}()
		return nil
	}
}

// ApplyDemoSeeds creates the demo discounts unless the restaurant already has any.
func ApplyDemoSeeds(ctx context.Context, repo DiscountRepo, restaurantID uuid.UUID, logger apt.Logger) error {
	existing, err := repo.List(ctx, restaurantID, Filter{})
	if err != nil {
		return fmt.Errorf("list discounts: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("Demo discounts already present, skipping", "restaurant_id", restaurantID.String())
		return nil
	}

	for _, d := range demoDiscounts(restaurantID, time.Now().UTC()) {
		d.BeforeCreate()
		if err := repo.Create(ctx, d); err != nil {
			return fmt.Errorf("create discount %s: %w", d.Name, err)
		}
	}

	logger.Info("Demo discounts applied", "restaurant_id", restaurantID.String())
	return nil
}

func demoDiscounts(restaurantID uuid.UUID, now time.Time) []*Discount {
	lunchCap := 30.0
	launchLimit := 50
	weekEnd := now.Add(7 * 24 * time.Hour)

	return []*Discount{
		{
			RestaurantID:      restaurantID,
			Name:              "Lunch 10",
			Description:       "10% off orders above 200",
			Type:              TypePercentage,
			Value:             10,
			MinOrderAmount:    200,
			MaxDiscountAmount: &lunchCap,
			Active:            true,
		},
		{
			RestaurantID: restaurantID,
			Name:         "Scan and save",
			Description:  "Flat 50 off when ordering from the table QR code",
			Type:         TypeFixed,
			Value:        50,
			QRExclusive:  true,
			UsageLimit:   &launchLimit,
			EndDate:      &weekEnd,
			Active:       true,
			Banner:       &Banner{Headline: "Scan & save 50", Color: "#e85d04"},
		},
		{
			RestaurantID:         restaurantID,
			Name:                 "Dessert hour",
			Type:                 TypePercentage,
			Value:                20,
			ApplicableCategories: []string{"desserts"},
			Active:               true,
		},
	}
}
