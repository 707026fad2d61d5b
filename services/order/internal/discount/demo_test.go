package discount

import (
	"context"
	"testing"

	"github.com/appetiteclub/apt"
)

func TestApplyDemoSeeds(t *testing.T) {
	repo := NewMockDiscountRepo()
	logger := apt.NewNoopLogger()

	if err := ApplyDemoSeeds(context.Background(), repo, testRestaurant, logger); err != nil {
		t.Fatalf("ApplyDemoSeeds() error = %v", err)
	}
	seeded, _ := repo.List(context.Background(), testRestaurant, Filter{})
	if len(seeded) != 3 {
		t.Fatalf("seeded %d discounts, want 3", len(seeded))
	}
	for _, d := range seeded {
		if problems := ValidateDiscount(context.Background(), d); len(problems) > 0 {
			t.Errorf("demo discount %q is invalid: %v", d.Name, problems)
		}
	}

	if err := ApplyDemoSeeds(context.Background(), repo, testRestaurant, logger); err != nil {
		t.Fatalf("second ApplyDemoSeeds() error = %v", err)
	}
	again, _ := repo.List(context.Background(), testRestaurant, Filter{})
	if len(again) != 3 {
		t.Errorf("reseeding created duplicates: %d discounts", len(again))
	}
}
