package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/appetiteclub/orderflow/services/order/internal/discount"
)

type DiscountRepo struct {
	collection *mongo.Collection
}

func NewDiscountRepo(db *mongo.Database) *DiscountRepo {
	return &DiscountRepo{
		collection: db.Collection(discountsCollection),
	}
}

func (r *DiscountRepo) Create(ctx context.Context, d *discount.Discount) error {
	if d == nil {
		return fmt.Errorf("discount is nil")
	}

	if _, err := r.collection.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("cannot create discount: %w", err)
	}

	return nil
}

func (r *DiscountRepo) Get(ctx context.Context, id uuid.UUID) (*discount.Discount, error) {
	var d discount.Discount
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get discount: %w", err)
	}
	return &d, nil
}

func (r *DiscountRepo) List(ctx context.Context, restaurantID uuid.UUID, filter discount.Filter) ([]*discount.Discount, error) {
	query := bson.M{"restaurant_id": restaurantID}
	if filter.ActiveOnly {
		query["active"] = true
	}
	if filter.Channel != "" && filter.Channel != discount.ChannelQR {
		query["qr_exclusive"] = false
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot list discounts: %w", err)
	}
	defer cursor.Close(ctx)

	result := []*discount.Discount{}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode discounts: %w", err)
	}

	return result, nil
}

func (r *DiscountRepo) Save(ctx context.Context, d *discount.Discount) error {
	if d == nil {
		return fmt.Errorf("discount is nil")
	}

	prev := d.Version
	d.Version = prev + 1

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": d.ID, "version": prev}, d)
	if err != nil {
		d.Version = prev
		return fmt.Errorf("cannot update discount: %w", err)
	}

	if result.MatchedCount == 0 {
		d.Version = prev
		return discount.ErrVersionConflict
	}

	return nil
}

func (r *DiscountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("cannot delete discount: %w", err)
	}

	if result.DeletedCount == 0 {
		return fmt.Errorf("discount not found")
	}

	return nil
}
