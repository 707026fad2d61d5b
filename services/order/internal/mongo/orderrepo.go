package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
	"github.com/appetiteclub/orderflow/services/order/internal/discount"
	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

type OrderRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	discounts  *mongo.Collection
}

func NewOrderRepo(client *mongo.Client, db *mongo.Database) *OrderRepo {
	return &OrderRepo{
		client:     client,
		collection: db.Collection(ordersCollection),
		discounts:  db.Collection(discountsCollection),
	}
}

func (r *OrderRepo) Create(ctx context.Context, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	if _, err := r.collection.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("cannot create order: %w", err)
	}

	return nil
}

// CreateWithDiscount needs a replica set: the usage increment and the insert
// run in one multi-document transaction.
func (r *OrderRepo) CreateWithDiscount(ctx context.Context, o *order.Order, discountID uuid.UUID) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("cannot start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		filter := bson.M{
			"_id": discountID,
			"$or": bson.A{
				bson.M{"usage_limit": nil},
				bson.M{"$expr": bson.M{"$lt": bson.A{"$current_usage", "$usage_limit"}}},
			},
		}
		update := bson.M{"$inc": bson.M{"current_usage": 1, "version": 1}}

		res, err := r.discounts.UpdateOne(sc, filter, update)
		if err != nil {
			return nil, fmt.Errorf("cannot reserve discount usage: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, discount.ErrExhausted
		}

		if _, err := r.collection.InsertOne(sc, o); err != nil {
			return nil, fmt.Errorf("cannot create order: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, discount.ErrExhausted) {
			return discount.ErrExhausted
		}
		return err
	}

	return nil
}

func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepo) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]*order.Order, error) {
	return r.find(ctx, restaurantFilter(restaurantID))
}

func (r *OrderRepo) ListByStatus(ctx context.Context, restaurantID uuid.UUID, status string) ([]*order.Order, error) {
	filter := restaurantFilter(restaurantID)
	filter["status"] = status
	return r.find(ctx, filter)
}

func (r *OrderRepo) ListActiveDineIn(ctx context.Context, restaurantID uuid.UUID, tableNumber string) ([]*order.Order, error) {
	filter := restaurantFilter(restaurantID)
	filter["order_type"] = order.TypeDineIn
	filter["status"] = bson.M{"$ne": orderstatus.Statuses.Completed.Name}
	if tableNumber != "" {
		filter["table_number"] = tableNumber
	}
	return r.find(ctx, filter)
}

// Save replaces the document only if nobody saved it since it was loaded.
func (r *OrderRepo) Save(ctx context.Context, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	prev := o.Version
	o.Version = prev + 1

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": o.ID, "version": prev}, o)
	if err != nil {
		o.Version = prev
		return fmt.Errorf("cannot update order: %w", err)
	}

	if result.MatchedCount == 0 {
		o.Version = prev
		return fmt.Errorf("order %s at version %d: %w", o.ID, prev, order.ErrVersionConflict)
	}

	return nil
}

func (r *OrderRepo) find(ctx context.Context, filter bson.M) ([]*order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	defer cursor.Close(ctx)

	result := []*order.Order{}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}

	return result, nil
}

func restaurantFilter(restaurantID uuid.UUID) bson.M {
	if restaurantID == uuid.Nil {
		return bson.M{}
	}
	return bson.M{"restaurant_id": restaurantID}
}
