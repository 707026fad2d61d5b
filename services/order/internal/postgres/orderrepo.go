package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
	"github.com/appetiteclub/orderflow/services/order/internal/discount"
	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

const insertOrder = `
INSERT INTO orders (id, restaurant_id, order_type, table_number, status, version, created_at, updated_at, data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// reserveUsage takes one unit of a discount unless its limit is reached.
const reserveUsage = `
UPDATE discounts
SET current_usage = current_usage + 1, version = version + 1
WHERE id = $1 AND (usage_limit IS NULL OR current_usage < usage_limit)`

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func (r *OrderRepo) Create(ctx context.Context, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, insertOrder, args...); err != nil {
		return fmt.Errorf("cannot create order: %w", err)
	}
	return nil
}

func (r *OrderRepo) CreateWithDiscount(ctx context.Context, o *order.Order, discountID uuid.UUID) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	args, err := orderArgs(o)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, reserveUsage, discountID)
		if err != nil {
			return fmt.Errorf("cannot reserve discount usage: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return discount.ErrExhausted
		}

		if _, err := tx.Exec(ctx, insertOrder, args...); err != nil {
			return fmt.Errorf("cannot create order: %w", err)
		}
		return nil
	})
}

func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var data []byte
	var version int64
	err := r.pool.QueryRow(ctx, `SELECT data, version FROM orders WHERE id = $1`, id).Scan(&data, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get order: %w", err)
	}

	o, err := decodeOrder(data, version)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepo) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]*order.Order, error) {
	where, args := restaurantClause(restaurantID)
	return r.query(ctx, `SELECT data, version FROM orders WHERE `+where+` ORDER BY created_at`, args...)
}

func (r *OrderRepo) ListByStatus(ctx context.Context, restaurantID uuid.UUID, status string) ([]*order.Order, error) {
	where, args := restaurantClause(restaurantID)
	args = append(args, status)
	return r.query(ctx, fmt.Sprintf(`SELECT data, version FROM orders WHERE %s AND status = $%d ORDER BY created_at`, where, len(args)), args...)
}

func (r *OrderRepo) ListActiveDineIn(ctx context.Context, restaurantID uuid.UUID, tableNumber string) ([]*order.Order, error) {
	where, args := restaurantClause(restaurantID)
	args = append(args, string(order.TypeDineIn), orderstatus.Statuses.Completed.Name)
	sql := fmt.Sprintf(`SELECT data, version FROM orders WHERE %s AND order_type = $%d AND status <> $%d`, where, len(args)-1, len(args))
	if tableNumber != "" {
		args = append(args, tableNumber)
		sql += fmt.Sprintf(` AND table_number = $%d`, len(args))
	}
	return r.query(ctx, sql+` ORDER BY created_at`, args...)
}

func (r *OrderRepo) Save(ctx context.Context, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	prev := o.Version
	o.Version = prev + 1

	data, err := json.Marshal(o)
	if err != nil {
		o.Version = prev
		return fmt.Errorf("cannot encode order: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $1, table_number = $2, version = version + 1, updated_at = $3, data = $4
		WHERE id = $5 AND version = $6`,
		o.Status, o.TableNumber, o.UpdatedAt, data, o.ID, prev)
	if err != nil {
		o.Version = prev
		return fmt.Errorf("cannot update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		o.Version = prev
		return fmt.Errorf("order %s at version %d: %w", o.ID, prev, order.ErrVersionConflict)
	}
	return nil
}

func (r *OrderRepo) query(ctx context.Context, sql string, args ...any) ([]*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	defer rows.Close()

	result := []*order.Order{}
	for rows.Next() {
		var data []byte
		var version int64
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("cannot scan order: %w", err)
		}
		o, err := decodeOrder(data, version)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	return result, nil
}

// restaurantClause matches every restaurant for a nil id.
func restaurantClause(restaurantID uuid.UUID) (string, []any) {
	if restaurantID == uuid.Nil {
		return "TRUE", nil
	}
	return "restaurant_id = $1", []any{restaurantID}
}

func orderArgs(o *order.Order) ([]any, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("cannot encode order: %w", err)
	}
	return []any{o.ID, o.RestaurantID, string(o.OrderType), o.TableNumber, o.Status, o.Version, o.CreatedAt, o.UpdatedAt, data}, nil
}

// decodeOrder trusts the version column over the one inside the document.
func decodeOrder(data []byte, version int64) (*order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("cannot decode order: %w", err)
	}
	o.Version = version
	return &o, nil
}
