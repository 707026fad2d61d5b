package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appetiteclub/orderflow/services/order/internal/discount"
)

type DiscountRepo struct {
	pool *pgxpool.Pool
}

func NewDiscountRepo(pool *pgxpool.Pool) *DiscountRepo {
	return &DiscountRepo{pool: pool}
}

func (r *DiscountRepo) Create(ctx context.Context, d *discount.Discount) error {
	if d == nil {
		return fmt.Errorf("discount is nil")
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("cannot encode discount: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO discounts (id, restaurant_id, active, qr_exclusive, usage_limit, current_usage, version, created_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.RestaurantID, d.Active, d.QRExclusive, d.UsageLimit, d.CurrentUsage, d.Version, d.CreatedAt, data)
	if err != nil {
		return fmt.Errorf("cannot create discount: %w", err)
	}
	return nil
}

func (r *DiscountRepo) Get(ctx context.Context, id uuid.UUID) (*discount.Discount, error) {
	row := r.pool.QueryRow(ctx, `SELECT data, current_usage, version FROM discounts WHERE id = $1`, id)

	d, err := scanDiscount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get discount: %w", err)
	}
	return d, nil
}

func (r *DiscountRepo) List(ctx context.Context, restaurantID uuid.UUID, filter discount.Filter) ([]*discount.Discount, error) {
	sql := `SELECT data, current_usage, version FROM discounts WHERE restaurant_id = $1`
	if filter.ActiveOnly {
		sql += ` AND active`
	}
	if filter.Channel != "" && filter.Channel != discount.ChannelQR {
		sql += ` AND NOT qr_exclusive`
	}
	sql += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, sql, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("cannot list discounts: %w", err)
	}
	defer rows.Close()

	result := []*discount.Discount{}
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, fmt.Errorf("cannot scan discount: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cannot list discounts: %w", err)
	}
	return result, nil
}

// Save never writes current_usage. Usage only moves through checkout.
func (r *DiscountRepo) Save(ctx context.Context, d *discount.Discount) error {
	if d == nil {
		return fmt.Errorf("discount is nil")
	}

	prev := d.Version
	d.Version = prev + 1

	data, err := json.Marshal(d)
	if err != nil {
		d.Version = prev
		return fmt.Errorf("cannot encode discount: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE discounts SET active = $1, qr_exclusive = $2, usage_limit = $3, version = version + 1, data = $4
		WHERE id = $5 AND version = $6`,
		d.Active, d.QRExclusive, d.UsageLimit, data, d.ID, prev)
	if err != nil {
		d.Version = prev
		return fmt.Errorf("cannot update discount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		d.Version = prev
		return discount.ErrVersionConflict
	}
	return nil
}

func (r *DiscountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM discounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("cannot delete discount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("discount not found")
	}
	return nil
}

// scanDiscount overlays the counter columns, which checkout updates without
// touching the document.
func scanDiscount(row pgx.Row) (*discount.Discount, error) {
	var data []byte
	var usage int
	var version int64
	if err := row.Scan(&data, &usage, &version); err != nil {
		return nil, err
	}

	var d discount.Discount
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("cannot decode discount: %w", err)
	}
	d.CurrentUsage = usage
	d.Version = version
	return &d, nil
}
