package operations

import (
	"context"
	"fmt"
	"net/url"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/orderflow/services/operations/internal/orderstream"
)

// ClearTableResult mirrors the order service's clear table response.
type ClearTableResult struct {
	TableNumber string              `json:"table_number"`
	Orders      []orderstream.Order `json:"orders"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// OrderDataAccess centralizes decoding of order service responses. It calls
// the internal routes, which skip token verification.
type OrderDataAccess struct {
	client *apt.ServiceClient
}

func NewOrderDataAccess(client *apt.ServiceClient) *OrderDataAccess {
	return &OrderDataAccess{client: client}
}

// ListOrders returns every restaurant's orders. It is the authoritative
// source the order view refetches from.
func (da *OrderDataAccess) ListOrders(ctx context.Context) ([]orderstream.Order, error) {
	if da == nil || da.client == nil {
		return nil, fmt.Errorf("order client not configured")
	}

	resp, err := da.client.Request(ctx, "GET", "/internal/orders", nil)
	if err != nil {
		return nil, err
	}

	var orders []orderstream.Order
	if err := decodeSuccessResponse(resp, &orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func (da *OrderDataAccess) UpdateStatus(ctx context.Context, id, status string) (*orderstream.Order, error) {
	if da == nil || da.client == nil {
		return nil, fmt.Errorf("order client not configured")
	}
	if id == "" {
		return nil, fmt.Errorf("missing order id")
	}

	path := fmt.Sprintf("/internal/orders/%s/status", url.PathEscape(id))
	resp, err := da.client.Request(ctx, "PATCH", path, statusRequest{Status: status})
	if err != nil {
		return nil, err
	}

	var order orderstream.Order
	if err := decodeSuccessResponse(resp, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

func (da *OrderDataAccess) ClearTable(ctx context.Context, restaurantID, table string) (*ClearTableResult, error) {
	if da == nil || da.client == nil {
		return nil, fmt.Errorf("order client not configured")
	}
	if restaurantID == "" || table == "" {
		return nil, fmt.Errorf("missing restaurant or table")
	}

	path := fmt.Sprintf("/internal/restaurants/%s/tables/%s/clear", url.PathEscape(restaurantID), url.PathEscape(table))
	resp, err := da.client.Request(ctx, "POST", path, nil)
	if err != nil {
		return nil, err
	}

	var result ClearTableResult
	if err := decodeSuccessResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}
