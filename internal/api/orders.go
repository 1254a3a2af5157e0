package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"tableside/internal/domain"
)

func (c *Client) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	var o domain.Order
	err := c.do(ctx, http.MethodPost, "/orders", nil, req, &o)
	return o, err
}

func (c *Client) Order(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := c.do(ctx, http.MethodGet, "/orders/"+escape(id), nil, nil, &o)
	return o, err
}

func (c *Client) OrdersBySession(ctx context.Context, sessionID string) ([]domain.Order, error) {
	var out []domain.Order
	err := c.do(ctx, http.MethodGet, "/sessions/"+escape(sessionID)+"/orders", nil, nil, &out)
	return out, err
}

func (c *Client) OrdersByTable(ctx context.Context, tableID string) ([]domain.Order, error) {
	var out []domain.Order
	err := c.do(ctx, http.MethodGet, "/tables/"+escape(tableID)+"/orders", nil, nil, &out)
	return out, err
}

// OrdersByBranch lists a branch's orders, optionally only those in the
// given statuses.
func (c *Client) OrdersByBranch(ctx context.Context, branchID string, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	var q url.Values
	if len(statuses) > 0 {
		q = url.Values{}
		for _, s := range statuses {
			q.Add("status", string(s))
		}
	}
	var out []domain.Order
	err := c.do(ctx, http.MethodGet, "/branches/"+escape(branchID)+"/orders", q, nil, &out)
	return out, err
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id string, req domain.UpdateOrderStatusRequest) (domain.Order, error) {
	var o domain.Order
	err := c.do(ctx, http.MethodPut, "/orders/"+escape(id)+"/status", nil, req, &o)
	return o, err
}

func (c *Client) UpdateLineStatus(ctx context.Context, id string, line int, req domain.UpdateLineStatusRequest) (domain.Order, error) {
	var o domain.Order
	path := "/orders/" + escape(id) + "/lines/" + strconv.Itoa(line) + "/status"
	err := c.do(ctx, http.MethodPut, path, nil, req, &o)
	return o, err
}

func (c *Client) Timeline(ctx context.Context, id string, limit, offset int) ([]domain.StatusLogEntry, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var resp struct {
		OrderID string                  `json:"orderId"`
		Events  []domain.StatusLogEntry `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, "/orders/"+escape(id)+"/timeline", q, nil, &resp)
	return resp.Events, err
}
