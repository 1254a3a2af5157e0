package api

import (
	"context"
	"net/http"

	"tableside/internal/domain"
)

func (c *Client) Tables(ctx context.Context, branchID string) ([]domain.Table, error) {
	var out []domain.Table
	err := c.do(ctx, http.MethodGet, "/branches/"+escape(branchID)+"/tables", nil, nil, &out)
	return out, err
}

func (c *Client) UpdateTableStatus(ctx context.Context, tableID string, status domain.TableStatus) (domain.Table, error) {
	var t domain.Table
	req := domain.UpdateTableStatusRequest{Status: status}
	err := c.do(ctx, http.MethodPut, "/tables/"+escape(tableID)+"/status", nil, req, &t)
	return t, err
}

func (c *Client) Menu(ctx context.Context, branchID string) ([]domain.MenuItem, error) {
	var out []domain.MenuItem
	err := c.do(ctx, http.MethodGet, "/branches/"+escape(branchID)+"/menu", nil, nil, &out)
	return out, err
}
