package api

import (
	"context"
	"net/http"

	"tableside/internal/domain"
)

func (c *Client) Queue(ctx context.Context, branchID string) ([]domain.QueueItem, error) {
	var out []domain.QueueItem
	err := c.do(ctx, http.MethodGet, "/branches/"+escape(branchID)+"/queue", nil, nil, &out)
	return out, err
}

func (c *Client) Enqueue(ctx context.Context, in domain.QueueItemInput) (domain.QueueItem, error) {
	var q domain.QueueItem
	err := c.do(ctx, http.MethodPost, "/queue", nil, in, &q)
	return q, err
}

func (c *Client) UpdateQueueItem(ctx context.Context, id string, in domain.QueueItemInput) (domain.QueueItem, error) {
	var q domain.QueueItem
	err := c.do(ctx, http.MethodPut, "/queue/"+escape(id), nil, in, &q)
	return q, err
}

func (c *Client) DeleteQueueItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/queue/"+escape(id), nil, nil, nil)
}
