package api

import (
	"context"
	"net/http"

	"tableside/internal/domain"
)

func (c *Client) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, http.MethodPost, "/sessions", nil, req, &s)
	return s, err
}

func (c *Client) JoinSession(ctx context.Context, req domain.JoinSessionRequest) (domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, http.MethodPost, "/sessions/join", nil, req, &s)
	return s, err
}

func (c *Client) Session(ctx context.Context, id string) (domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, http.MethodGet, "/sessions/"+escape(id), nil, nil, &s)
	return s, err
}

func (c *Client) SessionByCode(ctx context.Context, code string) (domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, http.MethodGet, "/sessions/code/"+escape(code), nil, nil, &s)
	return s, err
}

// ActiveSession returns the open session at a table; a table without one
// yields an *Error with status 404.
func (c *Client) ActiveSession(ctx context.Context, tableID string) (domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, http.MethodGet, "/tables/"+escape(tableID)+"/session", nil, nil, &s)
	return s, err
}

func (c *Client) Checkout(ctx context.Context, sessionID string) (domain.Session, error) {
	var s domain.Session
	err := c.do(ctx, http.MethodPost, "/sessions/"+escape(sessionID)+"/checkout", nil, nil, &s)
	return s, err
}
