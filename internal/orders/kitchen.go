package orders

import (
	"context"
	"errors"
	"fmt"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
)

var ErrUnknownOrder = errors.New("order not in view")

var openStatuses = []domain.OrderStatus{domain.OrderPending, domain.OrderPreparing, domain.OrderServed}

// OpenStatuses returns the statuses of orders still being worked on.
func OpenStatuses() []domain.OrderStatus { return append([]domain.OrderStatus(nil), openStatuses...) }

// Store is the part of the storage service the kitchen needs.
type Store interface {
	OrdersByBranch(ctx context.Context, branchID string, statuses ...domain.OrderStatus) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, req domain.UpdateOrderStatusRequest) (domain.Order, error)
	UpdateLineStatus(ctx context.Context, id string, line int, req domain.UpdateLineStatusRequest) (domain.Order, error)
}

// Kitchen drives orders through preparation and payment. Every action is
// checked locally first, sent to the store, and only the stored result is
// applied to the book.
type Kitchen struct {
	store Store
	book  *Book
	actor string
	log   *logger.Logger
}

func NewKitchen(store Store, book *Book, actor string, lg *logger.Logger) *Kitchen {
	if lg == nil {
		lg = logger.Nop()
	}
	return &Kitchen{store: store, book: book, actor: actor, log: lg.With("kitchen")}
}

// Load fetches the branch's open orders into the book.
func (k *Kitchen) Load(ctx context.Context, branchID string) error {
	list, err := k.store.OrdersByBranch(ctx, branchID, openStatuses...)
	if err != nil {
		return fmt.Errorf("loading orders for branch %s: %w", branchID, err)
	}
	k.book.Replace(list, openStatuses...)
	k.log.Info("orders_loaded", map[string]any{"branch_id": branchID, "count": len(list)})
	return nil
}

func (k *Kitchen) StartPreparing(ctx context.Context, id string) (domain.Order, error) {
	return k.advanceStatus(ctx, id, Prepare)
}

func (k *Kitchen) MarkServed(ctx context.Context, id string) (domain.Order, error) {
	return k.advanceStatus(ctx, id, Serve)
}

func (k *Kitchen) MarkPaid(ctx context.Context, id string) (domain.Order, error) {
	return k.advanceStatus(ctx, id, Pay)
}

// MarkLineServed serves one line; the store promotes the order once every
// line is served.
func (k *Kitchen) MarkLineServed(ctx context.Context, id string, line int) (domain.Order, error) {
	cur, ok := k.book.Get(id)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if _, changed, err := Advance(cur, Event{Action: ServeLine, Line: line}); err != nil || !changed {
		return cur, err
	}
	stored, err := k.store.UpdateLineStatus(ctx, id, line, domain.UpdateLineStatusRequest{
		Status:    domain.OrderServed,
		ChangedBy: k.actor,
	})
	if err != nil {
		k.log.Error("line_update_failed", err, map[string]any{"order_id": id, "line": line})
		return cur, err
	}
	k.book.Apply(stored)
	k.log.Info("line_served", map[string]any{"order_id": id, "line": line, "status": stored.Status})
	return stored, nil
}

func (k *Kitchen) advanceStatus(ctx context.Context, id string, action Action) (domain.Order, error) {
	cur, ok := k.book.Get(id)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if _, changed, err := Advance(cur, Event{Action: action}); err != nil || !changed {
		return cur, err
	}
	stored, err := k.store.UpdateOrderStatus(ctx, id, domain.UpdateOrderStatusRequest{
		Status:    action.Target(),
		ChangedBy: k.actor,
	})
	if err != nil {
		k.log.Error("order_update_failed", err, map[string]any{"order_id": id, "status": action.Target()})
		return cur, err
	}
	k.book.Apply(stored)
	k.log.Info("order_status_updated", map[string]any{
		"order_id":   id,
		"old_status": cur.Status,
		"new_status": stored.Status,
	})
	return stored, nil
}
