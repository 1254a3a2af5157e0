package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/orders"
	"tableside/internal/realtime"
)

var ErrSessionClosed = errors.New("session no longer accepts orders")

// Gate says whether a session still takes orders; *sessions.Machine
// implements it.
type Gate interface {
	Accepting(sessionID string) bool
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error)
}

// OrderRooms joins order rooms; *realtime.Rooms implements it.
type OrderRooms interface {
	JoinOrderRoom(ctx context.Context, id string) (*realtime.Membership, error)
}

// Pipeline turns the cart into orders for one session.
type Pipeline struct {
	cart    *Cart
	session domain.Session
	gate    Gate
	store   OrderCreator
	rooms   OrderRooms
	book    *orders.Book
	log     *logger.Logger

	mu      sync.Mutex
	history []domain.Order
	follows []*realtime.Membership
}

// NewPipeline builds a submission pipeline. rooms may be nil, in which
// case submitted orders are not followed for status changes.
func NewPipeline(c *Cart, session domain.Session, gate Gate, store OrderCreator, rooms OrderRooms, lg *logger.Logger) *Pipeline {
	if lg == nil {
		lg = logger.Nop()
	}
	return &Pipeline{
		cart:    c,
		session: session,
		gate:    gate,
		store:   store,
		rooms:   rooms,
		book:    orders.NewBook(lg),
		log:     lg.With("cart"),
	}
}

// Submit places the cart as one order. The cart is cleared and the order
// added to the history only once the store has accepted it; on any error
// the cart is left as it was.
func (p *Pipeline) Submit(ctx context.Context) (domain.Order, error) {
	if !p.gate.Accepting(p.session.ID) {
		return domain.Order{}, ErrSessionClosed
	}
	items := p.cart.Items()
	if len(items) == 0 {
		return domain.Order{}, ErrEmptyCart
	}
	clientID, name := p.cart.Identity()

	req := domain.CreateOrderRequest{
		SessionID:   p.session.ID,
		BranchID:    p.session.Branch.ID(),
		TableID:     p.session.Table.ID(),
		ClientID:    clientID,
		DisplayName: name,
		Total:       p.cart.Total(),
	}
	for _, it := range items {
		req.Lines = append(req.Lines, domain.OrderLineInput{
			MenuItemID: it.MenuItem.ID,
			Name:       it.MenuItem.Name,
			UnitPrice:  it.MenuItem.Price,
			Quantity:   it.Quantity,
			Note:       it.Note,
		})
	}

	order, err := p.store.CreateOrder(ctx, req)
	if err != nil {
		p.log.Error("order_submit_failed", err, map[string]any{"session_id": p.session.ID, "items": len(items)})
		return domain.Order{}, fmt.Errorf("submitting order: %w", err)
	}

	if err := p.cart.Clear(); err != nil {
		p.log.Warn("cart_clear_failed", err, map[string]any{"order_id": order.ID})
	}
	p.book.Apply(order)
	p.mu.Lock()
	p.history = append([]domain.Order{order}, p.history...)
	p.mu.Unlock()
	p.follow(ctx, order.ID)

	p.log.Info("order_submitted", map[string]any{"order_id": order.ID, "session_id": p.session.ID, "total": order.Total})
	return order, nil
}

// History returns the orders placed from this device, newest first, with
// their latest known status.
func (p *Pipeline) History() []domain.Order {
	p.mu.Lock()
	out := append([]domain.Order(nil), p.history...)
	p.mu.Unlock()
	for i, o := range out {
		if cur, ok := p.book.Get(o.ID); ok {
			out[i] = cur
		}
	}
	return out
}

// Close stops following submitted orders.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	follows := p.follows
	p.follows = nil
	p.mu.Unlock()
	var errs []error
	for _, ms := range follows {
		if err := ms.Leave(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) follow(ctx context.Context, orderID string) {
	if p.rooms == nil {
		return
	}
	ms, err := p.rooms.JoinOrderRoom(ctx, orderID)
	if err != nil {
		p.log.Warn("order_room_join_failed", err, map[string]any{"order_id": orderID})
		return
	}
	p.book.Subscribe(ms)
	p.mu.Lock()
	p.follows = append(p.follows, ms)
	p.mu.Unlock()
}
