package orders

import (
	"sort"
	"sync"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/realtime"
)

// Book is a local view of orders that reconciles fetched snapshots with
// pushed events. Status only moves forward; paid orders are frozen.
type Book struct {
	log *logger.Logger

	mu       sync.Mutex
	orders   map[string]domain.Order
	watchers []func(domain.Order)
}

func NewBook(lg *logger.Logger) *Book {
	if lg == nil {
		lg = logger.Nop()
	}
	return &Book{log: lg.With("orders"), orders: make(map[string]domain.Order)}
}

// OnChange registers fn to run after every change to an order.
func (b *Book) OnChange(fn func(domain.Order)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, fn)
}

// Subscribe feeds newOrder, orderStatusChanged and paymentStatusChanged
// events from s into the book.
func (b *Book) Subscribe(s realtime.Subscriber) []*realtime.Subscription {
	apply := realtime.Decoded(b.log, func(o domain.Order) { b.Apply(o) })
	return []*realtime.Subscription{
		s.On(domain.EventNewOrder, apply),
		s.On(domain.EventOrderStatusChanged, apply),
		s.On(domain.EventPaymentStatusChanged, realtime.Decoded(b.log, func(p domain.Payment) { b.ApplyPayment(p) })),
	}
}

// Load merges a fetched snapshot into the book.
func (b *Book) Load(orders []domain.Order) {
	for _, o := range orders {
		b.Apply(o)
	}
}

// Replace reloads the orders in the given statuses from a fresh snapshot
// fetched with the same filter. Orders the book holds in one of those
// statuses but the snapshot lacks have moved on while unobserved (paid,
// for instance) and are dropped; the rest of the book is kept.
func (b *Book) Replace(snapshot []domain.Order, statuses ...domain.OrderStatus) {
	fresh := make(map[string]bool, len(snapshot))
	for _, o := range snapshot {
		fresh[o.ID] = true
	}
	b.mu.Lock()
	var dropped []string
	for id, o := range b.orders {
		if !fresh[id] && hasStatus(statuses, o.Status) {
			delete(b.orders, id)
			dropped = append(dropped, id)
		}
	}
	b.mu.Unlock()
	if len(dropped) > 0 {
		b.log.Debug("orders_dropped", map[string]any{"order_ids": dropped})
	}
	b.Load(snapshot)
}

// Apply merges one order and reports whether the view changed. Stale and
// duplicate deliveries are ignored.
func (b *Book) Apply(in domain.Order) bool {
	b.mu.Lock()
	cur, ok := b.orders[in.ID]
	next, changed := in.Clone(), true
	if ok {
		next, changed = reconcile(cur, in)
	}
	if changed {
		b.orders[in.ID] = next
	}
	watchers := b.watchers
	b.mu.Unlock()

	if !changed {
		b.log.Debug("order_event_ignored", map[string]any{"order_id": in.ID, "status": in.Status})
		return false
	}
	for _, fn := range watchers {
		fn(next)
	}
	return true
}

// ApplyPayment closes the orders a settled payment covers: the named order,
// or every order of the session when no order is named.
func (b *Book) ApplyPayment(p domain.Payment) []string {
	if p.Status != domain.PaymentPaid {
		return nil
	}
	b.mu.Lock()
	var closed []domain.Order
	for id, o := range b.orders {
		if p.OrderID != "" && id != p.OrderID {
			continue
		}
		if p.OrderID == "" && o.SessionID != p.SessionID {
			continue
		}
		next, changed, err := Advance(o, Event{Action: Pay})
		if err != nil || !changed {
			continue
		}
		b.orders[id] = next
		closed = append(closed, next)
	}
	watchers := b.watchers
	b.mu.Unlock()

	ids := make([]string, 0, len(closed))
	for _, o := range closed {
		ids = append(ids, o.ID)
		for _, fn := range watchers {
			fn(o)
		}
	}
	sort.Strings(ids)
	return ids
}

func (b *Book) Get(id string) (domain.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return o.Clone(), true
}

// List returns orders oldest first, optionally filtered by status.
func (b *Book) List(statuses ...domain.OrderStatus) []domain.Order {
	b.mu.Lock()
	out := make([]domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		if len(statuses) > 0 && !hasStatus(statuses, o.Status) {
			continue
		}
		out = append(out, o.Clone())
	}
	b.mu.Unlock()
	sortOrders(out)
	return out
}

// BySession returns the session's orders, newest first.
func (b *Book) BySession(sessionID string) []domain.Order {
	b.mu.Lock()
	var out []domain.Order
	for _, o := range b.orders {
		if o.SessionID == sessionID {
			out = append(out, o.Clone())
		}
	}
	b.mu.Unlock()
	sortOrders(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func sortOrders(out []domain.Order) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

func hasStatus(list []domain.OrderStatus, s domain.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// reconcile merges an incoming copy into the current one. The incoming
// copy wins unless it is behind; line statuses never move backwards.
func reconcile(cur, in domain.Order) (domain.Order, bool) {
	if cur.Status.Terminal() || in.Status.Before(cur.Status) {
		return cur, false
	}
	next := in.Clone()
	if len(next.Lines) == len(cur.Lines) {
		for i := range next.Lines {
			if next.Lines[i].Status.Before(cur.Lines[i].Status) {
				next.Lines[i].Status = cur.Lines[i].Status
			}
		}
	}
	if sameProgress(cur, next) {
		return cur, false
	}
	return next, true
}

func sameProgress(a, b domain.Order) bool {
	if a.Status != b.Status || len(a.Lines) != len(b.Lines) {
		return false
	}
	for i := range a.Lines {
		if a.Lines[i].Status != b.Lines[i].Status {
			return false
		}
	}
	return true
}
