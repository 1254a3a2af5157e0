package orders

import (
	"context"
	"errors"
	"testing"

	"tableside/internal/domain"
)

// memStore applies the same transitions the storage service does.
type memStore struct {
	orders map[string]domain.Order
	fail   error
	calls  int
}

func newMemStore(list ...domain.Order) *memStore {
	s := &memStore{orders: make(map[string]domain.Order)}
	for _, o := range list {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) OrdersByBranch(_ context.Context, _ string, _ ...domain.OrderStatus) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out, nil
}

func (s *memStore) UpdateOrderStatus(_ context.Context, id string, req domain.UpdateOrderStatusRequest) (domain.Order, error) {
	s.calls++
	if s.fail != nil {
		return domain.Order{}, s.fail
	}
	action, err := ActionFor(req.Status)
	if err != nil {
		return domain.Order{}, err
	}
	next, _, err := Advance(s.orders[id], Event{Action: action})
	if err != nil {
		return domain.Order{}, err
	}
	s.orders[id] = next
	return next, nil
}

func (s *memStore) UpdateLineStatus(_ context.Context, id string, line int, _ domain.UpdateLineStatusRequest) (domain.Order, error) {
	s.calls++
	if s.fail != nil {
		return domain.Order{}, s.fail
	}
	next, _, err := Advance(s.orders[id], Event{Action: ServeLine, Line: line})
	if err != nil {
		return domain.Order{}, err
	}
	s.orders[id] = next
	return next, nil
}

func newKitchen(t *testing.T, list ...domain.Order) (*Kitchen, *memStore, *Book) {
	t.Helper()
	store := newMemStore(list...)
	book := NewBook(nil)
	k := NewKitchen(store, book, "kitchen-1", nil)
	if err := k.Load(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}
	return k, store, book
}

func TestKitchenFlow(t *testing.T) {
	ctx := context.Background()
	k, _, book := newKitchen(t, order(domain.OrderPending, domain.OrderPending, domain.OrderPending))

	if _, err := k.StartPreparing(ctx, "o1"); err != nil {
		t.Fatal(err)
	}
	o, err := k.MarkLineServed(ctx, "o1", 0)
	if err != nil || o.Status != domain.OrderPreparing {
		t.Fatalf("after first line: %s, %v", o.Status, err)
	}
	o, err = k.MarkLineServed(ctx, "o1", 1)
	if err != nil || o.Status != domain.OrderServed {
		t.Fatalf("after last line: %s, %v", o.Status, err)
	}
	if _, err := k.MarkPaid(ctx, "o1"); err != nil {
		t.Fatal(err)
	}
	if got, _ := book.Get("o1"); got.Status != domain.OrderPaid {
		t.Fatalf("book status = %s", got.Status)
	}
}

func TestKitchenFailureLeavesBookUnchanged(t *testing.T) {
	k, store, book := newKitchen(t, order(domain.OrderPending, domain.OrderPending))
	store.fail = errors.New("storage unavailable")

	if _, err := k.StartPreparing(context.Background(), "o1"); err == nil {
		t.Fatal("expected error")
	}
	if got, _ := book.Get("o1"); got.Status != domain.OrderPending {
		t.Fatalf("book status = %s after failed update", got.Status)
	}
}

func TestKitchenRejectsLocallyInvalid(t *testing.T) {
	k, store, _ := newKitchen(t, order(domain.OrderPaid, domain.OrderPaid))

	if _, err := k.MarkServed(context.Background(), "o1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v", err)
	}
	if _, err := k.MarkPaid(context.Background(), "o1"); err != nil {
		t.Fatalf("paying a paid order: %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("store called %d times", store.calls)
	}
	if _, err := k.StartPreparing(context.Background(), "missing"); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("err = %v", err)
	}
}

func TestKitchenReloadForgetsOrdersClosedElsewhere(t *testing.T) {
	k, store, book := newKitchen(t, order(domain.OrderServed, domain.OrderServed))

	// Paid from another device; the open-order query no longer returns it.
	delete(store.orders, "o1")
	if err := k.Load(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}
	if open := book.List(OpenStatuses()...); len(open) != 0 {
		t.Fatalf("open orders after reload = %v", open)
	}
}
