package orders

import (
	"encoding/json"
	"testing"

	"tableside/internal/domain"
	"tableside/internal/realtime"
)

func TestBookNeverRegresses(t *testing.T) {
	tests := []struct {
		name   string
		events []domain.OrderStatus
		want   domain.OrderStatus
	}{
		{"forward", []domain.OrderStatus{"pending", "preparing", "served", "paid"}, domain.OrderPaid},
		{"stale redelivery", []domain.OrderStatus{"pending", "served", "preparing"}, domain.OrderServed},
		{"served after paid", []domain.OrderStatus{"preparing", "paid", "served"}, domain.OrderPaid},
		{"early payment", []domain.OrderStatus{"pending", "paid"}, domain.OrderPaid},
		{"duplicates", []domain.OrderStatus{"preparing", "preparing", "preparing"}, domain.OrderPreparing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBook(nil)
			for _, s := range tt.events {
				b.Apply(order(s, s))
			}
			got, ok := b.Get("o1")
			if !ok || got.Status != tt.want {
				t.Fatalf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestBookKeepsLineProgress(t *testing.T) {
	b := NewBook(nil)
	b.Apply(order(domain.OrderPreparing, domain.OrderServed, domain.OrderPreparing))

	if b.Apply(order(domain.OrderPreparing, domain.OrderPreparing, domain.OrderPreparing)) {
		t.Fatal("older line statuses counted as a change")
	}
	got, _ := b.Get("o1")
	if got.Lines[0].Status != domain.OrderServed {
		t.Fatalf("line 0 regressed to %s", got.Lines[0].Status)
	}
}

func TestBookPaymentClosesOrders(t *testing.T) {
	b := NewBook(nil)
	o1 := order(domain.OrderPreparing, domain.OrderPreparing)
	o2 := order(domain.OrderServed, domain.OrderServed)
	o2.ID = "o2"
	o3 := order(domain.OrderPending, domain.OrderPending)
	o3.ID, o3.SessionID = "o3", "s2"
	b.Load([]domain.Order{o1, o2, o3})

	if ids := b.ApplyPayment(domain.Payment{Status: domain.PaymentPending, OrderID: "o1"}); len(ids) != 0 {
		t.Fatalf("pending payment closed %v", ids)
	}
	ids := b.ApplyPayment(domain.Payment{Status: domain.PaymentPaid, SessionID: "s1"})
	if len(ids) != 2 || ids[0] != "o1" || ids[1] != "o2" {
		t.Fatalf("closed %v, want [o1 o2]", ids)
	}
	if o, _ := b.Get("o3"); o.Status != domain.OrderPending {
		t.Fatalf("other session's order is %s", o.Status)
	}
}

func TestBookSubscribe(t *testing.T) {
	r := realtime.NewRouter(nil)
	b := NewBook(nil)
	var seen []string
	b.OnChange(func(o domain.Order) { seen = append(seen, string(o.Status)) })
	subs := b.Subscribe(r)
	if len(subs) != 3 {
		t.Fatalf("%d subscriptions", len(subs))
	}

	dispatch := func(name string, v any) {
		data, _ := json.Marshal(v)
		r.Dispatch(realtime.Event{Name: name, Data: data})
	}
	dispatch(domain.EventNewOrder, order(domain.OrderPending, domain.OrderPending))
	dispatch(domain.EventNewOrder, order(domain.OrderPending, domain.OrderPending))
	dispatch(domain.EventOrderStatusChanged, map[string]string{"status": "served"})
	dispatch(domain.EventPaymentStatusChanged, domain.Payment{Status: domain.PaymentPaid, OrderID: "o1"})

	if len(seen) != 2 || seen[0] != "pending" || seen[1] != "paid" {
		t.Fatalf("changes = %v", seen)
	}
}

func TestBySessionNewestFirst(t *testing.T) {
	b := NewBook(nil)
	a := order(domain.OrderPending)
	a.ID = "a"
	c := order(domain.OrderPending)
	c.ID = "c"
	c.CreatedAt = a.CreatedAt.Add(1)
	b.Load([]domain.Order{a, c})

	got := b.BySession("s1")
	if len(got) != 2 || got[0].ID != "c" {
		t.Fatalf("BySession = %v", got)
	}
	if list := b.List(domain.OrderServed); len(list) != 0 {
		t.Fatalf("List(served) = %v", list)
	}
}

func TestBookReplaceDropsClosedOrders(t *testing.T) {
	b := NewBook(nil)
	o1 := order(domain.OrderServed, domain.OrderServed)
	o2 := order(domain.OrderPending, domain.OrderPending)
	o2.ID = "o2"
	done := order(domain.OrderPaid, domain.OrderPaid)
	done.ID = "o3"
	b.Load([]domain.Order{o1, o2, done})

	// o1 was paid while nothing was listening.
	b.Replace([]domain.Order{o2}, domain.OrderPending, domain.OrderPreparing, domain.OrderServed)

	open := b.List(domain.OrderPending, domain.OrderPreparing, domain.OrderServed)
	if len(open) != 1 || open[0].ID != "o2" {
		t.Fatalf("open orders = %v, want [o2]", open)
	}
	if _, ok := b.Get("o1"); ok {
		t.Fatal("o1 still in book")
	}
	if _, ok := b.Get("o3"); !ok {
		t.Fatal("paid order outside the reloaded statuses was dropped")
	}
}
