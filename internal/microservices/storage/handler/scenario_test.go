package handler

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"tableside/internal/api"
	"tableside/internal/cart"
	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/orders"
	"tableside/internal/sessions"
	"tableside/internal/tables"
)

func newTestClient(t *testing.T) *api.Client {
	t.Helper()
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return api.New(srv.URL, srv.Client())
}

// TestDiningScenario walks one table from check-in to checkout through the
// client-side state machines talking to a real storage service.
func TestDiningScenario(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	board := tables.NewBoard(client, logger.Nop())
	if err := board.Load(ctx, "b1"); err != nil {
		t.Fatalf("board.Load: %v", err)
	}
	if tbl, _ := board.Get("t1"); tbl.Status != domain.TableAvailable {
		t.Fatalf("t1 starts %s", tbl.Status)
	}

	book := orders.NewBook(logger.Nop())
	staff := sessions.NewMachine(client, nil, book, "staff", logger.Nop())
	s, err := staff.CheckIn(ctx, "b1", "t1")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if staff.State(s.ID) != domain.SessionActive || len(s.Members) != 0 {
		t.Fatalf("session after check-in = %+v", s)
	}

	menu, err := client.Menu(ctx, "b1")
	if err != nil || len(menu) != 1 {
		t.Fatalf("Menu = %+v, %v", menu, err)
	}
	store, err := cart.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	c, err := cart.Open(store, s.JoinCode)
	if err != nil {
		t.Fatalf("cart.Open: %v", err)
	}
	clientID, _ := c.Identity()

	guest := sessions.NewMachine(client, nil, nil, "guest", logger.Nop())
	joined, err := guest.Join(ctx, s.JoinCode, clientID, "Ann")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(joined.Members) != 1 || joined.Members[0].ClientID != clientID {
		t.Fatalf("members = %+v", joined.Members)
	}

	if err := c.Add(menu[0], 2, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	pipeline := cart.NewPipeline(c, joined, guest, client, nil, logger.Nop())
	o, err := pipeline.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if o.Status != domain.OrderPending || o.Total != 2*menu[0].Price {
		t.Fatalf("order = %+v", o)
	}
	reopened, err := cart.Open(store, s.JoinCode)
	if err != nil {
		t.Fatalf("reopen cart: %v", err)
	}
	if len(reopened.Items()) != 0 {
		t.Errorf("persisted cart after submit = %+v", reopened.Items())
	}

	kitchen := orders.NewKitchen(client, book, "kitchen", logger.Nop())
	if err := kitchen.Load(ctx, "b1"); err != nil {
		t.Fatalf("kitchen.Load: %v", err)
	}
	for _, step := range []func(context.Context, string) (domain.Order, error){
		kitchen.StartPreparing, kitchen.MarkServed, kitchen.MarkPaid,
	} {
		if o, err = step(ctx, o.ID); err != nil {
			t.Fatalf("kitchen step: %v", err)
		}
	}
	if o.Status != domain.OrderPaid {
		t.Fatalf("order status = %s, want paid", o.Status)
	}

	out, err := staff.Checkout(ctx, s.ID)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if out.CheckoutAt == nil || staff.State(s.ID) != domain.SessionCheckedOut {
		t.Errorf("session after checkout = %+v", out)
	}
	if err := board.Load(ctx, "b1"); err != nil {
		t.Fatalf("board reload: %v", err)
	}
	if tbl, _ := board.Get("t1"); tbl.Status != domain.TableAvailable || tbl.ActiveSessionID != "" {
		t.Errorf("t1 after checkout = %+v", tbl)
	}

	if _, err := client.Timeline(ctx, o.ID, 10, 0); err != nil {
		t.Errorf("Timeline: %v", err)
	}
}

func TestCheckoutServesOutstandingOrders(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	book := orders.NewBook(logger.Nop())
	staff := sessions.NewMachine(client, nil, book, "staff", logger.Nop())
	s, err := staff.CheckIn(ctx, "b1", "t2")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	o, err := client.CreateOrder(ctx, domain.CreateOrderRequest{
		SessionID: s.ID,
		ClientID:  "c1",
		Lines:     []domain.OrderLineInput{{MenuItemID: "m1", Name: "Ramen", UnitPrice: 1200, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if _, err := staff.Checkout(ctx, s.ID); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	stored, err := client.Order(ctx, o.ID)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if stored.Status != domain.OrderServed {
		t.Errorf("order after checkout = %s, want served", stored.Status)
	}
	if local, ok := book.Get(o.ID); !ok || local.Status != domain.OrderServed {
		t.Errorf("book copy = %+v, %v", local, ok)
	}

	if _, err := client.CreateOrder(ctx, domain.CreateOrderRequest{
		SessionID: s.ID,
		ClientID:  "c1",
		Lines:     []domain.OrderLineInput{{MenuItemID: "m1", UnitPrice: 1200, Quantity: 1}},
	}); !api.IsConflict(err) {
		t.Errorf("order after checkout: err = %v, want conflict", err)
	}
	if _, err := staff.Checkout(ctx, s.ID); !errors.Is(err, sessions.ErrCheckedOut) {
		t.Errorf("second checkout: err = %v", err)
	}
}

func TestOrderCannotBeServedAfterPayment(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	s, err := client.CreateSession(ctx, domain.CreateSessionRequest{BranchID: "b1", TableID: "t1"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	o, err := client.CreateOrder(ctx, domain.CreateOrderRequest{
		SessionID: s.ID,
		ClientID:  "c1",
		Lines:     []domain.OrderLineInput{{MenuItemID: "m1", UnitPrice: 1200, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := client.UpdateOrderStatus(ctx, o.ID, domain.UpdateOrderStatusRequest{Status: domain.OrderPaid}); err != nil {
		t.Fatalf("pay: %v", err)
	}
	_, err = client.UpdateOrderStatus(ctx, o.ID, domain.UpdateOrderStatusRequest{Status: domain.OrderServed})
	if !api.IsConflict(err) {
		t.Fatalf("served after paid: err = %v, want 409", err)
	}
	if _, err := client.ActiveSession(ctx, "t2"); !api.IsNotFound(err) {
		t.Errorf("ActiveSession on free table: err = %v, want 404", err)
	}
}
