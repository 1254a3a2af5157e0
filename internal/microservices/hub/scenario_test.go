package hub

import (
	"context"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tableside/internal/api"
	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/microservices/storage/handler"
	"tableside/internal/microservices/storage/repository"
	"tableside/internal/microservices/storage/service"
	"tableside/internal/orders"
	"tableside/internal/sessions"
	"tableside/internal/tables"
)

// hubNotifier hands notifications straight to the hub, standing in for
// the broker between the storage service and the relay.
type hubNotifier struct{ h *Hub }

func (n hubNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.h.Publish(msg)
	return nil
}

func startStorage(t *testing.T, h *Hub) *api.Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mem := repository.NewMemory()
	mem.Seed(domain.Branch{ID: "b1"},
		[]domain.Table{{ID: "t1", Number: 1, Capacity: 4}, {ID: "t2", Number: 2, Capacity: 2}},
		[]domain.MenuItem{{ID: "m1", Name: "Ramen", Price: 1200}})
	svc := service.New(mem.Repository(), hubNotifier{h}, logger.Nop())
	srv := httptest.NewServer(handler.Router(handler.New(svc), nil, logger.Nop()))
	t.Cleanup(srv.Close)
	return api.New(srv.URL, srv.Client())
}

// terminal is one staff device: its own transport, rooms and views.
type terminal struct {
	board    *tables.Board
	book     *orders.Book
	sessions *sessions.Machine
}

func openTerminal(t *testing.T, url string, client *api.Client) *terminal {
	t.Helper()
	ctx := context.Background()
	_, rooms := connectClient(t, url)

	term := &terminal{board: tables.NewBoard(client, nil), book: orders.NewBook(nil)}
	term.sessions = sessions.NewMachine(client, rooms, term.book, "staff", nil)
	if err := term.board.Load(ctx, "b1"); err != nil {
		t.Fatalf("board.Load: %v", err)
	}

	branch, err := rooms.JoinBranchRoom(ctx, "b1")
	if err != nil {
		t.Fatalf("JoinBranchRoom: %v", err)
	}
	term.board.Subscribe(branch)
	term.book.Subscribe(branch)
	term.sessions.Subscribe(branch)
	return term
}

func TestTerminalsConvergeWithoutPolling(t *testing.T) {
	h, url := startHub(t)
	client := startStorage(t, h)
	ctx := context.Background()

	first := openTerminal(t, url, client)
	second := openTerminal(t, url, client)

	s, err := first.sessions.CheckIn(ctx, "b1", "t1")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	waitFor(t, "second terminal to see t1 occupied", func() bool {
		tbl, _ := second.board.Get("t1")
		return tbl.Status == domain.TableOccupied
	})

	o, err := client.CreateOrder(ctx, domain.CreateOrderRequest{
		SessionID: s.ID,
		ClientID:  "c1",
		Lines:     []domain.OrderLineInput{{MenuItemID: "m1", Name: "Ramen", UnitPrice: 1200, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	waitFor(t, "second terminal to see the new order", func() bool {
		_, ok := second.book.Get(o.ID)
		return ok
	})

	if _, err := first.sessions.Checkout(ctx, s.ID); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	waitFor(t, "second terminal to see t1 available", func() bool {
		tbl, _ := second.board.Get("t1")
		return tbl.Status == domain.TableAvailable && tbl.ActiveSessionID == ""
	})
	waitFor(t, "second terminal to see the order served", func() bool {
		got, _ := second.book.Get(o.ID)
		return got.Status == domain.OrderServed
	})
	waitFor(t, "second terminal to record the checkout", func() bool {
		return second.sessions.State(s.ID) == domain.SessionCheckedOut
	})
}

func TestRepeatedTableEventIsIdempotent(t *testing.T) {
	h, url := startHub(t)
	client := startStorage(t, h)
	term := openTerminal(t, url, client)

	var changes atomic.Int32
	term.board.OnChange(func(domain.Table) { changes.Add(1) })

	n := notification(t, domain.EventTableStatusChanged, domain.TableStatusChange{
		TableID: "t2", BranchID: "b1", PreviousStatus: domain.TableAvailable, NewStatus: domain.TableOccupied,
		UpdatedAt: time.Now().UTC(),
	}, "branch:b1")
	h.Publish(n)
	h.Publish(n)

	waitFor(t, "t2 occupied", func() bool {
		tbl, _ := term.board.Get("t2")
		return tbl.Status == domain.TableOccupied
	})
	time.Sleep(50 * time.Millisecond)
	tbl, _ := term.board.Get("t2")
	if tbl.Status != domain.TableOccupied {
		t.Errorf("t2 = %+v", tbl)
	}
	if got := changes.Load(); got != 1 {
		t.Errorf("board changed %d times, want 1", got)
	}
}

func TestClosingSessionsReleasesEveryRoom(t *testing.T) {
	h, url := startHub(t)
	client := startStorage(t, h)
	ctx := context.Background()
	_, rooms := connectClient(t, url)
	m := sessions.NewMachine(client, rooms, nil, "floor", nil)

	done, err := m.CheckIn(ctx, "b1", "t1")
	if err != nil {
		t.Fatalf("CheckIn t1: %v", err)
	}
	if _, err := m.CheckIn(ctx, "b1", "t2"); err != nil {
		t.Fatalf("CheckIn t2: %v", err)
	}
	if got := len(rooms.Held()); got != 2 {
		t.Fatalf("held %d rooms after check-ins", got)
	}
	// The checkout's leave runs in the background; Close waits for it.
	if _, err := m.Checkout(ctx, done.ID); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if held := rooms.Held(); len(held) != 0 {
		t.Fatalf("rooms still held after Close: %v", held)
	}
}
