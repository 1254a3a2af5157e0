package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/realtime"
	"tableside/internal/realtime/wire"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h := New(logger.Nop())
	srv := httptest.NewServer(h.Mux("orders"))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connectClient(t *testing.T, url string) (*realtime.Manager, *realtime.Rooms) {
	t.Helper()
	m := realtime.NewManager(realtime.Options{
		URL:               url,
		Namespace:         "orders",
		ReconnectAttempts: 2,
		ReconnectDelay:    10 * time.Millisecond,
	})
	t.Cleanup(m.Disconnect)
	rooms := realtime.NewRooms(m, 2*time.Second, nil)
	m.Connect()
	waitFor(t, "client connected", m.IsConnected)
	return m, rooms
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func notification(t *testing.T, event string, payload any, rooms ...string) domain.Notification {
	t.Helper()
	n, err := domain.NewNotification(event, payload, rooms...)
	if err != nil {
		t.Fatalf("NewNotification: %v", err)
	}
	return n
}

func TestPublishReachesJoinedRoomsOnce(t *testing.T) {
	h, url := startHub(t)
	_, rooms := connectClient(t, url)
	ctx := context.Background()

	ms, err := rooms.JoinBranchRoom(ctx, "b1")
	if err != nil {
		t.Fatalf("JoinBranchRoom: %v", err)
	}
	if ms.Room() != "branch:b1" || h.Members("branch:b1") != 1 {
		t.Fatalf("room %q, members %d", ms.Room(), h.Members("branch:b1"))
	}
	if _, err := rooms.JoinOrderRoom(ctx, "o1"); err != nil {
		t.Fatalf("JoinOrderRoom: %v", err)
	}

	got := make(chan realtime.Event, 4)
	ms.On(domain.EventOrderStatusChanged, func(ev realtime.Event) { got <- ev })

	order := domain.Order{ID: "o1", Status: domain.OrderServed}
	if n := h.Publish(notification(t, domain.EventOrderStatusChanged, order, "branch:b1", "order:o1", "session:s1")); n != 1 {
		t.Fatalf("Publish delivered to %d connections, want 1", n)
	}

	select {
	case ev := <-got:
		if len(ev.Rooms) != 2 || ev.Rooms[0] != "branch:b1" || ev.Rooms[1] != "order:o1" {
			t.Errorf("rooms = %v", ev.Rooms)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case ev := <-got:
		t.Fatalf("duplicate delivery %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if n := h.Publish(notification(t, domain.EventNewOrder, order, "branch:b2")); n != 0 {
		t.Errorf("other branch delivered to %d connections", n)
	}
}

func TestNoEventsAfterLeave(t *testing.T) {
	h, url := startHub(t)
	_, rooms := connectClient(t, url)
	ctx := context.Background()

	ms, err := rooms.JoinSessionRoom(ctx, "s1")
	if err != nil {
		t.Fatalf("JoinSessionRoom: %v", err)
	}
	got := make(chan realtime.Event, 4)
	ms.On(domain.EventSessionCheckout, func(ev realtime.Event) { got <- ev })

	if err := ms.Leave(ctx); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if h.Members("session:s1") != 0 {
		t.Fatalf("hub still lists the connection in session:s1")
	}
	if n := h.Publish(notification(t, domain.EventSessionCheckout, domain.Session{ID: "s1"}, "session:s1")); n != 0 {
		t.Errorf("published to %d connections after leave", n)
	}
	select {
	case ev := <-got:
		t.Fatalf("event after leave: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBadRequestsAreRefused(t *testing.T) {
	_, url := startHub(t)
	m, rooms := connectClient(t, url)
	ctx := context.Background()

	ack, err := m.Request(ctx, "joinKitchenRoom", wire.RoomRequest{ID: "k1"}, time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if ack.Success || ack.Message == "" {
		t.Errorf("unknown request ack = %+v", ack)
	}

	ack, err = m.Request(ctx, wire.JoinOrderRoom, map[string]string{}, time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if ack.Success {
		t.Errorf("join without id ack = %+v", ack)
	}

	if _, err := rooms.JoinOrderRoom(ctx, ""); err == nil {
		t.Error("expected error for empty order id")
	}
}

func TestLeaveRoomNotJoinedSucceeds(t *testing.T) {
	_, url := startHub(t)
	m, _ := connectClient(t, url)

	ack, err := m.Request(context.Background(), wire.LeaveBranchRoom, wire.RoomRequest{ID: "b1"}, time.Second)
	if err != nil || !ack.Success || ack.Room != "branch:b1" {
		t.Errorf("leave without join = %+v, %v", ack, err)
	}
}

func TestRelayPublishesAndRejects(t *testing.T) {
	h, url := startHub(t)
	_, rooms := connectClient(t, url)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ms, err := rooms.JoinBranchRoom(ctx, "b1")
	if err != nil {
		t.Fatalf("JoinBranchRoom: %v", err)
	}
	got := make(chan domain.TableStatusChange, 4)
	ms.On(domain.EventTableStatusChanged, realtime.Decoded(logger.Nop(), func(c domain.TableStatusChange) { got <- c }))

	deliveries := make(chan amqp.Delivery, 4)
	done := make(chan error, 1)
	go func() { done <- h.Relay(ctx, deliveries) }()

	deliveries <- amqp.Delivery{Body: []byte(`{not json`)}
	deliveries <- amqp.Delivery{Body: []byte(`{"event":"tableStatusChanged","rooms":[],"data":{}}`)}
	n := notification(t, domain.EventTableStatusChanged, domain.TableStatusChange{
		TableID: "t1", BranchID: "b1", PreviousStatus: domain.TableOccupied, NewStatus: domain.TableAvailable,
	}, "branch:b1")
	body, _ := json.Marshal(n)
	deliveries <- amqp.Delivery{Body: body}

	select {
	case c := <-got:
		if c.TableID != "t1" || c.NewStatus != domain.TableAvailable {
			t.Errorf("change = %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relayed event not delivered")
	}

	close(deliveries)
	select {
	case err := <-done:
		if err == nil {
			t.Error("Relay returned nil after the stream closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Relay did not return")
	}
}

func TestRelayStopsOnCancel(t *testing.T) {
	h := New(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Relay(ctx, make(chan amqp.Delivery)) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Relay = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Relay did not stop")
	}
}

func TestDisconnectedClientIsForgotten(t *testing.T) {
	h, url := startHub(t)
	m, rooms := connectClient(t, url)
	if _, err := rooms.JoinBranchRoom(context.Background(), "b1"); err != nil {
		t.Fatalf("JoinBranchRoom: %v", err)
	}
	m.Disconnect()
	waitFor(t, "hub to drop the connection", func() bool { return h.Connections() == 0 })
	if h.Members("branch:b1") != 0 {
		t.Error("room still has members")
	}
	if _, err := rooms.JoinBranchRoom(context.Background(), "b1"); !errors.Is(err, realtime.ErrNotConnected) {
		t.Errorf("join after disconnect: err = %v", err)
	}
}
