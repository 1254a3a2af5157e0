package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tableside/internal/realtime/wire"
)

var errFakeClosed = errors.New("fake connection closed")

// fakeHub answers join/leave requests in memory and pushes events to the
// most recently dialed connection.
type fakeHub struct {
	mu       sync.Mutex
	conn     *fakeConn
	requests []string
	refused  map[string]string
	silent   bool

	dials    atomic.Int32
	failDial atomic.Bool
}

func newFakeHub() *fakeHub { return &fakeHub{refused: make(map[string]string)} }

func (h *fakeHub) dialer() Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		h.dials.Add(1)
		if h.failDial.Load() {
			return nil, errors.New("connection refused")
		}
		c := &fakeConn{hub: h, in: make(chan []byte, 64), closed: make(chan struct{})}
		h.mu.Lock()
		h.conn = c
		h.mu.Unlock()
		return c, nil
	}
}

func (h *fakeHub) handle(c *fakeConn, f wire.Frame) {
	var req wire.RoomRequest
	_ = json.Unmarshal(f.Data, &req)

	h.mu.Lock()
	h.requests = append(h.requests, f.Name+":"+req.ID)
	msg, refused := h.refused[f.Name+":"+req.ID]
	silent := h.silent
	h.mu.Unlock()
	if silent {
		return
	}
	ack := wire.Ack{Success: !refused, Message: msg}
	data, _ := json.Marshal(ack)
	out, _ := wire.Encode(wire.Frame{Type: wire.TypeAck, ID: f.ID, Data: data})
	c.in <- out
}

func (h *fakeHub) push(t *testing.T, name string, rooms []string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	out, _ := wire.Encode(wire.Frame{Type: wire.TypeEvent, Name: name, Rooms: rooms, Data: data})
	h.mu.Lock()
	c := h.conn
	h.mu.Unlock()
	if c == nil {
		t.Fatal("push without connection")
	}
	c.in <- out
}

func (h *fakeHub) pushRaw(msg []byte) {
	h.mu.Lock()
	c := h.conn
	h.mu.Unlock()
	c.in <- msg
}

// drop simulates the server closing the connection.
func (h *fakeHub) drop() {
	h.mu.Lock()
	c := h.conn
	h.mu.Unlock()
	_ = c.Close()
}

func (h *fakeHub) count(request string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.requests {
		if r == request {
			n++
		}
	}
	return n
}

type fakeConn struct {
	hub    *fakeHub
	in     chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.in:
		return websocket.TextMessage, msg, nil
	case <-c.closed:
		return 0, nil, errFakeClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	f, err := wire.Decode(data)
	if err != nil {
		return err
	}
	c.hub.handle(c, f)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func newTestManager(t *testing.T, hub *fakeHub) *Manager {
	t.Helper()
	m := NewManager(Options{
		URL:               "ws://hub.test",
		Dialer:            hub.dialer(),
		ReconnectAttempts: 2,
		ReconnectDelay:    5 * time.Millisecond,
	})
	t.Cleanup(m.Disconnect)
	return m
}

// connectAndWait connects m and blocks until the connect event fires.
func connectAndWait(t *testing.T, m *Manager) {
	t.Helper()
	connected := make(chan struct{}, 1)
	sub := m.Router().On("connect", func(Event) {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	defer sub.Unsubscribe()
	m.Connect()
	requireReceive(t, connected, "connect event")
}

func requireReceive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func requireNoReceive[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("unexpected %s", what)
	case <-time.After(50 * time.Millisecond):
	}
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
