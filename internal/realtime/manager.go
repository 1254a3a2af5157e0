package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/realtime/wire"
)

var (
	ErrNotConnected = errors.New("realtime: not connected")
	ErrAckTimeout   = errors.New("realtime: acknowledgment timed out")
	ErrDisconnected = errors.New("realtime: connection lost before acknowledgment")
)

const (
	defaultNamespace         = "orders"
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
)

type Options struct {
	// URL is the hub base URL, e.g. ws://localhost:3001.
	URL string
	// Namespace is appended to URL as the endpoint path.
	Namespace string
	// Dialer defaults to WebsocketDialer(nil).
	Dialer Dialer
	// ReconnectAttempts bounds consecutive failed dials after the first one.
	ReconnectAttempts int
	// ReconnectDelay is the fixed wait between attempts.
	ReconnectDelay time.Duration
	Logger         *logger.Logger
}

// lifecycle lets the room layer follow the link without registering
// router handlers, which Disconnect clears.
type lifecycle interface {
	connected()
	tornDown()
}

// Manager owns the process-wide realtime transport.
type Manager struct {
	opts   Options
	router *Router
	log    *logger.Logger

	mu         sync.Mutex
	conn       Conn
	connected  bool
	running    bool
	generation uint64
	stop       chan struct{}
	pending    map[uint64]chan wire.Ack
	nextID     uint64
	hooks      []lifecycle

	writeMu sync.Mutex
}

func NewManager(opts Options) *Manager {
	if opts.Namespace == "" {
		opts.Namespace = defaultNamespace
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer(nil)
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = defaultReconnectAttempts
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Manager{
		opts:    opts,
		router:  NewRouter(opts.Logger),
		log:     opts.Logger,
		pending: make(map[uint64]chan wire.Ack),
	}
}

// Router returns the event router fed by this manager.
func (m *Manager) Router() *Router { return m.router }

// Endpoint is the URL the manager dials.
func (m *Manager) Endpoint() string {
	return strings.TrimRight(m.opts.URL, "/") + "/" + strings.Trim(m.opts.Namespace, "/")
}

// Connect starts the transport if it is not already running. It returns
// immediately; the outcome is reported through connect and connect_error
// events. After the reconnect bound is exhausted, calling Connect again
// starts a fresh round of attempts.
//
// No connection handle is returned. The Manager is the one shared
// transport for the process: the underlying Conn is replaced on every
// reconnect, so callers go through Request, Router, IsConnected and
// WaitConnected rather than holding a Conn.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.generation++
	m.stop = make(chan struct{})
	go m.supervise(m.generation, m.stop)
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// WaitConnected blocks until the link is up. It gives up with
// ErrNotConnected once the transport stops trying.
func (m *Manager) WaitConnected(ctx context.Context) error {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		m.mu.Lock()
		connected, running := m.connected, m.running
		m.mu.Unlock()
		switch {
		case connected:
			return nil
		case !running:
			return ErrNotConnected
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Disconnect closes the transport, stops reconnecting, fails in-flight
// requests and clears every registered handler.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.running {
		close(m.stop)
	}
	conn := m.conn
	m.running = false
	m.generation++
	m.detachLocked()
	hooks := append([]lifecycle(nil), m.hooks...)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.router.Clear()
	for _, h := range hooks {
		h.tornDown()
	}
	m.log.Info("realtime_disconnected", map[string]any{"endpoint": m.Endpoint()})
}

func (m *Manager) addHook(h lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

func (m *Manager) supervise(gen uint64, stop <-chan struct{}) {
	failures := 0
	for {
		conn, err := m.dial(stop)
		if err != nil {
			if isStopped(stop) {
				return
			}
			failures++
			m.router.Dispatch(Event{Name: domain.EventConnectError, Err: err})
			m.log.Warn("realtime_connect_failed", err, map[string]any{
				"endpoint":     m.Endpoint(),
				"attempt":      failures,
				"max_attempts": m.opts.ReconnectAttempts,
			})
			if failures > m.opts.ReconnectAttempts {
				m.log.Error("realtime_reconnect_exhausted", err, map[string]any{"endpoint": m.Endpoint()})
				m.finish(gen)
				return
			}
			if !m.wait(stop) {
				return
			}
			continue
		}

		failures = 0
		if !m.attach(gen, conn) {
			_ = conn.Close()
			return
		}
		m.log.Info("realtime_connected", map[string]any{"endpoint": m.Endpoint()})
		m.router.Dispatch(Event{Name: domain.EventConnect})
		m.notifyConnected()

		err = m.readLoop(conn)
		if !m.detach(gen) {
			return
		}
		m.log.Warn("realtime_connection_lost", err, map[string]any{"endpoint": m.Endpoint()})
		m.router.Dispatch(Event{Name: domain.EventDisconnect, Err: err})
		if !m.wait(stop) {
			return
		}
	}
}

func (m *Manager) dial(stop <-chan struct{}) (Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return m.opts.Dialer(ctx, m.Endpoint())
}

func (m *Manager) wait(stop <-chan struct{}) bool {
	t := time.NewTimer(m.opts.ReconnectDelay)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

func isStopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func (m *Manager) attach(gen uint64, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return false
	}
	m.conn = conn
	m.connected = true
	return true
}

// detach reports whether gen is still the live generation.
func (m *Manager) detach(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return false
	}
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.detachLocked()
	return true
}

func (m *Manager) detachLocked() {
	m.conn = nil
	m.connected = false
	for id, ch := range m.pending {
		close(ch)
		delete(m.pending, id)
	}
}

func (m *Manager) finish(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.generation {
		m.running = false
	}
}

func (m *Manager) notifyConnected() {
	m.mu.Lock()
	hooks := append([]lifecycle(nil), m.hooks...)
	m.mu.Unlock()
	for _, h := range hooks {
		h.connected()
	}
}

func (m *Manager) readLoop(conn Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		frame, err := wire.Decode(msg)
		if err != nil {
			m.log.Warn("malformed_frame_dropped", err, nil)
			continue
		}
		switch frame.Type {
		case wire.TypeAck:
			var ack wire.Ack
			if err := json.Unmarshal(frame.Data, &ack); err != nil {
				m.log.Warn("malformed_ack_dropped", err, map[string]any{"id": frame.ID})
				continue
			}
			m.resolve(frame.ID, ack)
		case wire.TypeEvent:
			m.router.Dispatch(Event{Name: frame.Name, Rooms: frame.Rooms, Data: frame.Data})
		default:
			m.log.Warn("unknown_frame_dropped", nil, map[string]any{"type": frame.Type})
		}
	}
}

func (m *Manager) resolve(id uint64, ack wire.Ack) {
	m.mu.Lock()
	ch, ok := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()
	if ok {
		ch <- ack
	}
}

func (m *Manager) forget(id uint64) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// Request sends a named request and waits for its acknowledgment, the
// timeout or ctx, whichever comes first.
func (m *Manager) Request(ctx context.Context, name string, body any, timeout time.Duration) (wire.Ack, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return wire.Ack{}, fmt.Errorf("realtime: encoding %s: %w", name, err)
	}

	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return wire.Ack{}, ErrNotConnected
	}
	conn := m.conn
	m.nextID++
	id := m.nextID
	ch := make(chan wire.Ack, 1)
	m.pending[id] = ch
	m.mu.Unlock()

	msg, err := wire.Encode(wire.Frame{Type: wire.TypeRequest, ID: id, Name: name, Data: data})
	if err != nil {
		m.forget(id)
		return wire.Ack{}, err
	}
	if err := m.write(conn, msg); err != nil {
		m.forget(id)
		return wire.Ack{}, fmt.Errorf("realtime: sending %s: %w", name, err)
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ack, ok := <-ch:
		if !ok {
			return wire.Ack{}, ErrDisconnected
		}
		return ack, nil
	case <-t.C:
		m.forget(id)
		return wire.Ack{}, ErrAckTimeout
	case <-ctx.Done():
		m.forget(id)
		return wire.Ack{}, ctx.Err()
	}
}

func (m *Manager) write(conn Conn, msg []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, msg)
}
