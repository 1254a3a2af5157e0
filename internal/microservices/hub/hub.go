// Package hub is the realtime hub: it holds the websocket connections of
// client processes, tracks which rooms each one joined and fans committed
// notifications out to them.
package hub

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/realtime/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
	maxFrame   = 64 << 10
)

type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

func New(lg *logger.Logger) *Hub {
	if lg == nil {
		lg = logger.Nop()
	}
	return &Hub{
		log: lg.With("hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// conn is one client process. rooms is only touched under Hub.mu.
type conn struct {
	id    string
	ws    *websocket.Conn
	send  chan []byte
	rooms map[string]struct{}
	once  sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.send) })
}

// ServeHTTP upgrades the request and serves the connection until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws_upgrade_failed", err, nil)
		return
	}
	c := &conn{
		id:    uuid.NewString(),
		ws:    ws,
		send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()
	h.log.Info("client_connected", map[string]any{"conn_id": c.id, "remote": r.RemoteAddr, "clients": total})

	go h.writePump(c)
	h.readPump(c)
}

// Connections reports how many clients are attached.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Members reports how many connections are in room.
func (h *Hub) Members(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.conns {
		if _, ok := c.rooms[room]; ok {
			n++
		}
	}
	return n
}

// Publish sends n to every connection that joined at least one of its
// rooms, once per connection, listing the rooms it matched. It returns the
// number of connections the event was queued for.
func (h *Hub) Publish(n domain.Notification) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.conns {
		var matched []string
		for _, room := range n.Rooms {
			if _, ok := c.rooms[room]; ok {
				matched = append(matched, room)
			}
		}
		if len(matched) == 0 {
			continue
		}
		sort.Strings(matched)
		b, err := wire.Encode(wire.Frame{Type: wire.TypeEvent, Name: n.Event, Rooms: matched, Data: n.Data})
		if err != nil {
			h.log.Error("event_encode_failed", err, map[string]any{"event": n.Event})
			return delivered
		}
		select {
		case c.send <- b:
			delivered++
		default:
			// A client that cannot keep up is dropped; it reconnects and
			// refetches.
			h.log.Warn("client_too_slow", nil, map[string]any{"conn_id": c.id})
			h.dropLocked(c)
		}
	}
	return delivered
}

func (h *Hub) dropLocked(c *conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	c.close()
}

func (h *Hub) readPump(c *conn) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(c)
		total := len(h.conns)
		h.mu.Unlock()
		_ = c.ws.Close()
		h.log.Info("client_disconnected", map[string]any{"conn_id": c.id, "clients": total})
	}()

	c.ws.SetReadLimit(maxFrame)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		f, err := wire.Decode(data)
		if err != nil || f.Type != wire.TypeRequest {
			h.log.Warn("frame_dropped", err, map[string]any{"conn_id": c.id})
			continue
		}
		h.reply(c, f.ID, h.handleRequest(c, f))
	}
}

func (h *Hub) handleRequest(c *conn, f wire.Frame) wire.Ack {
	kind, join, err := wire.ParseRequest(f.Name)
	if err != nil {
		return wire.Ack{Message: err.Error()}
	}
	var req wire.RoomRequest
	if err := json.Unmarshal(f.Data, &req); err != nil || req.ID == "" {
		return wire.Ack{Message: "room id is required"}
	}
	room := domain.RoomName(kind, req.ID)

	h.mu.Lock()
	if join {
		c.rooms[room] = struct{}{}
	} else {
		delete(c.rooms, room)
	}
	h.mu.Unlock()

	h.log.Debug("room_request", map[string]any{"conn_id": c.id, "room": room, "join": join})
	return wire.Ack{Success: true, Room: room}
}

func (h *Hub) reply(c *conn, id uint64, ack wire.Ack) {
	data, _ := json.Marshal(ack)
	b, err := wire.Encode(wire.Frame{Type: wire.TypeAck, ID: id, Data: data})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
		h.dropLocked(c)
	}
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		h.dropLocked(c)
	}
}
