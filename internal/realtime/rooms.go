package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/realtime/wire"
)

const defaultAckTimeout = 5 * time.Second

// RoomError is a negative acknowledgment from the hub.
type RoomError struct {
	Room    string
	Message string
}

func (e *RoomError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("room %s: request refused", e.Room)
	}
	return fmt.Sprintf("room %s: %s", e.Room, e.Message)
}

var errEmptyRoomID = errors.New("realtime: empty room id")

type heldRoom struct {
	kind domain.RoomKind
	id   string
	refs int
	// released is set when the last membership let go while the link was
	// down. The hub forgets the old connection's rooms, so the entry is
	// dropped on reconnect instead of being joined again.
	released bool
}

// Rooms tracks room memberships over a Manager. Every successful join
// hands out a Membership; the hub is asked to leave a room only when the
// last membership for it is released.
type Rooms struct {
	m       *Manager
	timeout time.Duration
	log     *logger.Logger

	mu    sync.Mutex
	held  map[string]*heldRoom
	locks map[string]*sync.Mutex
	epoch uint64
}

func NewRooms(m *Manager, ackTimeout time.Duration, lg *logger.Logger) *Rooms {
	if ackTimeout <= 0 {
		ackTimeout = defaultAckTimeout
	}
	if lg == nil {
		lg = logger.Nop()
	}
	r := &Rooms{
		m:       m,
		timeout: ackTimeout,
		log:     lg.With("rooms"),
		held:    make(map[string]*heldRoom),
		locks:   make(map[string]*sync.Mutex),
	}
	m.addHook(r)
	return r
}

func (r *Rooms) JoinBranchRoom(ctx context.Context, id string) (*Membership, error) {
	return r.Join(ctx, domain.RoomBranch, id)
}

func (r *Rooms) JoinOrderRoom(ctx context.Context, id string) (*Membership, error) {
	return r.Join(ctx, domain.RoomOrder, id)
}

func (r *Rooms) JoinSessionRoom(ctx context.Context, id string) (*Membership, error) {
	return r.Join(ctx, domain.RoomSession, id)
}

func (r *Rooms) LeaveBranchRoom(ctx context.Context, id string) error {
	return r.Leave(ctx, domain.RoomBranch, id)
}

func (r *Rooms) LeaveOrderRoom(ctx context.Context, id string) error {
	return r.Leave(ctx, domain.RoomOrder, id)
}

func (r *Rooms) LeaveSessionRoom(ctx context.Context, id string) error {
	return r.Leave(ctx, domain.RoomSession, id)
}

// Join asks the hub to add this connection to the room and waits for the
// acknowledgment.
func (r *Rooms) Join(ctx context.Context, kind domain.RoomKind, id string) (*Membership, error) {
	if id == "" {
		return nil, errEmptyRoomID
	}
	room := domain.RoomName(kind, id)
	unlock := r.lockRoom(room)
	defer unlock()

	ack, err := r.m.Request(ctx, wire.JoinName(kind), wire.RoomRequest{ID: id}, r.timeout)
	if err != nil {
		r.log.Warn("room_join_failed", err, map[string]any{"room": room})
		return nil, fmt.Errorf("joining %s: %w", room, err)
	}
	if !ack.Success {
		err := &RoomError{Room: room, Message: ack.Message}
		r.log.Warn("room_join_refused", err, map[string]any{"room": room})
		return nil, err
	}

	r.mu.Lock()
	h, ok := r.held[room]
	if !ok {
		h = &heldRoom{kind: kind, id: id}
		r.held[room] = h
	}
	if h.released {
		h.released, h.refs = false, 0
	}
	h.refs++
	refs, epoch := h.refs, r.epoch
	r.mu.Unlock()

	r.log.Debug("room_joined", map[string]any{"room": room, "refs": refs})
	return &Membership{rooms: r, kind: kind, id: id, room: room, epoch: epoch}, nil
}

// Leave releases one membership of the room. Leaving a room that is not
// held succeeds without contacting the hub.
func (r *Rooms) Leave(ctx context.Context, kind domain.RoomKind, id string) error {
	r.mu.Lock()
	epoch := r.epoch
	r.mu.Unlock()
	return r.release(ctx, kind, id, epoch)
}

func (r *Rooms) release(ctx context.Context, kind domain.RoomKind, id string, epoch uint64) error {
	if id == "" {
		return errEmptyRoomID
	}
	room := domain.RoomName(kind, id)
	unlock := r.lockRoom(room)
	defer unlock()

	r.mu.Lock()
	h, ok := r.held[room]
	if !ok || h.released || epoch != r.epoch {
		r.mu.Unlock()
		return nil
	}
	if h.refs > 1 {
		h.refs--
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	ack, err := r.m.Request(ctx, wire.LeaveName(kind), wire.RoomRequest{ID: id}, r.timeout)
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrDisconnected) {
		r.mu.Lock()
		if epoch == r.epoch {
			h.released = true
			h.refs = 0
		}
		r.mu.Unlock()
		r.log.Info("room_leave_deferred", map[string]any{"room": room, "reason": err.Error()})
		return nil
	}
	if err != nil {
		r.log.Warn("room_leave_failed", err, map[string]any{"room": room})
		return fmt.Errorf("leaving %s: %w", room, err)
	}
	if !ack.Success {
		err := &RoomError{Room: room, Message: ack.Message}
		r.log.Warn("room_leave_refused", err, map[string]any{"room": room})
		return err
	}

	r.mu.Lock()
	if epoch == r.epoch {
		delete(r.held, room)
	}
	r.mu.Unlock()
	r.log.Debug("room_left", map[string]any{"room": room})
	return nil
}

// Held lists the rooms with at least one live membership, sorted.
func (r *Rooms) Held() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.held))
	for room, h := range r.held {
		if !h.released {
			out = append(out, room)
		}
	}
	sort.Strings(out)
	return out
}

// Refs reports how many memberships hold room.
func (r *Rooms) Refs(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.held[room]; ok {
		return h.refs
	}
	return 0
}

func (r *Rooms) lockRoom(room string) func() {
	r.mu.Lock()
	l, ok := r.locks[room]
	if !ok {
		l = &sync.Mutex{}
		r.locks[room] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// connected re-joins every held room after the transport comes back and
// drops the ones released while it was down.
func (r *Rooms) connected() {
	r.mu.Lock()
	rooms := make([]string, 0, len(r.held))
	for room := range r.held {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()
	if len(rooms) == 0 {
		return
	}
	go func() {
		for _, room := range rooms {
			r.rejoin(room)
		}
	}()
}

// rejoin runs under the room lock so it cannot interleave with a release
// of the same room.
func (r *Rooms) rejoin(room string) {
	unlock := r.lockRoom(room)
	defer unlock()

	r.mu.Lock()
	h, ok := r.held[room]
	if ok && h.released {
		delete(r.held, room)
	}
	if !ok || h.released {
		r.mu.Unlock()
		return
	}
	kind, id := h.kind, h.id
	r.mu.Unlock()

	ack, err := r.m.Request(context.Background(), wire.JoinName(kind), wire.RoomRequest{ID: id}, r.timeout)
	if err == nil && !ack.Success {
		err = &RoomError{Room: room, Message: ack.Message}
	}
	if err != nil {
		r.log.Warn("room_rejoin_failed", err, map[string]any{"room": room})
		return
	}
	r.log.Info("room_rejoined", map[string]any{"room": room})
}

// tornDown forgets every membership; handles issued before become inert.
func (r *Rooms) tornDown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = make(map[string]*heldRoom)
	r.epoch++
}

// Membership is one consumer's hold on a room.
type Membership struct {
	rooms *Rooms
	kind  domain.RoomKind
	id    string
	room  string
	epoch uint64

	mu   sync.Mutex
	subs []*Subscription
	left bool
}

// Room is the hub-side room name, e.g. "order:o1".
func (ms *Membership) Room() string { return ms.room }

// On registers h for events called name that were published to this room.
// Handlers stop receiving as soon as Leave is called.
func (ms *Membership) On(name string, h Handler) *Subscription {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.left {
		return &Subscription{}
	}
	sub := ms.rooms.m.router.on(name, ms.room, h)
	ms.subs = append(ms.subs, sub)
	return sub
}

// Leave removes the membership's handlers and releases its hold on the
// room. While the link is down the release is recorded locally and the
// room is not joined again on reconnect. If the hub refuses, the hold is
// kept and Leave may be retried.
func (ms *Membership) Leave(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.left {
		return nil
	}
	for _, s := range ms.subs {
		s.Unsubscribe()
	}
	ms.subs = nil
	if err := ms.rooms.release(ctx, ms.kind, ms.id, ms.epoch); err != nil {
		return err
	}
	ms.left = true
	return nil
}
