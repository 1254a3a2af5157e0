// Package sessions tracks dine-in sessions from check-in to checkout.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/orders"
	"tableside/internal/realtime"
)

var ErrCheckedOut = errors.New("session already checked out")

// Store is the part of the storage service sessions need.
type Store interface {
	CreateSession(ctx context.Context, req domain.CreateSessionRequest) (domain.Session, error)
	JoinSession(ctx context.Context, req domain.JoinSessionRequest) (domain.Session, error)
	Checkout(ctx context.Context, sessionID string) (domain.Session, error)
	OrdersBySession(ctx context.Context, sessionID string) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, req domain.UpdateOrderStatusRequest) (domain.Order, error)
}

// RoomJoiner joins session rooms; *realtime.Rooms implements it.
type RoomJoiner interface {
	JoinSessionRoom(ctx context.Context, id string) (*realtime.Membership, error)
}

// Machine holds the local view of the sessions this process works with.
// A session is none until created, active until checked out, and checked
// out for good after that.
type Machine struct {
	store Store
	rooms RoomJoiner
	book  *orders.Book
	actor string
	log   *logger.Logger

	mu          sync.Mutex
	sessions    map[string]domain.Session
	memberships map[string]*realtime.Membership
	watchers    []func(domain.Session)

	leaving sync.WaitGroup
}

// NewMachine wires a session machine. rooms and book may be nil: without
// rooms no push updates are received, without book order changes made at
// checkout are not mirrored locally.
func NewMachine(store Store, rooms RoomJoiner, book *orders.Book, actor string, lg *logger.Logger) *Machine {
	if lg == nil {
		lg = logger.Nop()
	}
	return &Machine{
		store:       store,
		rooms:       rooms,
		book:        book,
		actor:       actor,
		log:         lg.With("sessions"),
		sessions:    make(map[string]domain.Session),
		memberships: make(map[string]*realtime.Membership),
	}
}

// OnChange registers fn to run after every local session change.
func (m *Machine) OnChange(fn func(domain.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// Subscribe listens for sessionCheckout on s, typically a branch room.
func (m *Machine) Subscribe(s realtime.Subscriber) *realtime.Subscription {
	return s.On(domain.EventSessionCheckout, realtime.Decoded(m.log, m.remoteCheckout))
}

// CheckIn opens a session at a table. Failing to join the session room is
// logged and does not undo the check-in.
func (m *Machine) CheckIn(ctx context.Context, branchID, tableID string) (domain.Session, error) {
	s, err := m.store.CreateSession(ctx, domain.CreateSessionRequest{BranchID: branchID, TableID: tableID})
	if err != nil {
		m.log.Error("check_in_failed", err, map[string]any{"branch_id": branchID, "table_id": tableID})
		return domain.Session{}, fmt.Errorf("checking in at table %s: %w", tableID, err)
	}
	m.track(s)
	m.follow(ctx, s.ID)
	m.log.Info("checked_in", map[string]any{"session_id": s.ID, "table_id": tableID, "join_code": s.JoinCode})
	return s, nil
}

// Join adds a client to the session behind joinCode.
func (m *Machine) Join(ctx context.Context, joinCode, clientID, label string) (domain.Session, error) {
	if joinCode == "" || clientID == "" {
		return domain.Session{}, errors.New("join code and client id are required")
	}
	s, err := m.store.JoinSession(ctx, domain.JoinSessionRequest{JoinCode: joinCode, ClientID: clientID, Label: label})
	if err != nil {
		m.log.Warn("session_join_failed", err, map[string]any{"join_code": joinCode})
		return domain.Session{}, fmt.Errorf("joining session %s: %w", joinCode, err)
	}
	m.track(s)
	if !s.Active() {
		return s, ErrCheckedOut
	}
	m.follow(ctx, s.ID)
	m.log.Info("session_joined", map[string]any{"session_id": s.ID, "client_id": clientID, "members": len(s.Members)})
	return s, nil
}

// Checkout closes a session. Orders that have not been served yet are
// served first; if any of them cannot be, the session stays open.
func (m *Machine) Checkout(ctx context.Context, sessionID string) (domain.Session, error) {
	if s, ok := m.Session(sessionID); ok && !s.Active() {
		return s, ErrCheckedOut
	}

	list, err := m.store.OrdersBySession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("listing orders of session %s: %w", sessionID, err)
	}
	for _, o := range list {
		if !o.Status.Before(domain.OrderServed) {
			continue
		}
		if _, _, err := orders.Advance(o, orders.Event{Action: orders.Serve}); err != nil {
			return domain.Session{}, err
		}
		stored, err := m.store.UpdateOrderStatus(ctx, o.ID, domain.UpdateOrderStatusRequest{
			Status:    domain.OrderServed,
			ChangedBy: m.actor,
		})
		if err != nil {
			m.log.Error("checkout_aborted", err, map[string]any{"session_id": sessionID, "order_id": o.ID})
			return domain.Session{}, fmt.Errorf("serving order %s before checkout: %w", o.ID, err)
		}
		if m.book != nil {
			m.book.Apply(stored)
		}
	}

	s, err := m.store.Checkout(ctx, sessionID)
	if err != nil {
		m.log.Error("checkout_failed", err, map[string]any{"session_id": sessionID})
		return domain.Session{}, fmt.Errorf("checking out session %s: %w", sessionID, err)
	}
	m.closeLocal(ctx, s)
	m.log.Info("checked_out", map[string]any{"session_id": s.ID, "orders": len(list)})
	return s, nil
}

// Accepting reports whether new orders may still be placed in the session.
func (m *Machine) Accepting(sessionID string) bool {
	s, ok := m.Session(sessionID)
	return ok && s.Active()
}

func (m *Machine) Session(id string) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// State reports where the session is in its lifecycle.
func (m *Machine) State(id string) domain.SessionState {
	s, _ := m.Session(id)
	return s.State()
}

// Track records a session fetched elsewhere. A checked-out session is
// never reopened.
func (m *Machine) Track(s domain.Session) { m.track(s) }

func (m *Machine) track(s domain.Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.ID]; ok && !cur.Active() {
		m.mu.Unlock()
		return
	}
	m.sessions[s.ID] = s
	watchers := m.watchers
	m.mu.Unlock()
	for _, fn := range watchers {
		fn(s)
	}
}

func (m *Machine) follow(ctx context.Context, sessionID string) {
	if m.rooms == nil {
		return
	}
	m.mu.Lock()
	_, joined := m.memberships[sessionID]
	m.mu.Unlock()
	if joined {
		return
	}
	ms, err := m.rooms.JoinSessionRoom(ctx, sessionID)
	if err != nil {
		m.log.Warn("session_room_join_failed", err, map[string]any{"session_id": sessionID})
		return
	}
	ms.On(domain.EventSessionCheckout, realtime.Decoded(m.log, m.remoteCheckout))
	m.mu.Lock()
	m.memberships[sessionID] = ms
	m.mu.Unlock()
}

func (m *Machine) remoteCheckout(s domain.Session) {
	if s.CheckoutAt == nil {
		now := time.Now().UTC()
		s.CheckoutAt = &now
	}
	if m.closeLocal(context.Background(), s) {
		m.log.Info("remote_checkout", map[string]any{"session_id": s.ID})
	}
}

// closeLocal records s as checked out and reports whether it was open.
func (m *Machine) closeLocal(ctx context.Context, s domain.Session) bool {
	m.mu.Lock()
	cur, ok := m.sessions[s.ID]
	if ok && !cur.Active() {
		m.mu.Unlock()
		return false
	}
	m.sessions[s.ID] = s
	ms := m.memberships[s.ID]
	delete(m.memberships, s.ID)
	watchers := m.watchers
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(s)
	}
	if ms != nil {
		// Leaving blocks on the hub; the read loop may be the caller.
		m.leaving.Add(1)
		go func() {
			defer m.leaving.Done()
			if err := ms.Leave(context.WithoutCancel(ctx)); err != nil {
				m.log.Warn("session_room_leave_failed", err, map[string]any{"session_id": s.ID})
			}
		}()
	}
	return true
}

// Close leaves every session room still held and waits for leaves started
// by checkouts. Call it before disconnecting the transport.
func (m *Machine) Close(ctx context.Context) error {
	m.mu.Lock()
	held := m.memberships
	m.memberships = make(map[string]*realtime.Membership)
	m.mu.Unlock()

	var errs []error
	for id, ms := range held {
		if err := ms.Leave(ctx); err != nil {
			errs = append(errs, fmt.Errorf("leaving session %s: %w", id, err))
		}
	}
	m.leaving.Wait()
	return errors.Join(errs...)
}
