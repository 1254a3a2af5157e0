package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"tableside/internal/domain"
)

// Memory keeps everything in process. It applies the same guards as the
// postgres repositories and backs the "memory" storage driver and tests.
type Memory struct {
	mu       sync.Mutex
	branches map[string]domain.Branch
	tables   map[string]domain.Table
	menu     map[string][]domain.MenuItem
	sessions map[string]domain.Session
	orders   map[string]domain.Order
	log      map[string][]domain.StatusLogEntry
	queue    map[string]domain.QueueItem
}

func NewMemory() *Memory {
	return &Memory{
		branches: make(map[string]domain.Branch),
		tables:   make(map[string]domain.Table),
		menu:     make(map[string][]domain.MenuItem),
		sessions: make(map[string]domain.Session),
		orders:   make(map[string]domain.Order),
		log:      make(map[string][]domain.StatusLogEntry),
		queue:    make(map[string]domain.QueueItem),
	}
}

// Repository exposes m through the same aggregate the postgres driver uses.
func (m *Memory) Repository() *Repository {
	return &Repository{SessionRepo: m, OrderRepo: m, TableRepo: m, QueueRepo: m}
}

// Seed registers a branch with its tables and menu. Tables start available.
func (m *Memory) Seed(b domain.Branch, tables []domain.Table, menu []domain.MenuItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[b.ID] = b
	for _, t := range tables {
		t.Branch = domain.Reference[domain.Branch](b.ID)
		if t.Status == "" {
			t.Status = domain.TableAvailable
		}
		m.tables[t.ID] = t
	}
	m.menu[b.ID] = append(m.menu[b.ID], menu...)
}

func (m *Memory) CreateSession(_ context.Context, s domain.Session) (domain.Session, domain.TableStatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[s.Table.ID()]
	if !ok {
		return domain.Session{}, domain.TableStatusChange{}, fmt.Errorf("table %s: %w", s.Table.ID(), ErrNotFound)
	}
	if t.Branch.ID() != s.Branch.ID() {
		return domain.Session{}, domain.TableStatusChange{}, fmt.Errorf("table %s is not in branch %s: %w", t.ID, s.Branch.ID(), ErrNotFound)
	}
	for _, other := range m.sessions {
		if other.Table.ID() == t.ID && other.Active() {
			return domain.Session{}, domain.TableStatusChange{}, fmt.Errorf("table %s already has an open session: %w", t.ID, ErrConflict)
		}
		if other.JoinCode == s.JoinCode {
			return domain.Session{}, domain.TableStatusChange{}, fmt.Errorf("join code %s: %w", s.JoinCode, ErrConflict)
		}
	}

	change := domain.TableStatusChange{
		TableID:        t.ID,
		BranchID:       t.Branch.ID(),
		PreviousStatus: t.Status,
		NewStatus:      domain.TableOccupied,
		UpdatedAt:      s.CheckInAt,
	}
	checkIn := s.CheckInAt
	t.Status = domain.TableOccupied
	t.ActiveSessionID = s.ID
	t.CheckedInAt = &checkIn
	m.tables[t.ID] = t

	s.Members = nil
	s.OrderIDs = nil
	m.sessions[s.ID] = s
	return m.sessionLocked(s.ID), change, nil
}

func (m *Memory) GetSession(_ context.Context, id string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return domain.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return m.sessionLocked(id), nil
}

func (m *Memory) GetSessionByCode(_ context.Context, code string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.JoinCode == code {
			return m.sessionLocked(id), nil
		}
	}
	return domain.Session{}, fmt.Errorf("session %s: %w", code, ErrNotFound)
}

func (m *Memory) GetActiveSession(_ context.Context, tableID string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.Table.ID() == tableID && s.Active() {
			return m.sessionLocked(id), nil
		}
	}
	return domain.Session{}, fmt.Errorf("active session for table %s: %w", tableID, ErrNotFound)
}

func (m *Memory) AddMember(_ context.Context, code string, member domain.Member) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.JoinCode != code {
			continue
		}
		if !s.Active() {
			return domain.Session{}, fmt.Errorf("session %s is checked out: %w", id, ErrConflict)
		}
		if !s.HasMember(member.ClientID) {
			s.Members = append(s.Members, member)
			m.sessions[id] = s
		}
		return m.sessionLocked(id), nil
	}
	return domain.Session{}, fmt.Errorf("session %s: %w", code, ErrNotFound)
}

func (m *Memory) Checkout(_ context.Context, id string, at time.Time) (domain.Session, domain.TableStatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.TableStatusChange{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if !s.Active() {
		return domain.Session{}, domain.TableStatusChange{}, fmt.Errorf("session %s is already checked out: %w", id, ErrConflict)
	}
	unserved := 0
	for _, o := range m.orders {
		if o.SessionID == id && o.Status.Before(domain.OrderServed) {
			unserved++
		}
	}
	if unserved > 0 {
		return domain.Session{}, domain.TableStatusChange{}, fmt.Errorf("session %s has %d unserved orders: %w", id, unserved, ErrConflict)
	}

	s.CheckoutAt = &at
	m.sessions[id] = s

	t := m.tables[s.Table.ID()]
	change := domain.TableStatusChange{
		TableID:        t.ID,
		BranchID:       t.Branch.ID(),
		PreviousStatus: t.Status,
		NewStatus:      domain.TableAvailable,
		UpdatedAt:      at,
	}
	t.Status = domain.TableAvailable
	t.ClearOccupancy()
	m.tables[t.ID] = t
	return m.sessionLocked(id), change, nil
}

// sessionLocked returns a copy of the session with its order ids filled in.
func (m *Memory) sessionLocked(id string) domain.Session {
	s := m.sessions[id]
	s.Members = slices.Clone(s.Members)
	var orders []domain.Order
	for _, o := range m.orders {
		if o.SessionID == id {
			orders = append(orders, o)
		}
	}
	sortOrders(orders)
	s.OrderIDs = make([]string, len(orders))
	for i, o := range orders {
		s.OrderIDs[i] = o.ID
	}
	return s
}

func (m *Memory) CreateOrder(_ context.Context, o domain.Order) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[o.SessionID]
	if !ok {
		return domain.Order{}, fmt.Errorf("session %s: %w", o.SessionID, ErrNotFound)
	}
	if !s.Active() {
		return domain.Order{}, fmt.Errorf("session %s is checked out: %w", s.ID, ErrConflict)
	}
	if _, dup := m.orders[o.ID]; dup {
		return domain.Order{}, fmt.Errorf("order %s: %w", o.ID, ErrConflict)
	}
	o.Table = domain.Reference[domain.Table](s.Table.ID())
	o.Branch = domain.Reference[domain.Branch](s.Branch.ID())
	o = o.Clone()
	m.orders[o.ID] = o
	m.log[o.ID] = append(m.log[o.ID], domain.StatusLogEntry{
		OrderID: o.ID, Status: o.Status, ChangedBy: o.ClientID, ChangedAt: o.CreatedAt, Notes: "order placed",
	})
	return o.Clone(), nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o.Clone(), nil
}

func (m *Memory) ListOrders(_ context.Context, f OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if matches(f, o) {
			out = append(out, o.Clone())
		}
	}
	sortOrders(out)
	return out, nil
}

func (m *Memory) UpdateOrder(_ context.Context, id, changedBy string, fn UpdateFunc) (domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.orders[id]
	if !ok {
		return domain.Order{}, false, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	next, changed, err := fn(cur.Clone())
	if err != nil {
		return domain.Order{}, false, err
	}
	if !changed {
		return cur.Clone(), false, nil
	}
	next.UpdatedAt = time.Now().UTC()
	m.orders[id] = next.Clone()
	if next.Status != cur.Status {
		m.log[id] = append(m.log[id], domain.StatusLogEntry{
			OrderID: id, Status: next.Status, ChangedBy: changedBy, ChangedAt: next.UpdatedAt,
		})
	}
	return next.Clone(), true, nil
}

func (m *Memory) Timeline(_ context.Context, id string, limit, offset int) ([]domain.StatusLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.log[id]
	if offset >= len(entries) {
		return []domain.StatusLogEntry{}, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return slices.Clone(entries), nil
}

func (m *Memory) ListTables(_ context.Context, branchID string) ([]domain.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Table{}
	for _, t := range m.tables {
		if t.Branch.ID() == branchID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *Memory) UpdateTableStatus(_ context.Context, id string, status domain.TableStatus) (domain.Table, domain.TableStatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	if !ok {
		return domain.Table{}, domain.TableStatusChange{}, fmt.Errorf("table %s: %w", id, ErrNotFound)
	}
	change := domain.TableStatusChange{
		TableID:        id,
		BranchID:       t.Branch.ID(),
		PreviousStatus: t.Status,
		NewStatus:      status,
		UpdatedAt:      time.Now().UTC(),
	}
	t.Status = status
	if status == domain.TableAvailable {
		t.ClearOccupancy()
	}
	m.tables[id] = t
	return t, change, nil
}

func (m *Memory) ListMenu(_ context.Context, branchID string) ([]domain.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.menu[branchID])
	if out == nil {
		out = []domain.MenuItem{}
	}
	return out, nil
}

func (m *Memory) ListQueue(_ context.Context, branchID string) ([]domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.QueueItem{}
	for _, q := range m.queue {
		if q.BranchID == branchID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetQueueItem(_ context.Context, id string) (domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queue[id]
	if !ok {
		return domain.QueueItem{}, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	return q, nil
}

func (m *Memory) CreateQueueItem(_ context.Context, q domain.QueueItem) (domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[q.BranchID]; !ok {
		return domain.QueueItem{}, fmt.Errorf("branch %s: %w", q.BranchID, ErrNotFound)
	}
	m.queue[q.ID] = q
	return q, nil
}

func (m *Memory) UpdateQueueItem(_ context.Context, q domain.QueueItem) (domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.queue[q.ID]
	if !ok {
		return domain.QueueItem{}, fmt.Errorf("queue item %s: %w", q.ID, ErrNotFound)
	}
	cur.PartyName, cur.Contact, cur.PartySize, cur.Status = q.PartyName, q.Contact, q.PartySize, q.Status
	m.queue[q.ID] = cur
	return cur, nil
}

func (m *Memory) DeleteQueueItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queue[id]; !ok {
		return fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	delete(m.queue, id)
	return nil
}

func sortOrders(list []domain.Order) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
