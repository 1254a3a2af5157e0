// Package tables keeps a branch's table board in step with status pushes.
package tables

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/realtime"
)

type Store interface {
	Tables(ctx context.Context, branchID string) ([]domain.Table, error)
	UpdateTableStatus(ctx context.Context, tableID string, status domain.TableStatus) (domain.Table, error)
}

// Board is one branch's tables.
type Board struct {
	store Store
	log   *logger.Logger

	mu       sync.Mutex
	branchID string
	tables   map[string]domain.Table
	watchers []func(domain.Table)
}

func NewBoard(store Store, lg *logger.Logger) *Board {
	if lg == nil {
		lg = logger.Nop()
	}
	return &Board{store: store, log: lg.With("tables"), tables: make(map[string]domain.Table)}
}

// OnChange registers fn to run after a table's status changes.
func (b *Board) OnChange(fn func(domain.Table)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, fn)
}

// Subscribe applies tableStatusChanged events from s.
func (b *Board) Subscribe(s realtime.Subscriber) *realtime.Subscription {
	return s.On(domain.EventTableStatusChanged, realtime.Decoded(b.log, func(c domain.TableStatusChange) { b.Apply(c) }))
}

// Load replaces the board with a fresh snapshot of the branch.
func (b *Board) Load(ctx context.Context, branchID string) error {
	list, err := b.store.Tables(ctx, branchID)
	if err != nil {
		return fmt.Errorf("loading tables of branch %s: %w", branchID, err)
	}
	b.mu.Lock()
	b.branchID = branchID
	b.tables = make(map[string]domain.Table, len(list))
	for _, t := range list {
		b.tables[t.ID] = t
	}
	b.mu.Unlock()
	b.log.Info("tables_loaded", map[string]any{"branch_id": branchID, "count": len(list)})
	return nil
}

// Apply takes the new status from a push. Only the status moves; the
// occupancy details are dropped when a table frees up. Unknown tables and
// repeated pushes change nothing.
func (b *Board) Apply(c domain.TableStatusChange) bool {
	b.mu.Lock()
	t, ok := b.tables[c.TableID]
	if !ok || (c.BranchID != "" && b.branchID != "" && c.BranchID != b.branchID) {
		b.mu.Unlock()
		b.log.Debug("table_event_ignored", map[string]any{"table_id": c.TableID, "branch_id": c.BranchID})
		return false
	}
	if t.Status == c.NewStatus {
		b.mu.Unlock()
		return false
	}
	t.Status = c.NewStatus
	if t.Status == domain.TableAvailable {
		t.ClearOccupancy()
	}
	b.tables[t.ID] = t
	watchers := b.watchers
	b.mu.Unlock()

	b.log.Info("table_status_changed", map[string]any{
		"table_id":   t.ID,
		"old_status": c.PreviousStatus,
		"new_status": t.Status,
	})
	for _, fn := range watchers {
		fn(t)
	}
	return true
}

// SetStatus overrides a table's status through the store and applies the
// stored result.
func (b *Board) SetStatus(ctx context.Context, tableID string, status domain.TableStatus) (domain.Table, error) {
	if !status.Valid() {
		return domain.Table{}, fmt.Errorf("unknown table status %q", status)
	}
	stored, err := b.store.UpdateTableStatus(ctx, tableID, status)
	if err != nil {
		return domain.Table{}, fmt.Errorf("setting table %s to %s: %w", tableID, status, err)
	}
	if stored.Status == domain.TableAvailable {
		stored.ClearOccupancy()
	}
	b.mu.Lock()
	prev, known := b.tables[tableID]
	b.tables[tableID] = stored
	watchers := b.watchers
	b.mu.Unlock()

	if !known || prev.Status != stored.Status {
		for _, fn := range watchers {
			fn(stored)
		}
	}
	return stored, nil
}

func (b *Board) Get(id string) (domain.Table, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tables[id]
	return t, ok
}

// List returns the tables ordered by number.
func (b *Board) List() []domain.Table {
	b.mu.Lock()
	out := make([]domain.Table, 0, len(b.tables))
	for _, t := range b.tables {
		out = append(out, t)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Counts tallies tables per status.
func (b *Board) Counts() map[domain.TableStatus]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[domain.TableStatus]int)
	for _, t := range b.tables {
		out[t.Status]++
	}
	return out
}
