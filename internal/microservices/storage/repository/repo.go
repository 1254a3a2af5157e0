package repository

import (
	"context"
	"errors"
	"time"

	"tableside/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type SessionRepositoryInterface interface {
	// CreateSession opens s at its table and marks the table occupied. A
	// table that already has an open session yields ErrConflict.
	CreateSession(ctx context.Context, s domain.Session) (domain.Session, domain.TableStatusChange, error)
	GetSession(ctx context.Context, id string) (domain.Session, error)
	GetSessionByCode(ctx context.Context, code string) (domain.Session, error)
	GetActiveSession(ctx context.Context, tableID string) (domain.Session, error)
	// AddMember is idempotent per client id.
	AddMember(ctx context.Context, code string, m domain.Member) (domain.Session, error)
	// Checkout closes the session and frees its table. Closed sessions and
	// sessions with unserved orders yield ErrConflict.
	Checkout(ctx context.Context, id string, at time.Time) (domain.Session, domain.TableStatusChange, error)
}

type OrderFilter struct {
	BranchID  string
	SessionID string
	TableID   string
	Statuses  []domain.OrderStatus
}

// UpdateFunc computes the next version of an order under lock. Returning
// changed == false leaves the stored order untouched.
type UpdateFunc func(cur domain.Order) (next domain.Order, changed bool, err error)

type OrderRepositoryInterface interface {
	// CreateOrder stores o in an open session; a closed one yields ErrConflict.
	CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, id, changedBy string, fn UpdateFunc) (domain.Order, bool, error)
	Timeline(ctx context.Context, id string, limit, offset int) ([]domain.StatusLogEntry, error)
}

type TableRepositoryInterface interface {
	ListTables(ctx context.Context, branchID string) ([]domain.Table, error)
	UpdateTableStatus(ctx context.Context, id string, status domain.TableStatus) (domain.Table, domain.TableStatusChange, error)
	ListMenu(ctx context.Context, branchID string) ([]domain.MenuItem, error)
}

type QueueRepositoryInterface interface {
	ListQueue(ctx context.Context, branchID string) ([]domain.QueueItem, error)
	GetQueueItem(ctx context.Context, id string) (domain.QueueItem, error)
	CreateQueueItem(ctx context.Context, q domain.QueueItem) (domain.QueueItem, error)
	UpdateQueueItem(ctx context.Context, q domain.QueueItem) (domain.QueueItem, error)
	DeleteQueueItem(ctx context.Context, id string) error
}

type Repository struct {
	SessionRepo SessionRepositoryInterface
	OrderRepo   OrderRepositoryInterface
	TableRepo   TableRepositoryInterface
	QueueRepo   QueueRepositoryInterface
}

func matches(f OrderFilter, o domain.Order) bool {
	if f.BranchID != "" && o.Branch.ID() != f.BranchID {
		return false
	}
	if f.SessionID != "" && o.SessionID != f.SessionID {
		return false
	}
	if f.TableID != "" && o.Table.ID() != f.TableID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == o.Status {
			return true
		}
	}
	return false
}
