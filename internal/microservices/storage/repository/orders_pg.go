package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tableside/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) OrderRepositoryInterface {
	return &OrderRepository{pool: pool}
}

const orderColumns = `id, session_id, table_id, branch_id, client_id, display_name, total, status, created_at, updated_at`

func (r *OrderRepository) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var tableID, branchID string
		var checkoutAt *time.Time
		err := tx.QueryRow(ctx, `SELECT table_id, branch_id, checkout_at FROM sessions WHERE id=$1 FOR SHARE`, o.SessionID).
			Scan(&tableID, &branchID, &checkoutAt)
		if err != nil {
			return notFound(err, "session "+o.SessionID)
		}
		if checkoutAt != nil {
			return fmt.Errorf("session %s is checked out: %w", o.SessionID, ErrConflict)
		}
		o.Table = domain.Reference[domain.Table](tableID)
		o.Branch = domain.Reference[domain.Branch](branchID)

		if _, err := tx.Exec(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, o.ID, o.SessionID, tableID, branchID, o.ClientID, o.DisplayName, o.Total, o.Status, o.CreatedAt, o.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i, l := range o.Lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_lines (order_id, position, menu_item_id, name, unit_price, quantity, note, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, o.ID, i, l.MenuItem.ID(), l.Name, l.UnitPrice, l.Quantity, l.Note, l.Status); err != nil {
				return fmt.Errorf("failed to insert order line %s: %w", l.Name, err)
			}
		}

		return logStatus(ctx, tx, o.ID, o.Status, o.ClientID, "order placed", o.CreatedAt)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return r.GetOrder(ctx, o.ID)
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return loadOrder(ctx, r.pool, id, false)
}

func (r *OrderRepository) ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.BranchID != "" {
		add("branch_id=$%d", f.BranchID)
	}
	if f.SessionID != "" {
		add("session_id=$%d", f.SessionID)
	}
	if f.TableID != "" {
		add("table_id=$%d", f.TableID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Lines, err = loadLines(ctx, r.pool, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// UpdateOrder locks the order row, lets fn compute the next version and
// writes it back with a status log entry, all in one transaction.
func (r *OrderRepository) UpdateOrder(ctx context.Context, id, changedBy string, fn UpdateFunc) (domain.Order, bool, error) {
	var (
		out     domain.Order
		changed bool
	)
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := loadOrder(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next, ok, err := fn(cur)
		if err != nil {
			return err
		}
		out, changed = cur, ok
		if !ok {
			return nil
		}

		next.UpdatedAt = time.Now().UTC()
		if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, id, next.Status, next.UpdatedAt); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		for i := range next.Lines {
			if i < len(cur.Lines) && cur.Lines[i].Status == next.Lines[i].Status {
				continue
			}
			if _, err := tx.Exec(ctx, `UPDATE order_lines SET status=$3 WHERE order_id=$1 AND position=$2`,
				id, i, next.Lines[i].Status); err != nil {
				return fmt.Errorf("failed to update order line %d: %w", i, err)
			}
		}
		if next.Status != cur.Status {
			if err := logStatus(ctx, tx, id, next.Status, changedBy, "", next.UpdatedAt); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Order{}, false, err
	}
	return out, changed, nil
}

func (r *OrderRepository) Timeline(ctx context.Context, id string, limit, offset int) ([]domain.StatusLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, status, changed_by, changed_at, notes
		FROM order_status_log WHERE order_id=$1
		ORDER BY changed_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, id, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StatusLogEntry, error) {
		var e domain.StatusLogEntry
		err := row.Scan(&e.OrderID, &e.Status, &e.ChangedBy, &e.ChangedAt, &e.Notes)
		return e, err
	})
}

func logStatus(ctx context.Context, q querier, orderID string, status domain.OrderStatus, changedBy, notes string, at time.Time) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at, notes)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, status, changedBy, at, notes); err != nil {
		return fmt.Errorf("failed to insert order status log: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (domain.Order, error) {
	var (
		o                 domain.Order
		tableID, branchID string
	)
	err := row.Scan(&o.ID, &o.SessionID, &tableID, &branchID, &o.ClientID, &o.DisplayName,
		&o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	o.Table = domain.Reference[domain.Table](tableID)
	o.Branch = domain.Reference[domain.Branch](branchID)
	return o, err
}

func loadOrder(ctx context.Context, q querier, id string, lock bool) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return domain.Order{}, err
	}
	o, err := pgx.CollectOneRow(rows, scanOrder)
	if err != nil {
		return domain.Order{}, notFound(err, "order "+id)
	}
	if o.Lines, err = loadLines(ctx, q, id); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func loadLines(ctx context.Context, q querier, orderID string) ([]domain.OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT menu_item_id, name, unit_price, quantity, note, status
		FROM order_lines WHERE order_id=$1 ORDER BY position
	`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderLine, error) {
		var (
			l      domain.OrderLine
			itemID string
		)
		err := row.Scan(&itemID, &l.Name, &l.UnitPrice, &l.Quantity, &l.Note, &l.Status)
		l.MenuItem = domain.Reference[domain.MenuItem](itemID)
		return l, err
	})
}
