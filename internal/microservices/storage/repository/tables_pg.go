package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tableside/internal/domain"
)

type TableRepository struct {
	pool *pgxpool.Pool
}

func NewTableRepository(pool *pgxpool.Pool) TableRepositoryInterface {
	return &TableRepository{pool: pool}
}

const tableColumns = `id, branch_id, number, capacity, status, COALESCE(active_session_id, ''), checked_in_at, customer_label, order_summary`

func scanTable(row pgx.CollectableRow) (domain.Table, error) {
	var (
		t        domain.Table
		branchID string
	)
	err := row.Scan(&t.ID, &branchID, &t.Number, &t.Capacity, &t.Status,
		&t.ActiveSessionID, &t.CheckedInAt, &t.CustomerLabel, &t.OrderSummary)
	t.Branch = domain.Reference[domain.Branch](branchID)
	return t, err
}

func (r *TableRepository) ListTables(ctx context.Context, branchID string) ([]domain.Table, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tableColumns+` FROM dining_tables WHERE branch_id=$1 ORDER BY number`, branchID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanTable)
}

// UpdateTableStatus is the staff override. Freeing a table clears its
// occupancy details but leaves any open session alone.
func (r *TableRepository) UpdateTableStatus(ctx context.Context, id string, status domain.TableStatus) (domain.Table, domain.TableStatusChange, error) {
	var (
		out    domain.Table
		change domain.TableStatusChange
	)
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+tableColumns+` FROM dining_tables WHERE id=$1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		cur, err := pgx.CollectOneRow(rows, scanTable)
		if err != nil {
			return notFound(err, "table "+id)
		}

		if status == domain.TableAvailable {
			_, err = tx.Exec(ctx, `
				UPDATE dining_tables
				SET status=$2, active_session_id=NULL, checked_in_at=NULL, customer_label='', order_summary=''
				WHERE id=$1
			`, id, status)
		} else {
			_, err = tx.Exec(ctx, `UPDATE dining_tables SET status=$2 WHERE id=$1`, id, status)
		}
		if err != nil {
			return fmt.Errorf("failed to update table: %w", err)
		}

		out = cur
		out.Status = status
		if status == domain.TableAvailable {
			out.ClearOccupancy()
		}
		change = domain.TableStatusChange{
			TableID:        id,
			BranchID:       cur.Branch.ID(),
			PreviousStatus: cur.Status,
			NewStatus:      status,
			UpdatedAt:      time.Now().UTC(),
		}
		return nil
	})
	return out, change, err
}

func (r *TableRepository) ListMenu(ctx context.Context, branchID string) ([]domain.MenuItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price, category FROM menu_items WHERE branch_id=$1 ORDER BY category, name
	`, branchID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MenuItem, error) {
		var m domain.MenuItem
		err := row.Scan(&m.ID, &m.Name, &m.Price, &m.Category)
		return m, err
	})
}
