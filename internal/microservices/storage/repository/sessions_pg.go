package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tableside/internal/domain"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) SessionRepositoryInterface {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, branch_id, table_id, join_code, check_in_at, checkout_at`

func (r *SessionRepository) CreateSession(ctx context.Context, s domain.Session) (domain.Session, domain.TableStatusChange, error) {
	var change domain.TableStatusChange
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var branchID string
		var status domain.TableStatus
		err := tx.QueryRow(ctx, `SELECT branch_id, status FROM dining_tables WHERE id=$1 FOR UPDATE`, s.Table.ID()).
			Scan(&branchID, &status)
		if err != nil {
			return notFound(err, "table "+s.Table.ID())
		}
		if branchID != s.Branch.ID() {
			return fmt.Errorf("table %s is not in branch %s: %w", s.Table.ID(), s.Branch.ID(), ErrNotFound)
		}

		var open int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE table_id=$1 AND checkout_at IS NULL`, s.Table.ID()).
			Scan(&open); err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("table %s already has an open session: %w", s.Table.ID(), ErrConflict)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO sessions (id, branch_id, table_id, join_code, check_in_at)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ID, s.Branch.ID(), s.Table.ID(), s.JoinCode, s.CheckInAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("session for table %s: %w", s.Table.ID(), ErrConflict)
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE dining_tables
			SET status='occupied', active_session_id=$2, checked_in_at=$3
			WHERE id=$1
		`, s.Table.ID(), s.ID, s.CheckInAt); err != nil {
			return fmt.Errorf("failed to occupy table: %w", err)
		}
		change = domain.TableStatusChange{
			TableID:        s.Table.ID(),
			BranchID:       branchID,
			PreviousStatus: status,
			NewStatus:      domain.TableOccupied,
			UpdatedAt:      s.CheckInAt,
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, change, err
	}
	out, err := r.GetSession(ctx, s.ID)
	return out, change, err
}

func (r *SessionRepository) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return loadSession(ctx, r.pool, `WHERE id=$1`, id)
}

func (r *SessionRepository) GetSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	return loadSession(ctx, r.pool, `WHERE join_code=$1`, code)
}

func (r *SessionRepository) GetActiveSession(ctx context.Context, tableID string) (domain.Session, error) {
	return loadSession(ctx, r.pool, `WHERE table_id=$1 AND checkout_at IS NULL`, tableID)
}

func (r *SessionRepository) AddMember(ctx context.Context, code string, m domain.Member) (domain.Session, error) {
	var id string
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var checkoutAt *time.Time
		err := tx.QueryRow(ctx, `SELECT id, checkout_at FROM sessions WHERE join_code=$1 FOR UPDATE`, code).
			Scan(&id, &checkoutAt)
		if err != nil {
			return notFound(err, "session "+code)
		}
		if checkoutAt != nil {
			return fmt.Errorf("session %s is checked out: %w", id, ErrConflict)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO session_members (session_id, client_id, label, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_id, client_id) DO NOTHING
		`, id, m.ClientID, m.Label, m.JoinedAt)
		return err
	})
	if err != nil {
		return domain.Session{}, err
	}
	return r.GetSession(ctx, id)
}

func (r *SessionRepository) Checkout(ctx context.Context, id string, at time.Time) (domain.Session, domain.TableStatusChange, error) {
	var change domain.TableStatusChange
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var tableID string
		var checkoutAt *time.Time
		err := tx.QueryRow(ctx, `SELECT table_id, checkout_at FROM sessions WHERE id=$1 FOR UPDATE`, id).
			Scan(&tableID, &checkoutAt)
		if err != nil {
			return notFound(err, "session "+id)
		}
		if checkoutAt != nil {
			return fmt.Errorf("session %s is already checked out: %w", id, ErrConflict)
		}

		var unserved int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM orders WHERE session_id=$1 AND status IN ('pending', 'preparing')
		`, id).Scan(&unserved); err != nil {
			return err
		}
		if unserved > 0 {
			return fmt.Errorf("session %s has %d unserved orders: %w", id, unserved, ErrConflict)
		}

		if _, err := tx.Exec(ctx, `UPDATE sessions SET checkout_at=$2 WHERE id=$1`, id, at); err != nil {
			return fmt.Errorf("failed to close session: %w", err)
		}

		var branchID string
		var status domain.TableStatus
		if err := tx.QueryRow(ctx, `SELECT branch_id, status FROM dining_tables WHERE id=$1 FOR UPDATE`, tableID).
			Scan(&branchID, &status); err != nil {
			return notFound(err, "table "+tableID)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE dining_tables
			SET status='available', active_session_id=NULL, checked_in_at=NULL, customer_label='', order_summary=''
			WHERE id=$1
		`, tableID); err != nil {
			return fmt.Errorf("failed to free table: %w", err)
		}
		change = domain.TableStatusChange{
			TableID:        tableID,
			BranchID:       branchID,
			PreviousStatus: status,
			NewStatus:      domain.TableAvailable,
			UpdatedAt:      at,
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, change, err
	}
	out, err := r.GetSession(ctx, id)
	return out, change, err
}

func loadSession(ctx context.Context, q querier, where string, arg any) (domain.Session, error) {
	var (
		s                 domain.Session
		branchID, tableID string
	)
	err := q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions `+where, arg).
		Scan(&s.ID, &branchID, &tableID, &s.JoinCode, &s.CheckInAt, &s.CheckoutAt)
	if err != nil {
		return domain.Session{}, notFound(err, "session")
	}
	s.Branch = domain.Reference[domain.Branch](branchID)
	s.Table = domain.Reference[domain.Table](tableID)

	rows, err := q.Query(ctx, `
		SELECT client_id, label, joined_at FROM session_members
		WHERE session_id=$1 ORDER BY joined_at, client_id
	`, s.ID)
	if err != nil {
		return domain.Session{}, err
	}
	s.Members, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Member, error) {
		var m domain.Member
		err := row.Scan(&m.ClientID, &m.Label, &m.JoinedAt)
		return m, err
	})
	if err != nil {
		return domain.Session{}, err
	}

	rows, err = q.Query(ctx, `SELECT id FROM orders WHERE session_id=$1 ORDER BY created_at, id`, s.ID)
	if err != nil {
		return domain.Session{}, err
	}
	s.OrderIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return domain.Session{}, err
	}
	return s, nil
}
