package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tableside/internal/domain"
)

type QueueRepository struct {
	pool *pgxpool.Pool
}

func NewQueueRepository(pool *pgxpool.Pool) QueueRepositoryInterface {
	return &QueueRepository{pool: pool}
}

const queueColumns = `id, branch_id, party_name, contact, party_size, requested_at, status`

func scanQueueItem(row pgx.CollectableRow) (domain.QueueItem, error) {
	var q domain.QueueItem
	err := row.Scan(&q.ID, &q.BranchID, &q.PartyName, &q.Contact, &q.PartySize, &q.RequestedAt, &q.Status)
	return q, err
}

func (r *QueueRepository) ListQueue(ctx context.Context, branchID string) ([]domain.QueueItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+queueColumns+` FROM queue_items WHERE branch_id=$1 ORDER BY requested_at, id
	`, branchID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanQueueItem)
}

func (r *QueueRepository) GetQueueItem(ctx context.Context, id string) (domain.QueueItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+queueColumns+` FROM queue_items WHERE id=$1`, id)
	if err != nil {
		return domain.QueueItem{}, err
	}
	q, err := pgx.CollectOneRow(rows, scanQueueItem)
	if err != nil {
		return domain.QueueItem{}, notFound(err, "queue item "+id)
	}
	return q, nil
}

func (r *QueueRepository) CreateQueueItem(ctx context.Context, q domain.QueueItem) (domain.QueueItem, error) {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO queue_items (`+queueColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, q.ID, q.BranchID, q.PartyName, q.Contact, q.PartySize, q.RequestedAt, q.Status); err != nil {
		return domain.QueueItem{}, fmt.Errorf("failed to insert queue item: %w", err)
	}
	return q, nil
}

func (r *QueueRepository) UpdateQueueItem(ctx context.Context, q domain.QueueItem) (domain.QueueItem, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE queue_items SET party_name=$2, contact=$3, party_size=$4, status=$5
		WHERE id=$1
		RETURNING `+queueColumns, q.ID, q.PartyName, q.Contact, q.PartySize, q.Status)
	if err != nil {
		return domain.QueueItem{}, err
	}
	out, err := pgx.CollectOneRow(rows, scanQueueItem)
	if err != nil {
		return domain.QueueItem{}, notFound(err, "queue item "+q.ID)
	}
	return out, nil
}

func (r *QueueRepository) DeleteQueueItem(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM queue_items WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	return nil
}
