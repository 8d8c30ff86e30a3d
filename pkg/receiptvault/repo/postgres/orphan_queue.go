package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

// OrphanQueue implements receiptvault.OrphanQueue on the receipt_orphan
// table, so reconciliation tasks survive process restarts.
type OrphanQueue struct {
	db DBTX
}

// NewOrphanQueue creates a new PostgreSQL orphan queue
func NewOrphanQueue(db DBTX) *OrphanQueue {
	return &OrphanQueue{db: db}
}

// NewOrphanQueueWithPool creates a new PostgreSQL orphan queue with connection pool
func NewOrphanQueueWithPool(pool *pgxpool.Pool) *OrphanQueue {
	return &OrphanQueue{db: pool}
}

func (q *OrphanQueue) Enqueue(ctx context.Context, task receiptvault.OrphanTask) error {
	query := `
		INSERT INTO receipt_orphan (receipt_id, kind, snapshot, attempts, enqueued_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (receipt_id, kind) WHERE resolved_at IS NULL DO NOTHING`

	_, err := q.db.Exec(ctx, query,
		task.ReceiptID, string(task.Kind), task.Snapshot, task.Attempts, task.EnqueuedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("database error in enqueue orphan: %s (code: %s)", pgErr.Message, pgErr.Code)
		}
		return fmt.Errorf("database error in enqueue orphan: %w", err)
	}
	return nil
}

func (q *OrphanQueue) Pending(ctx context.Context, limit int) ([]receiptvault.OrphanTask, error) {
	query := `
		SELECT receipt_id, kind, snapshot, attempts, enqueued_at
		FROM receipt_orphan
		WHERE resolved_at IS NULL
		ORDER BY enqueued_at
		LIMIT $1`

	rows, err := q.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("database error in pending orphans: %w", err)
	}
	defer rows.Close()

	var tasks []receiptvault.OrphanTask
	for rows.Next() {
		var task receiptvault.OrphanTask
		var kind string
		if err := rows.Scan(&task.ReceiptID, &kind, &task.Snapshot, &task.Attempts, &task.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("database error in scan orphan: %w", err)
		}
		task.Kind = receiptvault.OrphanKind(kind)
		tasks = append(tasks, task)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("database error in iterate orphans: %w", err)
	}

	return tasks, nil
}

func (q *OrphanQueue) Resolve(ctx context.Context, receiptID uuid.UUID, kind receiptvault.OrphanKind) error {
	query := `
		UPDATE receipt_orphan SET resolved_at = NOW()
		WHERE receipt_id = $1 AND kind = $2 AND resolved_at IS NULL`

	if _, err := q.db.Exec(ctx, query, receiptID, string(kind)); err != nil {
		return fmt.Errorf("database error in resolve orphan: %w", err)
	}
	return nil
}

func (q *OrphanQueue) Requeue(ctx context.Context, task receiptvault.OrphanTask) error {
	query := `
		UPDATE receipt_orphan SET attempts = $3
		WHERE receipt_id = $1 AND kind = $2 AND resolved_at IS NULL`

	if _, err := q.db.Exec(ctx, query, task.ReceiptID, string(task.Kind), task.Attempts); err != nil {
		return fmt.Errorf("database error in requeue orphan: %w", err)
	}
	return nil
}
