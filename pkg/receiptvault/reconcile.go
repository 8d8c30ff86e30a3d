package receiptvault

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reconciler repairs the two failure windows left open by the dual-store
// protocol: orphan artifacts (vault write without a metadata row) and hold
// flags where metadata trails the authoritative vault state. It only ever
// writes toward consistency; it never deletes from either store.
type Reconciler struct {
	repo    Repository
	vault   VaultStore
	orphans OrphanQueue
	metrics *Metrics
	batch   int
}

// NewReconciler creates a reconciliation sweep over the given stores.
// metrics may be nil.
func NewReconciler(repo Repository, vault VaultStore, orphans OrphanQueue, metrics *Metrics) *Reconciler {
	return &Reconciler{
		repo:    repo,
		vault:   vault,
		orphans: orphans,
		metrics: metrics,
		batch:   100,
	}
}

// Sweep processes one batch of pending tasks. It returns the number of
// tasks resolved; tasks that fail again are requeued with a bumped attempt
// counter.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	tasks, err := r.orphans.Pending(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, task := range tasks {
		var terr error
		switch task.Kind {
		case OrphanKindMetadata:
			terr = r.repairMetadata(ctx, task)
		case OrphanKindHoldSync:
			terr = r.repairHold(ctx, task.ReceiptID)
		default:
			slog.Warn("unknown reconciliation task kind", "kind", task.Kind, "receipt_id", task.ReceiptID)
			terr = nil
		}

		if terr != nil {
			slog.Warn("reconciliation attempt failed",
				"receipt_id", task.ReceiptID, "kind", task.Kind,
				"attempts", task.Attempts+1, "error", terr)
			task.Attempts++
			if qerr := r.orphans.Requeue(ctx, task); qerr != nil {
				slog.Error("failed to requeue reconciliation task",
					"receipt_id", task.ReceiptID, "kind", task.Kind, "error", qerr)
			}
			continue
		}

		if rerr := r.orphans.Resolve(ctx, task.ReceiptID, task.Kind); rerr != nil {
			slog.Error("failed to mark reconciliation task resolved",
				"receipt_id", task.ReceiptID, "kind", task.Kind, "error", rerr)
			continue
		}
		resolved++
		if r.metrics != nil {
			r.metrics.OrphansResolved.Inc()
		}
	}
	return resolved, nil
}

// Run sweeps on the given interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				slog.Error("reconciliation sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("reconciliation sweep resolved tasks", "resolved", n)
			}
		}
	}
}

// repairMetadata replays the missing insert from the task snapshot. The
// insert is keyed by the receipt id, so a row that landed in the meantime
// makes the task a no-op.
func (r *Reconciler) repairMetadata(ctx context.Context, task OrphanTask) error {
	if task.Snapshot == nil {
		return errors.New("orphan task has no receipt snapshot")
	}
	err := r.repo.InsertReceipt(ctx, task.Snapshot)
	if err != nil && !errors.Is(err, ErrReceiptExists) {
		return err
	}
	return nil
}

// repairHold copies the authoritative vault-level hold flag onto the
// metadata row.
func (r *Reconciler) repairHold(ctx context.Context, id uuid.UUID) error {
	receipt, err := r.repo.GetReceipt(ctx, id)
	if err != nil {
		return err
	}
	info, err := r.vault.Head(ctx, receipt.Locator.ObjectKey)
	if err != nil {
		return err
	}
	if info.LegalHold == receipt.LegalHold.Held {
		return nil
	}

	now := time.Now().UTC()
	hold := receipt.LegalHold
	hold.Held = info.LegalHold
	if info.LegalHold {
		hold.AppliedAt = &now
	} else {
		hold.RemovedAt = &now
	}
	err = r.repo.UpdateLegalHold(ctx, id, receipt.LegalHold.Held, hold)
	if err != nil && !errors.Is(err, ErrHoldConflict) {
		return err
	}
	// A conflict means another writer already moved the row; the next sweep
	// re-checks against the vault.
	return nil
}

// MemoryOrphanQueue is an in-memory OrphanQueue. Tasks do not survive a
// restart; production deployments should use the postgres-backed queue.
type MemoryOrphanQueue struct {
	mu    sync.Mutex
	tasks map[orphanKey]OrphanTask
	order []orphanKey
}

type orphanKey struct {
	id   uuid.UUID
	kind OrphanKind
}

// NewMemoryOrphanQueue creates a new in-memory orphan queue
func NewMemoryOrphanQueue() *MemoryOrphanQueue {
	return &MemoryOrphanQueue{tasks: make(map[orphanKey]OrphanTask)}
}

func (q *MemoryOrphanQueue) Enqueue(ctx context.Context, task OrphanTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := orphanKey{id: task.ReceiptID, kind: task.Kind}
	if _, exists := q.tasks[key]; !exists {
		q.order = append(q.order, key)
	}
	q.tasks[key] = task
	return nil
}

func (q *MemoryOrphanQueue) Pending(ctx context.Context, limit int) ([]OrphanTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result []OrphanTask
	for _, key := range q.order {
		if limit > 0 && len(result) >= limit {
			break
		}
		if task, exists := q.tasks[key]; exists {
			result = append(result, task)
		}
	}
	return result, nil
}

func (q *MemoryOrphanQueue) Resolve(ctx context.Context, receiptID uuid.UUID, kind OrphanKind) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := orphanKey{id: receiptID, kind: kind}
	delete(q.tasks, key)
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

func (q *MemoryOrphanQueue) Requeue(ctx context.Context, task OrphanTask) error {
	return q.Enqueue(ctx, task)
}

// Depth returns the number of pending tasks. Used by tests and health
// reporting.
func (q *MemoryOrphanQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
