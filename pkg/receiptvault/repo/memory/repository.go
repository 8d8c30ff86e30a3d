package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

// Repository implements receiptvault.Repository using in-memory storage
type Repository struct {
	mu                sync.RWMutex
	receipts          map[uuid.UUID]*receiptvault.Receipt
	receiptsBySubject map[string][]uuid.UUID
	audit             []receiptvault.AuditEntry
	nextAuditID       int64
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		receipts:          make(map[uuid.UUID]*receiptvault.Receipt),
		receiptsBySubject: make(map[string][]uuid.UUID),
		nextAuditID:       1,
	}
}

// Receipt operations

func (r *Repository) InsertReceipt(ctx context.Context, receipt *receiptvault.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.receipts[receipt.ID]; exists {
		return receiptvault.ErrReceiptExists
	}

	// Store a copy so later caller mutations cannot reach the "row"
	receiptCopy := cloneReceipt(receipt)
	r.receipts[receipt.ID] = receiptCopy
	r.receiptsBySubject[receipt.SubjectID] = append(r.receiptsBySubject[receipt.SubjectID], receipt.ID)

	return nil
}

func (r *Repository) GetReceipt(ctx context.Context, id uuid.UUID) (*receiptvault.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	receipt, exists := r.receipts[id]
	if !exists {
		return nil, receiptvault.ErrReceiptNotFound
	}
	return cloneReceipt(receipt), nil
}

func (r *Repository) ListReceiptsBySubject(ctx context.Context, subjectID string) ([]*receiptvault.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.receiptsBySubject[subjectID]
	result := make([]*receiptvault.Receipt, 0, len(ids))
	for _, id := range ids {
		if receipt, exists := r.receipts[id]; exists {
			result = append(result, cloneReceipt(receipt))
		}
	}

	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// UpdateLegalHold is the only mutation permitted after insert. It applies
// only when the current held flag matches expectHeld, serializing
// concurrent hold transitions at the row.
func (r *Repository) UpdateLegalHold(ctx context.Context, id uuid.UUID, expectHeld bool, hold receiptvault.LegalHoldRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	receipt, exists := r.receipts[id]
	if !exists {
		return receiptvault.ErrReceiptNotFound
	}
	if receipt.LegalHold.Held != expectHeld {
		return receiptvault.ErrHoldConflict
	}

	receipt.LegalHold = hold
	return nil
}

// Audit operations

func (r *Repository) AppendAudit(ctx context.Context, entry *receiptvault.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entryCopy := *entry
	entryCopy.ID = r.nextAuditID
	r.nextAuditID++
	if entryCopy.OccurredAt.IsZero() {
		entryCopy.OccurredAt = time.Now().UTC()
	}
	r.audit = append(r.audit, entryCopy)
	entry.ID = entryCopy.ID

	return nil
}

func (r *Repository) ListAuditByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*receiptvault.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*receiptvault.AuditEntry
	for i := range r.audit {
		if r.audit[i].ReceiptID == receiptID {
			entryCopy := r.audit[i]
			result = append(result, &entryCopy)
		}
	}
	return result, nil
}

// AuditCount returns the total number of audit entries. Used by tests.
func (r *Repository) AuditCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.audit)
}

func cloneReceipt(receipt *receiptvault.Receipt) *receiptvault.Receipt {
	receiptCopy := *receipt
	receiptCopy.DocumentVersions = append([]receiptvault.DocumentVersion(nil), receipt.DocumentVersions...)
	if receipt.LegalHold.AppliedAt != nil {
		t := *receipt.LegalHold.AppliedAt
		receiptCopy.LegalHold.AppliedAt = &t
	}
	if receipt.LegalHold.RemovedAt != nil {
		t := *receipt.LegalHold.RemovedAt
		receiptCopy.LegalHold.RemovedAt = &t
	}
	return &receiptCopy
}
