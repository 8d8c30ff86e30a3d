package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

func receiptFixture(subjectID string, createdAt time.Time) *receiptvault.Receipt {
	id := uuid.New()
	return &receiptvault.Receipt{
		ID:        id,
		SubjectID: subjectID,
		DocumentVersions: []receiptvault.DocumentVersion{
			{Name: "tos", Version: "2.0.0", ContentHash: receiptvault.HashDocument("terms")},
		},
		ArtifactHash: receiptvault.HashBytes([]byte(id.String())),
		Locator:      receiptvault.StorageLocator{ObjectKey: fmt.Sprintf("R/%s/%s", subjectID, id)},
		RetainUntil:  createdAt.Add(time.Hour),
		CreatedAt:    createdAt,
	}
}

func TestInsertAndGetReceipt(t *testing.T) {
	r := New()
	ctx := context.Background()

	receipt := receiptFixture("u1", time.Now().UTC())
	require.NoError(t, r.InsertReceipt(ctx, receipt))

	got, err := r.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.ID, got.ID)
	assert.Equal(t, receipt.ArtifactHash, got.ArtifactHash)

	// The stored row is isolated from caller mutation
	receipt.SubjectID = "mutated"
	got, err = r.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.SubjectID)
}

func TestInsertReceiptDuplicate(t *testing.T) {
	r := New()
	ctx := context.Background()

	receipt := receiptFixture("u1", time.Now().UTC())
	require.NoError(t, r.InsertReceipt(ctx, receipt))
	assert.ErrorIs(t, r.InsertReceipt(ctx, receipt), receiptvault.ErrReceiptExists)
}

func TestGetReceiptNotFound(t *testing.T) {
	r := New()
	_, err := r.GetReceipt(context.Background(), uuid.New())
	assert.ErrorIs(t, err, receiptvault.ErrReceiptNotFound)
}

func TestListReceiptsBySubjectOrdering(t *testing.T) {
	r := New()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	oldest := receiptFixture("u1", base)
	middle := receiptFixture("u1", base.Add(time.Minute))
	newest := receiptFixture("u1", base.Add(2*time.Minute))
	other := receiptFixture("u2", base.Add(3*time.Minute))

	for _, rec := range []*receiptvault.Receipt{middle, oldest, newest, other} {
		require.NoError(t, r.InsertReceipt(ctx, rec))
	}

	got, err := r.ListReceiptsBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, newest.ID, got[0].ID)
	assert.Equal(t, middle.ID, got[1].ID)
	assert.Equal(t, oldest.ID, got[2].ID)

	empty, err := r.ListReceiptsBySubject(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpdateLegalHold(t *testing.T) {
	r := New()
	ctx := context.Background()

	receipt := receiptFixture("u1", time.Now().UTC())
	require.NoError(t, r.InsertReceipt(ctx, receipt))

	now := time.Now().UTC()
	hold := receiptvault.LegalHoldRecord{
		Held:      true,
		Reason:    receiptvault.HoldReasonLitigation,
		Actor:     "legal-ops",
		AppliedAt: &now,
	}

	t.Run("apply with matching pre-state", func(t *testing.T) {
		require.NoError(t, r.UpdateLegalHold(ctx, receipt.ID, false, hold))
		got, err := r.GetReceipt(ctx, receipt.ID)
		require.NoError(t, err)
		assert.True(t, got.LegalHold.Held)
		assert.Equal(t, receiptvault.HoldReasonLitigation, got.LegalHold.Reason)
	})

	t.Run("stale pre-state conflicts", func(t *testing.T) {
		err := r.UpdateLegalHold(ctx, receipt.ID, false, hold)
		assert.ErrorIs(t, err, receiptvault.ErrHoldConflict)
	})

	t.Run("missing row is not found", func(t *testing.T) {
		err := r.UpdateLegalHold(ctx, uuid.New(), false, hold)
		assert.ErrorIs(t, err, receiptvault.ErrReceiptNotFound)
	})
}

func TestAppendAndListAudit(t *testing.T) {
	r := New()
	ctx := context.Background()

	receiptID := uuid.New()
	otherID := uuid.New()

	for i, action := range []receiptvault.AuditAction{
		receiptvault.AuditActionCreate,
		receiptvault.AuditActionMetadataView,
		receiptvault.AuditActionDownload,
	} {
		entry := &receiptvault.AuditEntry{
			ReceiptID:  receiptID,
			ActorID:    "u1",
			Action:     action,
			Result:     receiptvault.AuditResultOK,
			OccurredAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, r.AppendAudit(ctx, entry))
		assert.NotZero(t, entry.ID)
	}
	require.NoError(t, r.AppendAudit(ctx, &receiptvault.AuditEntry{
		ReceiptID: otherID,
		ActorID:   "u2",
		Action:    receiptvault.AuditActionMetadataView,
		Result:    receiptvault.AuditResultNotFound,
	}))

	entries, err := r.ListAuditByReceipt(ctx, receiptID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, receiptvault.AuditActionCreate, entries[0].Action)
	assert.Equal(t, 4, r.AuditCount())
}
