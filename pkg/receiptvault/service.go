package receiptvault

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service is the main interface for the immutable receipt store.
//
// Write paths (CreateReceipt, the hold transitions, ExtendRetention) follow
// the dual-store protocol: the write-once vault is written first and is
// authoritative; the metadata repository is a read-optimized cache of the
// vault-enforced state. Read paths always produce exactly one audit entry,
// including on NotFound.
type Service interface {
	// CreateReceipt renders the acceptance artifact, stores it under a
	// write-once retention lock, and records the metadata row.
	CreateReceipt(ctx context.Context, req CreateReceiptRequest) (*Receipt, error)

	// GetReceiptMetadata returns the receipt fields without artifact bytes.
	GetReceiptMetadata(ctx context.Context, id uuid.UUID, info RequestInfo) (*Receipt, error)

	// GetDownloadCredential issues a short-lived signed URL scoped to
	// exactly one artifact revision.
	GetDownloadCredential(ctx context.Context, id uuid.UUID, info RequestInfo) (*DownloadCredential, error)

	// DownloadArtifact streams the stored bytes, verifying the recorded
	// artifact hash opportunistically.
	DownloadArtifact(ctx context.Context, id uuid.UUID, info RequestInfo) (io.ReadCloser, *Receipt, error)

	// ListReceiptsForSubject returns the subject's receipts, newest first.
	ListReceiptsForSubject(ctx context.Context, subjectID string) ([]*Receipt, error)

	// ApplyLegalHold transitions NO_HOLD -> HELD. Rejected if already held
	// or if the reason is outside the closed reason set.
	ApplyLegalHold(ctx context.Context, req ApplyLegalHoldRequest) (*Receipt, error)

	// RemoveLegalHold transitions HELD -> NO_HOLD. Rejected if not held.
	RemoveLegalHold(ctx context.Context, req RemoveLegalHoldRequest) (*Receipt, error)

	// ExtendRetention moves the retention date forward; shortening is
	// rejected by the vault store with ErrRetentionShortened.
	ExtendRetention(ctx context.Context, req ExtendRetentionRequest) (*Receipt, error)

	// GetAuditTrail lists the audit entries recorded for a receipt.
	GetAuditTrail(ctx context.Context, receiptID uuid.UUID) ([]*AuditEntry, error)
}
