package receiptvault

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// VaultStore defines the interface for write-once object storage backends.
//
// A VaultStore must enforce the write-once contract itself: Put refuses to
// overwrite an occupied key, the retention lock blocks deletion until the
// retention date, and the legal hold flag blocks deletion indefinitely while
// set. The metadata repository only caches this state; the vault is the
// source of truth.
type VaultStore interface {
	// Put stores the artifact under a write-once retention lock and returns
	// the locator of the stored revision. Returns ErrObjectExists if the key
	// is already occupied.
	Put(ctx context.Context, req PutRequest) (*PutResult, error)

	// Head retrieves vault-level state for a stored artifact, including the
	// enforced retention date and legal hold flag.
	Head(ctx context.Context, objectKey string) (*VaultObjectInfo, error)

	// Download retrieves the artifact bytes for one revision.
	Download(ctx context.Context, objectKey, versionID string) (io.ReadCloser, error)

	// SetLegalHold toggles the vault-level hold flag on one revision.
	SetLegalHold(ctx context.Context, objectKey, versionID string, held bool) error

	// ExtendRetention moves the retention date forward. Shortening must be
	// rejected with ErrRetentionShortened.
	ExtendRetention(ctx context.Context, objectKey, versionID string, retainUntil time.Time) error

	// PresignDownload returns a time-limited URL granting read-only access
	// to exactly one revision.
	PresignDownload(ctx context.Context, objectKey, versionID, downloadFilename string, expiry time.Duration) (string, error)
}

// PutRequest contains parameters for a write-once artifact write.
type PutRequest struct {
	ObjectKey   string
	Body        io.Reader
	ContentType string
	RetainUntil time.Time
	// Tags are stored as vault-level object tags so the artifact stays
	// self-describing even if the metadata row is lost.
	Tags map[string]string
}

// PutResult is the locator of the stored artifact revision.
type PutResult struct {
	ObjectKey string
	VersionID string
	ETag      string
}

// VaultObjectInfo describes the vault-enforced state of a stored artifact.
type VaultObjectInfo struct {
	ObjectKey   string
	VersionID   string
	ETag        string
	Size        int64
	RetainUntil time.Time
	LegalHold   bool
	Tags        map[string]string
	UpdatedAt   time.Time
}

// Repository defines the interface for receipt metadata and audit persistence.
type Repository interface {
	// Receipt operations. InsertReceipt is a strict insert keyed by the
	// receipt id; replays return ErrReceiptExists, making the dual-write
	// protocol and the reconciliation sweep naturally idempotent.
	InsertReceipt(ctx context.Context, receipt *Receipt) error
	GetReceipt(ctx context.Context, id uuid.UUID) (*Receipt, error)
	ListReceiptsBySubject(ctx context.Context, subjectID string) ([]*Receipt, error)

	// UpdateLegalHold replaces the hold sub-record only when the current
	// held flag matches expectHeld. A mismatch returns ErrHoldConflict;
	// a missing row returns ErrReceiptNotFound. No other receipt field is
	// ever written after the initial insert.
	UpdateLegalHold(ctx context.Context, id uuid.UUID, expectHeld bool, hold LegalHoldRecord) error

	// Audit operations (append-only)
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAuditByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*AuditEntry, error)
}

// OrphanQueue records reconciliation tasks for writes that straddled a
// partial failure. Tasks survive until a sweep resolves them.
type OrphanQueue interface {
	Enqueue(ctx context.Context, task OrphanTask) error
	Pending(ctx context.Context, limit int) ([]OrphanTask, error)
	Resolve(ctx context.Context, receiptID uuid.UUID, kind OrphanKind) error
	// Requeue bumps the attempt counter after a failed resolution.
	Requeue(ctx context.Context, task OrphanTask) error
}

// Authorizer is the external capability check consumed by hold operations.
type Authorizer interface {
	// HasElevatedPrivilege reports whether the actor may toggle legal holds
	// or extend retention.
	HasElevatedPrivilege(ctx context.Context, actorID string) bool
}

// Notifier is the best-effort outbound notification channel. Failures are
// logged and never block receipt creation.
type Notifier interface {
	ReceiptIssued(ctx context.Context, receipt *Receipt) error
}

// AuditLogger appends access trail entries. Implementations must never let
// a logging failure propagate into the primary operation's outcome.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}
