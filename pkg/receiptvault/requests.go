package receiptvault

import (
	"time"

	"github.com/google/uuid"
)

// Request/Response DTOs

// RequestInfo carries provenance for audit logging: who called, from where,
// with what client.
type RequestInfo struct {
	ActorID       string
	SourceAddress string
	ClientAgent   string
}

// CreateReceiptRequest contains parameters for issuing a new receipt.
//
// ReceiptID is optional. When zero a new id is generated before any I/O.
// Callers retrying after a TransientError should resend the same id: the
// replay either finds the already-stored artifact (treated as success) or
// proceeds cleanly, and the metadata insert is idempotent by id.
type CreateReceiptRequest struct {
	ReceiptID        uuid.UUID
	SubjectID        string
	SubjectEmail     string
	AcceptedAt       time.Time // zero means "capture server-side at render time"
	DocumentVersions []DocumentVersion
	RequestInfo      RequestInfo
}

// Validate checks the required creation fields.
func (r CreateReceiptRequest) Validate() error {
	if r.SubjectID == "" {
		return ErrMissingSubject
	}
	if len(r.DocumentVersions) == 0 {
		return ErrNoDocumentVersions
	}
	return nil
}

// ApplyLegalHoldRequest contains parameters for placing a legal hold.
type ApplyLegalHoldRequest struct {
	ReceiptID   uuid.UUID
	Reason      HoldReason
	Actor       string
	Notes       string
	RequestInfo RequestInfo
}

// RemoveLegalHoldRequest contains parameters for lifting a legal hold.
type RemoveLegalHoldRequest struct {
	ReceiptID   uuid.UUID
	Actor       string
	Notes       string
	RequestInfo RequestInfo
}

// ExtendRetentionRequest contains parameters for moving the retention date
// forward. Shortening is rejected by the vault store.
type ExtendRetentionRequest struct {
	ReceiptID   uuid.UUID
	RetainUntil time.Time
	Actor       string
	RequestInfo RequestInfo
}
