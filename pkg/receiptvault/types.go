package receiptvault

import (
	"time"

	"github.com/google/uuid"
)

// HoldReason is the domain type for legal hold reasons. The set is closed:
// a hold request carrying any other value is rejected.
type HoldReason string

// Legal hold reason constants (typed).
const (
	HoldReasonLitigation            HoldReason = "litigation"
	HoldReasonRegulatoryInquiry     HoldReason = "regulatory_inquiry"
	HoldReasonInternalInvestigation HoldReason = "internal_investigation"
	HoldReasonSecurityIncident      HoldReason = "security_incident"
	HoldReasonTaxAudit              HoldReason = "tax_audit"
)

// IsValid returns true if the reason is one of the enumerated hold reasons.
func (r HoldReason) IsValid() bool {
	switch r {
	case HoldReasonLitigation, HoldReasonRegulatoryInquiry,
		HoldReasonInternalInvestigation, HoldReasonSecurityIncident,
		HoldReasonTaxAudit:
		return true
	}
	return false
}

// AuditAction is the domain type for audited actions.
type AuditAction string

// Audit action constants (typed).
const (
	AuditActionCreate       AuditAction = "create"
	AuditActionMetadataView AuditAction = "metadata_view"
	AuditActionDownload     AuditAction = "download"
	AuditActionHoldApply    AuditAction = "hold_apply"
	AuditActionHoldRemove   AuditAction = "hold_remove"
)

// AuditResult marks the outcome of an audited action.
type AuditResult string

// Audit result constants (typed).
const (
	AuditResultOK       AuditResult = "ok"
	AuditResultNotFound AuditResult = "not_found"
	AuditResultDenied   AuditResult = "denied"
	AuditResultError    AuditResult = "error"
)

// AnonymousActor is recorded when a request carries no actor identity.
const AnonymousActor = "anonymous"

// DocumentVersion identifies one legal document a receipt attests to.
type DocumentVersion struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	ContentHash string `json:"content_hash"`
}

// StorageLocator identifies the stored artifact: the object key plus the
// revision token returned by the vault store at write time.
type StorageLocator struct {
	ObjectKey string `json:"object_key"`
	VersionID string `json:"version_id,omitempty"`
}

// LegalHoldRecord is the only mutable sub-record of a Receipt. It cycles
// between held and not-held through the hold operations; every transition
// is audit-logged.
type LegalHoldRecord struct {
	Held      bool       `json:"held"`
	Reason    HoldReason `json:"reason,omitempty"`
	Actor     string     `json:"actor,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

// Receipt is the durable proof record for one acceptance event.
//
// Once both stores acknowledge the initial write, every field except
// LegalHold is frozen. There is no update path for the core fields and no
// delete path at all; RetainUntil establishes the minimum lifetime of the
// write-once lock on the stored artifact.
type Receipt struct {
	ID               uuid.UUID         `json:"id"`
	SubjectID        string            `json:"subject_id"`
	SubjectEmail     string            `json:"subject_email,omitempty"`
	AcceptedAt       time.Time         `json:"accepted_at"`
	DocumentVersions []DocumentVersion `json:"document_versions"`
	ArtifactHash     string            `json:"artifact_hash"`
	Locator          StorageLocator    `json:"storage_locator"`
	RetainUntil      time.Time         `json:"retain_until"`
	LegalHold        LegalHoldRecord   `json:"legal_hold"`
	CreatedAt        time.Time         `json:"created_at"`
}

// AuditEntry is one append-only row in the access trail. Entries are never
// updated or deleted.
type AuditEntry struct {
	ID            int64       `json:"id,omitempty"`
	ReceiptID     uuid.UUID   `json:"receipt_id"`
	ActorID       string      `json:"actor_id"`
	Action        AuditAction `json:"action"`
	Result        AuditResult `json:"result"`
	SourceAddress string      `json:"source_address,omitempty"`
	ClientAgent   string      `json:"client_agent,omitempty"`
	ClientApp     string      `json:"client_app,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// DownloadCredential is a short-lived, read-only grant for exactly one
// artifact revision.
type DownloadCredential struct {
	ReceiptID    uuid.UUID `json:"receipt_id"`
	URL          string    `json:"url"`
	ArtifactHash string    `json:"artifact_hash"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// OrphanKind classifies reconciliation tasks.
type OrphanKind string

// Orphan task kinds.
const (
	// OrphanKindMetadata marks an artifact that is durable in the vault but
	// has no metadata row yet. Repaired by replaying the insert.
	OrphanKindMetadata OrphanKind = "metadata_insert"
	// OrphanKindHoldSync marks a receipt whose metadata hold flag may
	// disagree with the vault-level flag. The vault flag is authoritative.
	OrphanKindHoldSync OrphanKind = "hold_sync"
)

// OrphanTask is one pending reconciliation item.
type OrphanTask struct {
	ReceiptID  uuid.UUID  `json:"receipt_id"`
	Kind       OrphanKind `json:"kind"`
	Snapshot   *Receipt   `json:"snapshot,omitempty"`
	Attempts   int        `json:"attempts"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}
