package receiptvault

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrReceiptNotFound indicates no metadata row exists for the receipt id
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrMissingSubject indicates a creation request without a subject id
	ErrMissingSubject = errors.New("subject id is required")

	// ErrNoDocumentVersions indicates a creation request without any document versions
	ErrNoDocumentVersions = errors.New("at least one document version is required")

	// ErrObjectExists indicates a write-once key is already occupied.
	// During creation this is treated as success: the artifact from the
	// earlier attempt is durable and identical by construction.
	ErrObjectExists = errors.New("object already exists")

	// ErrReceiptExists indicates a metadata row already exists for the id
	ErrReceiptExists = errors.New("receipt already exists")

	// ErrAlreadyHeld indicates a hold apply on a receipt that is already held
	ErrAlreadyHeld = errors.New("receipt is already under legal hold")

	// ErrNotHeld indicates a hold remove on a receipt that is not held
	ErrNotHeld = errors.New("receipt is not under legal hold")

	// ErrInvalidHoldReason indicates a hold reason outside the closed reason set
	ErrInvalidHoldReason = errors.New("invalid legal hold reason")

	// ErrHoldConflict indicates a concurrent hold transition won the race;
	// the metadata row no longer matches the expected pre-state
	ErrHoldConflict = errors.New("legal hold state changed concurrently")

	// ErrRetentionShortened indicates an attempt to move retain-until backwards
	ErrRetentionShortened = errors.New("retention date cannot be shortened")

	// ErrPermissionDenied indicates the actor lacks the elevated-privilege capability
	ErrPermissionDenied = errors.New("permission denied")

	// ErrArtifactCorrupt indicates the stored bytes no longer match the
	// recorded artifact hash
	ErrArtifactCorrupt = errors.New("artifact hash mismatch")
)

// TransientError marks a store failure that exhausted its retry budget.
// Callers may safely retry the whole operation: creation is idempotent by
// receipt id, and hold transitions are guarded by pre-state checks.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be retried by the caller.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ReceiptError represents an error related to receipt operations
type ReceiptError struct {
	ReceiptID uuid.UUID
	Op        string
	Err       error
}

func (e *ReceiptError) Error() string {
	return fmt.Sprintf("receipt operation %s failed for receipt %s: %v", e.Op, e.ReceiptID, e.Err)
}

func (e *ReceiptError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to vault store operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
