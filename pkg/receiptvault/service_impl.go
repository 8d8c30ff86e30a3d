package receiptvault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Default operating parameters. Retention establishes the minimum lifetime
// of the write-once lock; the credential TTL is deliberately minutes, not
// hours.
const (
	DefaultRetentionPeriod = 7 * 365 * 24 * time.Hour
	DefaultCredentialTTL   = 5 * time.Minute
	defaultMaxAttempts     = 5
)

// service implements the Service interface
type service struct {
	repo      Repository
	vault     VaultStore
	orphans   OrphanQueue
	audit     AuditLogger
	authz     Authorizer
	notifier  Notifier
	metrics   *Metrics
	retention time.Duration
	credTTL   time.Duration
	attempts  uint64
	now       func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repo = repo
	}
}

// WithVaultStore sets the write-once object store for the service
func WithVaultStore(store VaultStore) Option {
	return func(s *service) {
		s.vault = store
	}
}

// WithOrphanQueue sets the reconciliation task queue
func WithOrphanQueue(queue OrphanQueue) Option {
	return func(s *service) {
		s.orphans = queue
	}
}

// WithAuthorizer sets the elevated-privilege capability check
func WithAuthorizer(authz Authorizer) Option {
	return func(s *service) {
		s.authz = authz
	}
}

// WithNotifier sets the best-effort outbound notification channel
func WithNotifier(notifier Notifier) Option {
	return func(s *service) {
		s.notifier = notifier
	}
}

// WithMetrics sets the Prometheus metrics collection
func WithMetrics(metrics *Metrics) Option {
	return func(s *service) {
		s.metrics = metrics
	}
}

// WithRetentionPeriod sets the retention period applied to new receipts
func WithRetentionPeriod(d time.Duration) Option {
	return func(s *service) {
		s.retention = d
	}
}

// WithCredentialTTL sets the expiry of issued download credentials
func WithCredentialTTL(d time.Duration) Option {
	return func(s *service) {
		s.credTTL = d
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		retention: DefaultRetentionPeriod,
		credTTL:   DefaultCredentialTTL,
		attempts:  defaultMaxAttempts,
		now:       time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.vault == nil {
		return nil, fmt.Errorf("vault store is required")
	}
	if s.orphans == nil {
		s.orphans = NewMemoryOrphanQueue()
	}
	if s.audit == nil {
		s.audit = NewAuditLogger(s.repo, s.metrics)
	}
	if s.notifier == nil {
		s.notifier = NewNoopNotifier()
	}

	return s, nil
}

// CreateReceipt implements the dual-store write protocol: artifact first
// under a write-once retention lock, metadata second keyed by a
// pre-generated id, orphan task on partial failure. The artifact is never
// deleted once stored.
func (s *service) CreateReceipt(ctx context.Context, req CreateReceiptRequest) (*Receipt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// The id is fixed before any I/O so a caller retry replays the same
	// object key and metadata row.
	id := req.ReceiptID
	if id == uuid.Nil {
		id = uuid.New()
	}

	acceptedAt := req.AcceptedAt
	if acceptedAt.IsZero() {
		acceptedAt = s.now().UTC()
	}
	retainUntil := acceptedAt.Add(s.retention)

	artifact, err := RenderArtifact(ArtifactData{
		ReceiptID:        id,
		SubjectID:        req.SubjectID,
		SubjectEmail:     req.SubjectEmail,
		AcceptedAt:       acceptedAt,
		DocumentVersions: req.DocumentVersions,
		SourceAddress:    req.RequestInfo.SourceAddress,
		ClientAgent:      req.RequestInfo.ClientAgent,
	})
	if err != nil {
		return nil, err
	}

	key := objectKeyFor(req.SubjectID, id)
	var locator StorageLocator
	err = s.retry(ctx, "vault put", func() error {
		res, perr := s.vault.Put(ctx, PutRequest{
			ObjectKey:   key,
			Body:        bytes.NewReader(artifact.Bytes),
			ContentType: ArtifactContentType,
			RetainUntil: retainUntil,
			Tags: map[string]string{
				"receipt_id":    id.String(),
				"subject_id":    req.SubjectID,
				"accepted_at":   acceptedAt.Format(time.RFC3339),
				"artifact_hash": artifact.ArtifactHash,
			},
		})
		if perr != nil {
			if errors.Is(perr, ErrObjectExists) {
				// Idempotent replay: the artifact from an earlier attempt is
				// durable and byte-identical by construction.
				info, herr := s.vault.Head(ctx, key)
				if herr != nil {
					return herr
				}
				locator = StorageLocator{ObjectKey: key, VersionID: info.VersionID}
				return nil
			}
			return perr
		}
		locator = StorageLocator{ObjectKey: res.ObjectKey, VersionID: res.VersionID}
		return nil
	})
	if err != nil {
		// The vault write never happened: no orphan is possible.
		return nil, &ReceiptError{ReceiptID: id, Op: "create", Err: err}
	}

	receipt := &Receipt{
		ID:               id,
		SubjectID:        req.SubjectID,
		SubjectEmail:     req.SubjectEmail,
		AcceptedAt:       acceptedAt,
		DocumentVersions: req.DocumentVersions,
		ArtifactHash:     artifact.ArtifactHash,
		Locator:          locator,
		RetainUntil:      retainUntil,
		CreatedAt:        s.now().UTC(),
	}

	err = s.retry(ctx, "metadata insert", func() error {
		return s.repo.InsertReceipt(ctx, receipt)
	})
	if err != nil {
		if errors.Is(err, ErrReceiptExists) {
			// Replayed creation: the row landed on an earlier attempt or via
			// the reconciliation sweep.
			existing, gerr := s.repo.GetReceipt(ctx, id)
			if gerr == nil {
				s.recordAccess(ctx, id, AuditActionCreate, AuditResultOK, req.RequestInfo)
				return existing, nil
			}
			err = gerr
		}
		// Orphan artifact: durable in the vault, unindexed in metadata.
		// Deleting the vault write is categorically off the table once the
		// retention lock is set, so record the repair task instead.
		s.enqueueOrphan(ctx, OrphanTask{
			ReceiptID:  id,
			Kind:       OrphanKindMetadata,
			Snapshot:   receipt,
			EnqueuedAt: s.now().UTC(),
		})
		slog.Error("metadata insert failed after vault write, orphan recorded",
			"receipt_id", id, "object_key", key, "error", err)
		return nil, &ReceiptError{ReceiptID: id, Op: "create", Err: err}
	}

	s.recordAccess(ctx, id, AuditActionCreate, AuditResultOK, req.RequestInfo)

	if nerr := s.notifier.ReceiptIssued(ctx, receipt); nerr != nil {
		slog.Warn("receipt notification failed", "receipt_id", id, "error", nerr)
	}
	if s.metrics != nil {
		s.metrics.ReceiptsCreated.Inc()
	}

	return receipt, nil
}

func (s *service) GetReceiptMetadata(ctx context.Context, id uuid.UUID, info RequestInfo) (*Receipt, error) {
	receipt, err := s.repo.GetReceipt(ctx, id)
	s.recordAccess(ctx, id, AuditActionMetadataView, resultFor(err), info)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *service) GetDownloadCredential(ctx context.Context, id uuid.UUID, info RequestInfo) (*DownloadCredential, error) {
	receipt, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		s.recordAccess(ctx, id, AuditActionDownload, resultFor(err), info)
		return nil, err
	}

	filename := fmt.Sprintf("receipt-%s.txt", id)
	var url string
	err = s.retry(ctx, "presign download", func() error {
		var perr error
		url, perr = s.vault.PresignDownload(ctx, receipt.Locator.ObjectKey, receipt.Locator.VersionID, filename, s.credTTL)
		return perr
	})
	s.recordAccess(ctx, id, AuditActionDownload, resultFor(err), info)
	if err != nil {
		return nil, &ReceiptError{ReceiptID: id, Op: "download_credential", Err: err}
	}

	return &DownloadCredential{
		ReceiptID:    id,
		URL:          url,
		ArtifactHash: receipt.ArtifactHash,
		ExpiresAt:    s.now().UTC().Add(s.credTTL),
	}, nil
}

// DownloadArtifact reads the stored bytes and verifies the recorded
// artifact hash before handing them out.
func (s *service) DownloadArtifact(ctx context.Context, id uuid.UUID, info RequestInfo) (io.ReadCloser, *Receipt, error) {
	receipt, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		s.recordAccess(ctx, id, AuditActionDownload, resultFor(err), info)
		return nil, nil, err
	}

	rc, err := s.vault.Download(ctx, receipt.Locator.ObjectKey, receipt.Locator.VersionID)
	if err != nil {
		s.recordAccess(ctx, id, AuditActionDownload, AuditResultError, info)
		return nil, nil, &StorageError{Key: receipt.Locator.ObjectKey, Op: "download", Err: err}
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		s.recordAccess(ctx, id, AuditActionDownload, AuditResultError, info)
		return nil, nil, &StorageError{Key: receipt.Locator.ObjectKey, Op: "download", Err: err}
	}

	if got := HashBytes(body); got != receipt.ArtifactHash {
		s.recordAccess(ctx, id, AuditActionDownload, AuditResultError, info)
		slog.Error("artifact hash mismatch on download",
			"receipt_id", id, "recorded", receipt.ArtifactHash, "computed", got)
		return nil, nil, &ReceiptError{ReceiptID: id, Op: "download", Err: ErrArtifactCorrupt}
	}

	s.recordAccess(ctx, id, AuditActionDownload, AuditResultOK, info)
	return io.NopCloser(bytes.NewReader(body)), receipt, nil
}

func (s *service) ListReceiptsForSubject(ctx context.Context, subjectID string) ([]*Receipt, error) {
	return s.repo.ListReceiptsBySubject(ctx, subjectID)
}

// ApplyLegalHold transitions NO_HOLD -> HELD. The vault-level flag is set
// first so the object store refuses deletion independent of metadata; the
// metadata update is guarded by an optimistic pre-state check.
func (s *service) ApplyLegalHold(ctx context.Context, req ApplyLegalHoldRequest) (*Receipt, error) {
	if !req.Reason.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHoldReason, req.Reason)
	}
	if s.authz != nil && !s.authz.HasElevatedPrivilege(ctx, req.Actor) {
		s.recordAccess(ctx, req.ReceiptID, AuditActionHoldApply, AuditResultDenied, req.RequestInfo)
		return nil, ErrPermissionDenied
	}

	receipt, err := s.repo.GetReceipt(ctx, req.ReceiptID)
	if err != nil {
		s.recordAccess(ctx, req.ReceiptID, AuditActionHoldApply, resultFor(err), req.RequestInfo)
		return nil, err
	}
	if receipt.LegalHold.Held {
		return nil, &ReceiptError{ReceiptID: req.ReceiptID, Op: "hold_apply", Err: ErrAlreadyHeld}
	}

	err = s.retry(ctx, "vault legal hold", func() error {
		return s.vault.SetLegalHold(ctx, receipt.Locator.ObjectKey, receipt.Locator.VersionID, true)
	})
	if err != nil {
		return nil, &ReceiptError{ReceiptID: req.ReceiptID, Op: "hold_apply", Err: err}
	}

	now := s.now().UTC()
	hold := LegalHoldRecord{
		Held:      true,
		Reason:    req.Reason,
		Actor:     req.Actor,
		Notes:     req.Notes,
		AppliedAt: &now,
	}
	err = s.retry(ctx, "metadata hold update", func() error {
		return s.repo.UpdateLegalHold(ctx, req.ReceiptID, false, hold)
	})
	if err != nil {
		// The object is protected either way. Schedule a sync so metadata
		// catches up with the authoritative vault flag.
		s.enqueueOrphan(ctx, OrphanTask{
			ReceiptID:  req.ReceiptID,
			Kind:       OrphanKindHoldSync,
			EnqueuedAt: s.now().UTC(),
		})
		return nil, &ReceiptError{ReceiptID: req.ReceiptID, Op: "hold_apply", Err: err}
	}

	receipt.LegalHold = hold
	s.recordAccess(ctx, req.ReceiptID, AuditActionHoldApply, AuditResultOK, req.RequestInfo)
	if s.metrics != nil {
		s.metrics.HoldTransitions.WithLabelValues("apply").Inc()
	}
	return receipt, nil
}

// RemoveLegalHold transitions HELD -> NO_HOLD, same ordering as apply.
func (s *service) RemoveLegalHold(ctx context.Context, req RemoveLegalHoldRequest) (*Receipt, error) {
	if s.authz != nil && !s.authz.HasElevatedPrivilege(ctx, req.Actor) {
		s.recordAccess(ctx, req.ReceiptID, AuditActionHoldRemove, AuditResultDenied, req.RequestInfo)
		return nil, ErrPermissionDenied
	}

	receipt, err := s.repo.GetReceipt(ctx, req.ReceiptID)
	if err != nil {
		s.recordAccess(ctx, req.ReceiptID, AuditActionHoldRemove, resultFor(err), req.RequestInfo)
		return nil, err
	}
	if !receipt.LegalHold.Held {
		return nil, &ReceiptError{ReceiptID: req.ReceiptID, Op: "hold_remove", Err: ErrNotHeld}
	}

	err = s.retry(ctx, "vault legal hold", func() error {
		return s.vault.SetLegalHold(ctx, receipt.Locator.ObjectKey, receipt.Locator.VersionID, false)
	})
	if err != nil {
		return nil, &ReceiptError{ReceiptID: req.ReceiptID, Op: "hold_remove", Err: err}
	}

	now := s.now().UTC()
	hold := LegalHoldRecord{
		Held:      false,
		Actor:     req.Actor,
		Notes:     req.Notes,
		RemovedAt: &now,
	}
	err = s.retry(ctx, "metadata hold update", func() error {
		return s.repo.UpdateLegalHold(ctx, req.ReceiptID, true, hold)
	})
	if err != nil {
		s.enqueueOrphan(ctx, OrphanTask{
			ReceiptID:  req.ReceiptID,
			Kind:       OrphanKindHoldSync,
			EnqueuedAt: s.now().UTC(),
		})
		return nil, &ReceiptError{ReceiptID: req.ReceiptID, Op: "hold_remove", Err: err}
	}

	receipt.LegalHold = hold
	s.recordAccess(ctx, req.ReceiptID, AuditActionHoldRemove, AuditResultOK, req.RequestInfo)
	if s.metrics != nil {
		s.metrics.HoldTransitions.WithLabelValues("remove").Inc()
	}
	return receipt, nil
}

// ExtendRetention moves the vault-level retention date forward. The vault
// rejects shortening; the metadata row keeps the originally established
// minimum, the vault remains the source of truth for the current date.
func (s *service) ExtendRetention(ctx context.Context, req ExtendRetentionRequest) (*Receipt, error) {
	if s.authz != nil && !s.authz.HasElevatedPrivilege(ctx, req.Actor) {
		return nil, ErrPermissionDenied
	}

	receipt, err := s.repo.GetReceipt(ctx, req.ReceiptID)
	if err != nil {
		return nil, err
	}
	if req.RetainUntil.Before(receipt.RetainUntil) {
		return nil, &ReceiptError{ReceiptID: req.ReceiptID, Op: "extend_retention", Err: ErrRetentionShortened}
	}

	err = s.retry(ctx, "vault retention", func() error {
		return s.vault.ExtendRetention(ctx, receipt.Locator.ObjectKey, receipt.Locator.VersionID, req.RetainUntil)
	})
	if err != nil {
		return nil, &ReceiptError{ReceiptID: req.ReceiptID, Op: "extend_retention", Err: err}
	}
	return receipt, nil
}

func (s *service) GetAuditTrail(ctx context.Context, receiptID uuid.UUID) ([]*AuditEntry, error) {
	return s.repo.ListAuditByReceipt(ctx, receiptID)
}

// Helper methods

func objectKeyFor(subjectID string, id uuid.UUID) string {
	return fmt.Sprintf("R/%s/%s", subjectID, id)
}

func (s *service) recordAccess(ctx context.Context, id uuid.UUID, action AuditAction, result AuditResult, info RequestInfo) {
	s.audit.Record(ctx, AuditEntry{
		ReceiptID:     id,
		ActorID:       info.ActorID,
		Action:        action,
		Result:        result,
		SourceAddress: info.SourceAddress,
		ClientAgent:   info.ClientAgent,
		OccurredAt:    s.now().UTC(),
	})
}

func (s *service) enqueueOrphan(ctx context.Context, task OrphanTask) {
	if err := s.orphans.Enqueue(ctx, task); err != nil {
		// Last line of defense: the task is at least visible in the log.
		slog.Error("failed to enqueue reconciliation task",
			"receipt_id", task.ReceiptID, "kind", task.Kind, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.OrphansEnqueued.Inc()
	}
}

func resultFor(err error) AuditResult {
	switch {
	case err == nil:
		return AuditResultOK
	case errors.Is(err, ErrReceiptNotFound):
		return AuditResultNotFound
	default:
		return AuditResultError
	}
}

// retry runs fn under the fixed retry budget with exponential backoff.
// Permanent domain errors pass through unchanged; anything that exhausts
// the budget surfaces as a TransientError so the caller knows a replay is
// safe.
func (s *service) retry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	wrapped := func() error {
		err := fn()
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if s.metrics != nil {
			s.metrics.StoreRetries.Inc()
		}
		slog.Warn("retrying store operation", "op", op, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, s.attempts-1), ctx), notify)
	if err == nil {
		return nil
	}
	if isPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

func isPermanent(err error) bool {
	for _, sentinel := range []error{
		ErrObjectExists, ErrReceiptExists, ErrReceiptNotFound,
		ErrHoldConflict, ErrRetentionShortened,
		ErrAlreadyHeld, ErrNotHeld, ErrInvalidHoldReason,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
