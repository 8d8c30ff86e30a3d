package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements receiptvault.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return receiptvault.ErrReceiptExists
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return receiptvault.ErrReceiptNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Receipt operations

func (r *Repository) InsertReceipt(ctx context.Context, receipt *receiptvault.Receipt) error {
	query := `
		INSERT INTO receipt (
			id, subject_id, subject_email, accepted_at, document_versions,
			artifact_hash, object_key, object_version, retain_until,
			hold_held, hold_reason, hold_actor, hold_notes,
			hold_applied_at, hold_removed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.Exec(ctx, query,
		receipt.ID, receipt.SubjectID, receipt.SubjectEmail, receipt.AcceptedAt,
		receipt.DocumentVersions, receipt.ArtifactHash,
		receipt.Locator.ObjectKey, receipt.Locator.VersionID, receipt.RetainUntil,
		receipt.LegalHold.Held, string(receipt.LegalHold.Reason),
		receipt.LegalHold.Actor, receipt.LegalHold.Notes,
		receipt.LegalHold.AppliedAt, receipt.LegalHold.RemovedAt,
		receipt.CreatedAt)

	if err != nil {
		return r.handlePostgresError("insert receipt", err)
	}

	return nil
}

const receiptColumns = `
	id, subject_id, subject_email, accepted_at, document_versions,
	artifact_hash, object_key, object_version, retain_until,
	hold_held, hold_reason, hold_actor, hold_notes,
	hold_applied_at, hold_removed_at, created_at`

func scanReceipt(row pgx.Row) (*receiptvault.Receipt, error) {
	var receipt receiptvault.Receipt
	var holdReason string
	err := row.Scan(
		&receipt.ID, &receipt.SubjectID, &receipt.SubjectEmail, &receipt.AcceptedAt,
		&receipt.DocumentVersions, &receipt.ArtifactHash,
		&receipt.Locator.ObjectKey, &receipt.Locator.VersionID, &receipt.RetainUntil,
		&receipt.LegalHold.Held, &holdReason,
		&receipt.LegalHold.Actor, &receipt.LegalHold.Notes,
		&receipt.LegalHold.AppliedAt, &receipt.LegalHold.RemovedAt,
		&receipt.CreatedAt)
	if err != nil {
		return nil, err
	}
	receipt.LegalHold.Reason = receiptvault.HoldReason(holdReason)
	return &receipt, nil
}

func (r *Repository) GetReceipt(ctx context.Context, id uuid.UUID) (*receiptvault.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipt WHERE id = $1`

	receipt, err := scanReceipt(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, receiptvault.ErrReceiptNotFound
		}
		return nil, r.handlePostgresError("get receipt", err)
	}

	return receipt, nil
}

func (r *Repository) ListReceiptsBySubject(ctx context.Context, subjectID string) ([]*receiptvault.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipt
		WHERE subject_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, subjectID)
	if err != nil {
		return nil, r.handlePostgresError("list receipts", err)
	}
	defer rows.Close()

	var receipts []*receiptvault.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan receipt", err)
		}
		receipts = append(receipts, receipt)
	}

	if err = rows.Err(); err != nil {
		return nil, r.handlePostgresError("iterate receipt rows", err)
	}

	return receipts, nil
}

// UpdateLegalHold updates the hold sub-record only when the current held
// flag matches the expected pre-state. The WHERE clause is the optimistic
// check that serializes concurrent hold transitions.
func (r *Repository) UpdateLegalHold(ctx context.Context, id uuid.UUID, expectHeld bool, hold receiptvault.LegalHoldRecord) error {
	query := `
		UPDATE receipt SET
			hold_held = $3, hold_reason = $4, hold_actor = $5,
			hold_notes = $6, hold_applied_at = $7, hold_removed_at = $8
		WHERE id = $1 AND hold_held = $2`

	tag, err := r.db.Exec(ctx, query, id, expectHeld,
		hold.Held, string(hold.Reason), hold.Actor, hold.Notes,
		hold.AppliedAt, hold.RemovedAt)
	if err != nil {
		return r.handlePostgresError("update legal hold", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a lost race
		if _, err := r.GetReceipt(ctx, id); err != nil {
			return err
		}
		return receiptvault.ErrHoldConflict
	}

	return nil
}

// Audit operations

func (r *Repository) AppendAudit(ctx context.Context, entry *receiptvault.AuditEntry) error {
	query := `
		INSERT INTO receipt_audit (
			receipt_id, actor_id, action, result,
			source_address, client_agent, client_app, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		entry.ReceiptID, entry.ActorID, string(entry.Action), string(entry.Result),
		entry.SourceAddress, entry.ClientAgent, entry.ClientApp, entry.OccurredAt,
	).Scan(&entry.ID)

	if err != nil {
		return r.handlePostgresError("append audit", err)
	}

	return nil
}

func (r *Repository) ListAuditByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*receiptvault.AuditEntry, error) {
	query := `
		SELECT id, receipt_id, actor_id, action, result,
			   source_address, client_agent, client_app, occurred_at
		FROM receipt_audit
		WHERE receipt_id = $1
		ORDER BY occurred_at, id`

	rows, err := r.db.Query(ctx, query, receiptID)
	if err != nil {
		return nil, r.handlePostgresError("list audit", err)
	}
	defer rows.Close()

	var entries []*receiptvault.AuditEntry
	for rows.Next() {
		var entry receiptvault.AuditEntry
		var action, result string
		if err := rows.Scan(
			&entry.ID, &entry.ReceiptID, &entry.ActorID, &action, &result,
			&entry.SourceAddress, &entry.ClientAgent, &entry.ClientApp,
			&entry.OccurredAt); err != nil {
			return nil, r.handlePostgresError("scan audit entry", err)
		}
		entry.Action = receiptvault.AuditAction(action)
		entry.Result = receiptvault.AuditResult(result)
		entries = append(entries, &entry)
	}

	if err = rows.Err(); err != nil {
		return nil, r.handlePostgresError("iterate audit rows", err)
	}

	return entries, nil
}
