package postgres

// Schema is the DDL for the receipt metadata store. Receipt rows are
// insert-only except for the hold_* columns; audit rows are insert-only,
// full stop. There are no DELETE paths.
const Schema = `
CREATE TABLE IF NOT EXISTS receipt (
	id UUID PRIMARY KEY,
	subject_id TEXT NOT NULL,
	subject_email TEXT NOT NULL DEFAULT '',
	accepted_at TIMESTAMPTZ NOT NULL,
	document_versions JSONB NOT NULL,
	artifact_hash TEXT NOT NULL,
	object_key TEXT NOT NULL,
	object_version TEXT NOT NULL DEFAULT '',
	retain_until TIMESTAMPTZ NOT NULL,
	hold_held BOOLEAN NOT NULL DEFAULT FALSE,
	hold_reason TEXT NOT NULL DEFAULT '',
	hold_actor TEXT NOT NULL DEFAULT '',
	hold_notes TEXT NOT NULL DEFAULT '',
	hold_applied_at TIMESTAMPTZ,
	hold_removed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS receipt_subject_idx ON receipt (subject_id, created_at DESC);

CREATE TABLE IF NOT EXISTS receipt_audit (
	id BIGSERIAL PRIMARY KEY,
	receipt_id UUID NOT NULL,
	actor_id TEXT NOT NULL DEFAULT 'anonymous',
	action TEXT NOT NULL,
	result TEXT NOT NULL DEFAULT 'ok',
	source_address TEXT NOT NULL DEFAULT '',
	client_agent TEXT NOT NULL DEFAULT '',
	client_app TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS receipt_audit_receipt_idx ON receipt_audit (receipt_id, occurred_at);

CREATE TABLE IF NOT EXISTS receipt_orphan (
	receipt_id UUID NOT NULL,
	kind TEXT NOT NULL,
	snapshot JSONB,
	attempts INT NOT NULL DEFAULT 0,
	enqueued_at TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS receipt_orphan_pending_idx
	ON receipt_orphan (receipt_id, kind) WHERE resolved_at IS NULL;
`
