package receiptvault

import (
	"context"
	"log/slog"
)

// NoopNotifier is a no-operation implementation of Notifier
// Useful when no outbound channel is configured or for testing
type NoopNotifier struct{}

// NewNoopNotifier creates a new no-operation notifier
func NewNoopNotifier() Notifier {
	return &NoopNotifier{}
}

// ReceiptIssued does nothing and returns nil
func (n *NoopNotifier) ReceiptIssued(ctx context.Context, receipt *Receipt) error {
	return nil
}

// LogNotifier writes notification events to the structured log instead of an
// outbound channel. Useful in development.
type LogNotifier struct{}

// NewLogNotifier creates a notifier that logs instead of sending
func NewLogNotifier() Notifier {
	return &LogNotifier{}
}

// ReceiptIssued logs the issuance and returns nil
func (n *LogNotifier) ReceiptIssued(ctx context.Context, receipt *Receipt) error {
	slog.Info("receipt issued",
		"receipt_id", receipt.ID,
		"subject_id", receipt.SubjectID,
		"subject_email", receipt.SubjectEmail)
	return nil
}

// AllowAllAuthorizer grants the elevated-privilege capability to every
// actor. Only suitable for tests and local development.
type AllowAllAuthorizer struct{}

// NewAllowAllAuthorizer creates an authorizer that always grants
func NewAllowAllAuthorizer() Authorizer {
	return &AllowAllAuthorizer{}
}

// HasElevatedPrivilege always returns true
func (a *AllowAllAuthorizer) HasElevatedPrivilege(ctx context.Context, actorID string) bool {
	return true
}

// StaticAuthorizer grants the elevated-privilege capability to a fixed set
// of actor ids. Stands in for the external authorization collaborator.
type StaticAuthorizer struct {
	allowed map[string]struct{}
}

// NewStaticAuthorizer creates an authorizer granting only the given actors
func NewStaticAuthorizer(actorIDs ...string) Authorizer {
	allowed := make(map[string]struct{}, len(actorIDs))
	for _, id := range actorIDs {
		allowed[id] = struct{}{}
	}
	return &StaticAuthorizer{allowed: allowed}
}

// HasElevatedPrivilege returns true if the actor is in the allowed set
func (a *StaticAuthorizer) HasElevatedPrivilege(ctx context.Context, actorID string) bool {
	_, ok := a.allowed[actorID]
	return ok
}
