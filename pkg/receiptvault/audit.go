package receiptvault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mssola/useragent"
)

// repositoryAuditLogger appends audit entries through the metadata
// repository's append-only audit table.
//
// The log is strictly best-effort with respect to the operation it
// describes: a failed append is reported via slog and the failure counter,
// never to the caller of the primary operation.
type repositoryAuditLogger struct {
	repo    Repository
	metrics *Metrics
}

// NewAuditLogger creates an AuditLogger backed by the repository's audit
// table. metrics may be nil.
func NewAuditLogger(repo Repository, metrics *Metrics) AuditLogger {
	return &repositoryAuditLogger{repo: repo, metrics: metrics}
}

func (l *repositoryAuditLogger) Record(ctx context.Context, entry AuditEntry) {
	if entry.ActorID == "" {
		entry.ActorID = AnonymousActor
	}
	if entry.Result == "" {
		entry.Result = AuditResultOK
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if entry.ClientApp == "" && entry.ClientAgent != "" {
		entry.ClientApp = normalizeClientAgent(entry.ClientAgent)
	}

	if err := l.repo.AppendAudit(ctx, &entry); err != nil {
		slog.Error("audit append failed",
			"receipt_id", entry.ReceiptID,
			"action", entry.Action,
			"actor", entry.ActorID,
			"error", err)
		if l.metrics != nil {
			l.metrics.AuditLogFailures.Inc()
		}
	}
}

// normalizeClientAgent reduces a raw User-Agent header to a short
// "name version" form for reporting. The raw header is kept alongside.
func normalizeClientAgent(raw string) string {
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return ""
	}
	if version == "" {
		return name
	}
	return fmt.Sprintf("%s %s", name, version)
}
