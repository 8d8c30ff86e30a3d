package receiptvault

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ArtifactContentType is the MIME type of rendered receipt artifacts.
const ArtifactContentType = "text/plain; charset=utf-8"

// ArtifactData is the input to the renderer: everything that appears in the
// stored artifact.
type ArtifactData struct {
	ReceiptID        uuid.UUID
	SubjectID        string
	SubjectEmail     string
	AcceptedAt       time.Time
	DocumentVersions []DocumentVersion
	SourceAddress    string
	ClientAgent      string
}

// RenderedArtifact is the output of the renderer: the artifact bytes and
// their digest.
type RenderedArtifact struct {
	Bytes        []byte
	ArtifactHash string
}

// RenderArtifact produces the fixed-layout plain-text acceptance artifact.
//
// The layout is a pure function of ArtifactData: identical inputs yield
// byte-identical artifacts. The receipt id and accepted-at timestamp are
// part of the rendered bytes and therefore of the artifact hash, so two
// acceptance events with otherwise identical inputs remain forensically
// distinguishable. The row creation time (created_at) is deliberately not
// rendered: it is assigned after storage and lives only in metadata.
//
// Rendering fails closed: no partial artifact is produced when the subject
// id is missing or the document set is empty.
func RenderArtifact(data ArtifactData) (*RenderedArtifact, error) {
	if data.SubjectID == "" {
		return nil, ErrMissingSubject
	}
	if len(data.DocumentVersions) == 0 {
		return nil, ErrNoDocumentVersions
	}
	for i, dv := range data.DocumentVersions {
		if dv.Name == "" || dv.Version == "" {
			return nil, fmt.Errorf("document version %d is incomplete: %w", i, ErrNoDocumentVersions)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("ACCEPTANCE RECEIPT\n")
	buf.WriteString("==================\n")
	fmt.Fprintf(&buf, "Receipt-ID: %s\n", data.ReceiptID)
	fmt.Fprintf(&buf, "Subject-ID: %s\n", data.SubjectID)
	if data.SubjectEmail != "" {
		fmt.Fprintf(&buf, "Subject-Email: %s\n", data.SubjectEmail)
	}
	fmt.Fprintf(&buf, "Accepted-At: %s\n", data.AcceptedAt.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&buf, "Hash-Algorithm: %s\n", HashAlgorithm)
	buf.WriteString("\nDocuments:\n")
	for _, dv := range data.DocumentVersions {
		fmt.Fprintf(&buf, "  - name=%s version=%s content-hash=%s\n", dv.Name, dv.Version, dv.ContentHash)
	}
	buf.WriteString("\nProvenance:\n")
	fmt.Fprintf(&buf, "  source-address=%s\n", data.SourceAddress)
	fmt.Fprintf(&buf, "  client-agent=%s\n", data.ClientAgent)

	b := buf.Bytes()
	return &RenderedArtifact{
		Bytes:        b,
		ArtifactHash: HashBytes(b),
	}, nil
}
