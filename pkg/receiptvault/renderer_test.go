package receiptvault_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

func artifactFixture() receiptvault.ArtifactData {
	return receiptvault.ArtifactData{
		ReceiptID:    uuid.MustParse("0d0e73f4-26b8-4d4f-9d8e-3a1a3f9a2b11"),
		SubjectID:    "u1",
		SubjectEmail: "u1@example.com",
		AcceptedAt:   time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC),
		DocumentVersions: []receiptvault.DocumentVersion{
			{Name: "tos", Version: "2.0.0", ContentHash: receiptvault.HashDocument("terms")},
		},
		SourceAddress: "203.0.113.7",
		ClientAgent:   "curl/8.5.0",
	}
}

func TestRenderArtifactDeterministic(t *testing.T) {
	a, err := receiptvault.RenderArtifact(artifactFixture())
	require.NoError(t, err)
	b, err := receiptvault.RenderArtifact(artifactFixture())
	require.NoError(t, err)

	assert.Equal(t, a.Bytes, b.Bytes)
	assert.Equal(t, a.ArtifactHash, b.ArtifactHash)
	assert.Equal(t, receiptvault.HashBytes(a.Bytes), a.ArtifactHash)
}

func TestRenderArtifactContent(t *testing.T) {
	a, err := receiptvault.RenderArtifact(artifactFixture())
	require.NoError(t, err)

	text := string(a.Bytes)
	assert.True(t, strings.HasPrefix(text, "ACCEPTANCE RECEIPT\n"))
	assert.Contains(t, text, "Receipt-ID: 0d0e73f4-26b8-4d4f-9d8e-3a1a3f9a2b11")
	assert.Contains(t, text, "Subject-ID: u1")
	assert.Contains(t, text, "Accepted-At: 2026-02-14T09:30:00Z")
	assert.Contains(t, text, "name=tos version=2.0.0")
	assert.Contains(t, text, "source-address=203.0.113.7")
}

func TestRenderArtifactDistinguishesEvents(t *testing.T) {
	// Two acceptance events differing only in receipt id or timestamp must
	// not collapse into the same artifact.
	base := artifactFixture()

	otherID := base
	otherID.ReceiptID = uuid.MustParse("ffffffff-ffff-4fff-9fff-ffffffffffff")
	a, err := receiptvault.RenderArtifact(base)
	require.NoError(t, err)
	b, err := receiptvault.RenderArtifact(otherID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ArtifactHash, b.ArtifactHash)

	otherTime := base
	otherTime.AcceptedAt = base.AcceptedAt.Add(time.Second)
	c, err := receiptvault.RenderArtifact(otherTime)
	require.NoError(t, err)
	assert.NotEqual(t, a.ArtifactHash, c.ArtifactHash)
}

func TestRenderArtifactFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*receiptvault.ArtifactData)
		wantErr error
	}{
		{
			name:    "missing subject",
			mutate:  func(d *receiptvault.ArtifactData) { d.SubjectID = "" },
			wantErr: receiptvault.ErrMissingSubject,
		},
		{
			name:    "empty document set",
			mutate:  func(d *receiptvault.ArtifactData) { d.DocumentVersions = nil },
			wantErr: receiptvault.ErrNoDocumentVersions,
		},
		{
			name: "incomplete document version",
			mutate: func(d *receiptvault.ArtifactData) {
				d.DocumentVersions = []receiptvault.DocumentVersion{{Name: "tos"}}
			},
			wantErr: receiptvault.ErrNoDocumentVersions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := artifactFixture()
			tt.mutate(&data)
			a, err := receiptvault.RenderArtifact(data)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, a)
		})
	}
}
