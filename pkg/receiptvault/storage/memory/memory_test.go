package memory

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

func putObject(t *testing.T, s *Store, key string) *receiptvault.PutResult {
	res, err := s.Put(context.Background(), receiptvault.PutRequest{
		ObjectKey:   key,
		Body:        strings.NewReader("artifact body"),
		ContentType: "text/plain; charset=utf-8",
		RetainUntil: time.Now().UTC().Add(time.Hour),
		Tags:        map[string]string{"subject_id": "u1"},
	})
	require.NoError(t, err)
	return res
}

func TestPutRefusesOccupiedKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	putObject(t, s, "R/u1/a")

	_, err := s.Put(ctx, receiptvault.PutRequest{
		ObjectKey: "R/u1/a",
		Body:      strings.NewReader("different body"),
	})
	assert.ErrorIs(t, err, receiptvault.ErrObjectExists)

	// The original bytes are untouched
	rc, err := s.Download(ctx, "R/u1/a", "")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "artifact body", string(body))
}

func TestHeadReflectsStoredState(t *testing.T) {
	s := New()
	ctx := context.Background()

	res := putObject(t, s, "R/u1/a")

	info, err := s.Head(ctx, "R/u1/a")
	require.NoError(t, err)
	assert.Equal(t, res.VersionID, info.VersionID)
	assert.Equal(t, res.ETag, info.ETag)
	assert.Equal(t, int64(len("artifact body")), info.Size)
	assert.Equal(t, "u1", info.Tags["subject_id"])
	assert.False(t, info.LegalHold)

	_, err = s.Head(ctx, "R/u1/missing")
	assert.Error(t, err)
}

func TestDownloadChecksRevision(t *testing.T) {
	s := New()
	ctx := context.Background()

	res := putObject(t, s, "R/u1/a")

	_, err := s.Download(ctx, "R/u1/a", res.VersionID)
	assert.NoError(t, err)

	_, err = s.Download(ctx, "R/u1/a", "other-revision")
	assert.Error(t, err)
}

func TestSetLegalHold(t *testing.T) {
	s := New()
	ctx := context.Background()

	res := putObject(t, s, "R/u1/a")

	require.NoError(t, s.SetLegalHold(ctx, "R/u1/a", res.VersionID, true))
	info, err := s.Head(ctx, "R/u1/a")
	require.NoError(t, err)
	assert.True(t, info.LegalHold)

	require.NoError(t, s.SetLegalHold(ctx, "R/u1/a", res.VersionID, false))
	info, err = s.Head(ctx, "R/u1/a")
	require.NoError(t, err)
	assert.False(t, info.LegalHold)

	assert.Error(t, s.SetLegalHold(ctx, "R/u1/missing", "", true))
}

func TestExtendRetentionOnlyForward(t *testing.T) {
	s := New()
	ctx := context.Background()

	res := putObject(t, s, "R/u1/a")
	info, err := s.Head(ctx, "R/u1/a")
	require.NoError(t, err)

	err = s.ExtendRetention(ctx, "R/u1/a", res.VersionID, info.RetainUntil.Add(-time.Minute))
	assert.ErrorIs(t, err, receiptvault.ErrRetentionShortened)

	later := info.RetainUntil.Add(24 * time.Hour)
	require.NoError(t, s.ExtendRetention(ctx, "R/u1/a", res.VersionID, later))

	info, err = s.Head(ctx, "R/u1/a")
	require.NoError(t, err)
	assert.True(t, info.RetainUntil.Equal(later))
}

func TestPresignDownload(t *testing.T) {
	s := New()
	ctx := context.Background()

	res := putObject(t, s, "R/u1/a")

	url, err := s.PresignDownload(ctx, "R/u1/a", res.VersionID, "receipt-a.txt", 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "R/u1/a")
	assert.Contains(t, url, res.VersionID)
	assert.Contains(t, url, "receipt-a.txt")

	_, err = s.PresignDownload(ctx, "R/u1/missing", "", "x.txt", time.Minute)
	assert.Error(t, err)
}
