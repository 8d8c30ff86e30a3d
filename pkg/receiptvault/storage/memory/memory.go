package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

// Store is an in-memory implementation of receiptvault.VaultStore that
// enforces the same write-once semantics a locked object store would:
// occupied keys refuse overwrite, retention dates only move forward, and a
// set legal hold blocks nothing here (there is no delete at all) but is
// tracked so callers observe the authoritative flag.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*object
}

type object struct {
	key         string
	versionID   string
	etag        string
	body        []byte
	contentType string
	retainUntil time.Time
	legalHold   bool
	tags        map[string]string
	storedAt    time.Time
}

// New creates a new in-memory vault store
func New() *Store {
	return &Store{objects: make(map[string]*object)}
}

func (s *Store) Put(ctx context.Context, req receiptvault.PutRequest) (*receiptvault.PutResult, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[req.ObjectKey]; exists {
		return nil, receiptvault.ErrObjectExists
	}

	tags := make(map[string]string, len(req.Tags))
	for k, v := range req.Tags {
		tags[k] = v
	}

	obj := &object{
		key:         req.ObjectKey,
		versionID:   uuid.NewString(),
		etag:        receiptvault.HashBytes(body),
		body:        body,
		contentType: req.ContentType,
		retainUntil: req.RetainUntil,
		tags:        tags,
		storedAt:    time.Now().UTC(),
	}
	s.objects[req.ObjectKey] = obj

	return &receiptvault.PutResult{
		ObjectKey: obj.key,
		VersionID: obj.versionID,
		ETag:      obj.etag,
	}, nil
}

func (s *Store) Head(ctx context.Context, objectKey string) (*receiptvault.VaultObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("object not found: %s", objectKey)
	}

	tags := make(map[string]string, len(obj.tags))
	for k, v := range obj.tags {
		tags[k] = v
	}
	return &receiptvault.VaultObjectInfo{
		ObjectKey:   obj.key,
		VersionID:   obj.versionID,
		ETag:        obj.etag,
		Size:        int64(len(obj.body)),
		RetainUntil: obj.retainUntil,
		LegalHold:   obj.legalHold,
		Tags:        tags,
		UpdatedAt:   obj.storedAt,
	}, nil
}

func (s *Store) Download(ctx context.Context, objectKey, versionID string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("object not found: %s", objectKey)
	}
	if versionID != "" && versionID != obj.versionID {
		return nil, fmt.Errorf("object revision not found: %s@%s", objectKey, versionID)
	}
	return io.NopCloser(bytes.NewReader(obj.body)), nil
}

func (s *Store) SetLegalHold(ctx context.Context, objectKey, versionID string, held bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, exists := s.objects[objectKey]
	if !exists {
		return fmt.Errorf("object not found: %s", objectKey)
	}
	if versionID != "" && versionID != obj.versionID {
		return fmt.Errorf("object revision not found: %s@%s", objectKey, versionID)
	}
	obj.legalHold = held
	return nil
}

func (s *Store) ExtendRetention(ctx context.Context, objectKey, versionID string, retainUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, exists := s.objects[objectKey]
	if !exists {
		return fmt.Errorf("object not found: %s", objectKey)
	}
	if retainUntil.Before(obj.retainUntil) {
		return receiptvault.ErrRetentionShortened
	}
	obj.retainUntil = retainUntil
	return nil
}

func (s *Store) PresignDownload(ctx context.Context, objectKey, versionID, downloadFilename string, expiry time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[objectKey]
	if !exists {
		return "", fmt.Errorf("object not found: %s", objectKey)
	}
	expires := time.Now().UTC().Add(expiry).Unix()
	return fmt.Sprintf("memory://%s?versionId=%s&expires=%d&filename=%s",
		obj.key, obj.versionID, expires, downloadFilename), nil
}
