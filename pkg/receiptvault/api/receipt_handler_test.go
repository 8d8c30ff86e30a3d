package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
	"github.com/tendant/receipt-vault/pkg/receiptvault/repo/memory"
	memorystorage "github.com/tendant/receipt-vault/pkg/receiptvault/storage/memory"
)

func setupTestRouter(t *testing.T) chi.Router {
	svc, err := receiptvault.New(
		receiptvault.WithRepository(memory.New()),
		receiptvault.WithVaultStore(memorystorage.New()),
	)
	require.NoError(t, err)

	handler := NewReceiptHandler(svc, nil)
	r := chi.NewRouter()
	r.Mount("/receipts", handler.Routes())
	r.Mount("/subjects", handler.SubjectRoutes())
	return r
}

func createTestReceipt(t *testing.T, router chi.Router, subjectID string) ReceiptResponse {
	body, err := json.Marshal(CreateReceiptRequest{
		SubjectID: subjectID,
		DocumentVersions: []DocumentVersionEntry{
			{Name: "tos", Version: "2.0.0", ContentHash: receiptvault.HashDocument("terms")},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/receipts/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ActorHeader, subjectID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp ReceiptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateReceiptHandler(t *testing.T) {
	router := setupTestRouter(t)

	resp := createTestReceipt(t, router, "u1")
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "u1", resp.SubjectID)
	assert.NotEmpty(t, resp.ArtifactHash)
	assert.False(t, resp.LegalHold.Held)
}

func TestCreateReceiptHandlerValidation(t *testing.T) {
	router := setupTestRouter(t)

	body, err := json.Marshal(CreateReceiptRequest{SubjectID: "u1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/receipts/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReceiptHandler(t *testing.T) {
	router := setupTestRouter(t)
	created := createTestReceipt(t, router, "u1")

	req := httptest.NewRequest(http.MethodGet, "/receipts/"+created.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ReceiptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.ID)
	assert.Equal(t, created.ArtifactHash, resp.ArtifactHash)
}

func TestGetReceiptHandlerNotFound(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/receipts/0d0e73f4-26b8-4d4f-9d8e-3a1a3f9a2b11", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReceiptHandlerInvalidID(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/receipts/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadCredentialHandler(t *testing.T) {
	router := setupTestRouter(t)
	created := createTestReceipt(t, router, "u1")

	req := httptest.NewRequest(http.MethodGet, "/receipts/"+created.ID+"/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DownloadCredentialResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.ReceiptID)
	assert.NotEmpty(t, resp.URL)
	assert.Equal(t, created.ArtifactHash, resp.ArtifactHash)
}

func TestDownloadArtifactHandler(t *testing.T) {
	router := setupTestRouter(t)
	created := createTestReceipt(t, router, "u1")

	req := httptest.NewRequest(http.MethodGet, "/receipts/"+created.ID+"/artifact", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, receiptvault.ArtifactContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, created.ArtifactHash, receiptvault.HashBytes(rec.Body.Bytes()))
}

func TestLegalHoldHandlers(t *testing.T) {
	router := setupTestRouter(t)
	created := createTestReceipt(t, router, "u1")

	holdBody, err := json.Marshal(HoldRequest{Reason: "litigation", Notes: "case 2026-0142"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/receipts/"+created.ID+"/hold", bytes.NewReader(holdBody))
	req.Header.Set(ActorHeader, "legal-ops")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ReceiptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.LegalHold.Held)
	assert.Equal(t, "litigation", resp.LegalHold.Reason)
	assert.Equal(t, "legal-ops", resp.LegalHold.Actor)

	// Double apply conflicts
	req = httptest.NewRequest(http.MethodPost, "/receipts/"+created.ID+"/hold", bytes.NewReader(holdBody))
	req.Header.Set(ActorHeader, "legal-ops")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Remove
	req = httptest.NewRequest(http.MethodDelete, "/receipts/"+created.ID+"/hold", nil)
	req.Header.Set(ActorHeader, "legal-ops")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.LegalHold.Held)

	// Remove again conflicts
	req = httptest.NewRequest(http.MethodDelete, "/receipts/"+created.ID+"/hold", nil)
	req.Header.Set(ActorHeader, "legal-ops")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLegalHoldHandlerInvalidReason(t *testing.T) {
	router := setupTestRouter(t)
	created := createTestReceipt(t, router, "u1")

	holdBody, err := json.Marshal(HoldRequest{Reason: "because"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/receipts/"+created.ID+"/hold", bytes.NewReader(holdBody))
	req.Header.Set(ActorHeader, "legal-ops")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditTrailHandler(t *testing.T) {
	router := setupTestRouter(t)
	created := createTestReceipt(t, router, "u1")

	// One metadata view to land on the trail alongside the create
	req := httptest.NewRequest(http.MethodGet, "/receipts/"+created.ID, nil)
	req.Header.Set(ActorHeader, "auditor")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/receipts/"+created.ID+"/audit", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []AuditEntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "create", entries[0].Action)
	assert.Equal(t, "metadata_view", entries[1].Action)
	assert.Equal(t, "auditor", entries[1].ActorID)
	assert.NotEmpty(t, entries[1].ClientApp)
}

func TestListReceiptsForSubjectHandler(t *testing.T) {
	router := setupTestRouter(t)
	createTestReceipt(t, router, "u1")
	createTestReceipt(t, router, "u1")
	createTestReceipt(t, router, "u2")

	req := httptest.NewRequest(http.MethodGet, "/subjects/u1/receipts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []ReceiptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}
