package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

// ReceiptHandler handles HTTP requests for receipts using pkg/receiptvault
type ReceiptHandler struct {
	service   receiptvault.Service
	tokenAuth *jwtauth.JWTAuth
}

// NewReceiptHandler creates a new receipt handler. tokenAuth may be nil, in
// which case the hold and retention routes accept unauthenticated requests
// (development only).
func NewReceiptHandler(service receiptvault.Service, tokenAuth *jwtauth.JWTAuth) *ReceiptHandler {
	return &ReceiptHandler{
		service:   service,
		tokenAuth: tokenAuth,
	}
}

// Routes returns the routes for receipts
func (h *ReceiptHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateReceipt)
	r.Get("/{id}", h.GetReceipt)
	r.Get("/{id}/download", h.GetDownloadCredential)
	r.Get("/{id}/artifact", h.DownloadArtifact)
	r.Get("/{id}/audit", h.GetAuditTrail)

	// Hold and retention routes require elevated privilege; when a token
	// authority is configured they also require a valid bearer token.
	r.Group(func(r chi.Router) {
		if h.tokenAuth != nil {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)
		}
		r.Post("/{id}/hold", h.ApplyLegalHold)
		r.Delete("/{id}/hold", h.RemoveLegalHold)
		r.Post("/{id}/retention", h.ExtendRetention)
	})

	return r
}

// SubjectRoutes returns the per-subject listing routes
func (h *ReceiptHandler) SubjectRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{subjectID}/receipts", h.ListReceiptsForSubject)
	return r
}

// CreateReceiptRequest is the request body for issuing a receipt
type CreateReceiptRequest struct {
	ReceiptID        string                 `json:"receipt_id,omitempty"` // optional idempotency key
	SubjectID        string                 `json:"subject_id"`
	SubjectEmail     string                 `json:"subject_email,omitempty"`
	AcceptedAt       *time.Time             `json:"accepted_at,omitempty"`
	DocumentVersions []DocumentVersionEntry `json:"document_versions"`
}

// DocumentVersionEntry identifies one accepted document revision
type DocumentVersionEntry struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	ContentHash string `json:"content_hash"`
}

// LegalHoldResponse is the hold sub-record of a receipt response
type LegalHoldResponse struct {
	Held      bool       `json:"held"`
	Reason    string     `json:"reason,omitempty"`
	Actor     string     `json:"actor,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

// ReceiptResponse is the response body for a receipt
type ReceiptResponse struct {
	ID               string                 `json:"id"`
	SubjectID        string                 `json:"subject_id"`
	SubjectEmail     string                 `json:"subject_email,omitempty"`
	AcceptedAt       time.Time              `json:"accepted_at"`
	DocumentVersions []DocumentVersionEntry `json:"document_versions"`
	ArtifactHash     string                 `json:"artifact_hash"`
	RetainUntil      time.Time              `json:"retain_until"`
	LegalHold        LegalHoldResponse      `json:"legal_hold"`
	CreatedAt        time.Time              `json:"created_at"`
}

func toReceiptResponse(rec *receiptvault.Receipt) ReceiptResponse {
	docs := make([]DocumentVersionEntry, 0, len(rec.DocumentVersions))
	for _, dv := range rec.DocumentVersions {
		docs = append(docs, DocumentVersionEntry{
			Name:        dv.Name,
			Version:     dv.Version,
			ContentHash: dv.ContentHash,
		})
	}
	return ReceiptResponse{
		ID:               rec.ID.String(),
		SubjectID:        rec.SubjectID,
		SubjectEmail:     rec.SubjectEmail,
		AcceptedAt:       rec.AcceptedAt,
		DocumentVersions: docs,
		ArtifactHash:     rec.ArtifactHash,
		RetainUntil:      rec.RetainUntil,
		LegalHold: LegalHoldResponse{
			Held:      rec.LegalHold.Held,
			Reason:    string(rec.LegalHold.Reason),
			Actor:     rec.LegalHold.Actor,
			Notes:     rec.LegalHold.Notes,
			AppliedAt: rec.LegalHold.AppliedAt,
			RemovedAt: rec.LegalHold.RemovedAt,
		},
		CreatedAt: rec.CreatedAt,
	}
}

// CreateReceipt issues a new acceptance receipt
func (h *ReceiptHandler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req CreateReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	createReq := receiptvault.CreateReceiptRequest{
		SubjectID:    req.SubjectID,
		SubjectEmail: req.SubjectEmail,
		RequestInfo:  requestInfo(r),
	}
	if req.ReceiptID != "" {
		id, err := uuid.Parse(req.ReceiptID)
		if err != nil {
			slog.Error("Invalid receipt ID", "receipt_id", req.ReceiptID, "error", err)
			http.Error(w, "Invalid receipt ID", http.StatusBadRequest)
			return
		}
		createReq.ReceiptID = id
	}
	if req.AcceptedAt != nil {
		createReq.AcceptedAt = *req.AcceptedAt
	}
	for _, dv := range req.DocumentVersions {
		createReq.DocumentVersions = append(createReq.DocumentVersions, receiptvault.DocumentVersion{
			Name:        dv.Name,
			Version:     dv.Version,
			ContentHash: dv.ContentHash,
		})
	}

	rec, err := h.service.CreateReceipt(r.Context(), createReq)
	if err != nil {
		slog.Error("Failed to create receipt", "subject_id", req.SubjectID, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Receipt created", "receipt_id", rec.ID.String(), "subject_id", rec.SubjectID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toReceiptResponse(rec))
}

// GetReceipt retrieves receipt metadata by ID
func (h *ReceiptHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := receiptID(w, r)
	if !ok {
		return
	}

	rec, err := h.service.GetReceiptMetadata(r.Context(), id, requestInfo(r))
	if err != nil {
		slog.Error("Failed to get receipt", "receipt_id", id.String(), "error", err)
		writeError(w, err)
		return
	}

	render.JSON(w, r, toReceiptResponse(rec))
}

// DownloadCredentialResponse is the response body for a presigned download
type DownloadCredentialResponse struct {
	ReceiptID    string    `json:"receipt_id"`
	URL          string    `json:"url"`
	ArtifactHash string    `json:"artifact_hash"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// GetDownloadCredential issues a short-lived signed URL for the artifact
func (h *ReceiptHandler) GetDownloadCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := receiptID(w, r)
	if !ok {
		return
	}

	cred, err := h.service.GetDownloadCredential(r.Context(), id, requestInfo(r))
	if err != nil {
		slog.Error("Failed to issue download credential", "receipt_id", id.String(), "error", err)
		writeError(w, err)
		return
	}

	render.JSON(w, r, DownloadCredentialResponse{
		ReceiptID:    cred.ReceiptID.String(),
		URL:          cred.URL,
		ArtifactHash: cred.ArtifactHash,
		ExpiresAt:    cred.ExpiresAt,
	})
}

// DownloadArtifact streams the stored artifact bytes
func (h *ReceiptHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := receiptID(w, r)
	if !ok {
		return
	}

	body, rec, err := h.service.DownloadArtifact(r.Context(), id, requestInfo(r))
	if err != nil {
		slog.Error("Failed to download artifact", "receipt_id", id.String(), "error", err)
		writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", receiptvault.ArtifactContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="receipt-`+rec.ID.String()+`.txt"`)
	if _, err := io.Copy(w, body); err != nil {
		slog.Error("Failed to stream artifact", "receipt_id", id.String(), "error", err)
	}
}

// AuditEntryResponse is one row of the access trail
type AuditEntryResponse struct {
	ReceiptID     string    `json:"receipt_id"`
	ActorID       string    `json:"actor_id"`
	Action        string    `json:"action"`
	Result        string    `json:"result"`
	SourceAddress string    `json:"source_address,omitempty"`
	ClientAgent   string    `json:"client_agent,omitempty"`
	ClientApp     string    `json:"client_app,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// GetAuditTrail lists the audit entries recorded for a receipt
func (h *ReceiptHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := receiptID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.GetAuditTrail(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get audit trail", "receipt_id", id.String(), "error", err)
		writeError(w, err)
		return
	}

	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, AuditEntryResponse{
			ReceiptID:     e.ReceiptID.String(),
			ActorID:       e.ActorID,
			Action:        string(e.Action),
			Result:        string(e.Result),
			SourceAddress: e.SourceAddress,
			ClientAgent:   e.ClientAgent,
			ClientApp:     e.ClientApp,
			OccurredAt:    e.OccurredAt,
		})
	}

	render.JSON(w, r, resp)
}

// ListReceiptsForSubject lists a subject's receipts, newest first
func (h *ReceiptHandler) ListReceiptsForSubject(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	if subjectID == "" {
		http.Error(w, "Missing subject ID", http.StatusBadRequest)
		return
	}

	receipts, err := h.service.ListReceiptsForSubject(r.Context(), subjectID)
	if err != nil {
		slog.Error("Failed to list receipts", "subject_id", subjectID, "error", err)
		writeError(w, err)
		return
	}

	resp := make([]ReceiptResponse, 0, len(receipts))
	for _, rec := range receipts {
		resp = append(resp, toReceiptResponse(rec))
	}

	render.JSON(w, r, resp)
}

// HoldRequest is the request body for applying a legal hold
type HoldRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes,omitempty"`
}

// ApplyLegalHold places a legal hold on a receipt
func (h *ReceiptHandler) ApplyLegalHold(w http.ResponseWriter, r *http.Request) {
	id, ok := receiptID(w, r)
	if !ok {
		return
	}

	var req HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info := requestInfo(r)
	rec, err := h.service.ApplyLegalHold(r.Context(), receiptvault.ApplyLegalHoldRequest{
		ReceiptID:   id,
		Reason:      receiptvault.HoldReason(req.Reason),
		Actor:       info.ActorID,
		Notes:       req.Notes,
		RequestInfo: info,
	})
	if err != nil {
		slog.Error("Failed to apply legal hold", "receipt_id", id.String(), "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Legal hold applied", "receipt_id", id.String(), "reason", req.Reason)
	render.JSON(w, r, toReceiptResponse(rec))
}

// RemoveHoldRequest is the request body for lifting a legal hold
type RemoveHoldRequest struct {
	Notes string `json:"notes,omitempty"`
}

// RemoveLegalHold lifts the legal hold on a receipt
func (h *ReceiptHandler) RemoveLegalHold(w http.ResponseWriter, r *http.Request) {
	id, ok := receiptID(w, r)
	if !ok {
		return
	}

	var req RemoveHoldRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	info := requestInfo(r)
	rec, err := h.service.RemoveLegalHold(r.Context(), receiptvault.RemoveLegalHoldRequest{
		ReceiptID:   id,
		Actor:       info.ActorID,
		Notes:       req.Notes,
		RequestInfo: info,
	})
	if err != nil {
		slog.Error("Failed to remove legal hold", "receipt_id", id.String(), "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Legal hold removed", "receipt_id", id.String())
	render.JSON(w, r, toReceiptResponse(rec))
}

// ExtendRetentionRequest is the request body for extending retention
type ExtendRetentionRequest struct {
	RetainUntil time.Time `json:"retain_until"`
}

// ExtendRetention moves the retention date forward
func (h *ReceiptHandler) ExtendRetention(w http.ResponseWriter, r *http.Request) {
	id, ok := receiptID(w, r)
	if !ok {
		return
	}

	var req ExtendRetentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info := requestInfo(r)
	rec, err := h.service.ExtendRetention(r.Context(), receiptvault.ExtendRetentionRequest{
		ReceiptID:   id,
		RetainUntil: req.RetainUntil,
		Actor:       info.ActorID,
		RequestInfo: info,
	})
	if err != nil {
		slog.Error("Failed to extend retention", "receipt_id", id.String(), "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Retention extended", "receipt_id", id.String(), "retain_until", req.RetainUntil)
	render.JSON(w, r, toReceiptResponse(rec))
}

// receiptID parses the {id} URL parameter, writing a 400 on failure.
func receiptID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		slog.Error("Invalid receipt ID", "receipt_id", idStr, "error", err)
		http.Error(w, "Invalid receipt ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, receiptvault.ErrReceiptNotFound):
		http.Error(w, "Receipt not found", http.StatusNotFound)
	case errors.Is(err, receiptvault.ErrMissingSubject),
		errors.Is(err, receiptvault.ErrNoDocumentVersions),
		errors.Is(err, receiptvault.ErrInvalidHoldReason),
		errors.Is(err, receiptvault.ErrRetentionShortened):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, receiptvault.ErrPermissionDenied):
		http.Error(w, "Permission denied", http.StatusForbidden)
	case errors.Is(err, receiptvault.ErrAlreadyHeld),
		errors.Is(err, receiptvault.ErrNotHeld),
		errors.Is(err, receiptvault.ErrHoldConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case receiptvault.IsTransient(err):
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
