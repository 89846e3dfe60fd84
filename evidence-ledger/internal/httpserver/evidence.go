package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/registry"
)

const (
	multipartMemory   = 32 << 20
	multipartOverhead = 1 << 20
)

func (s *Server) maxUpload() int64 {
	if s.cfg.MaxUploadBytes > 0 {
		return int64(s.cfg.MaxUploadBytes)
	}
	return 512 << 20
}

// handleUpload accepts multipart/form-data with a "file" part and the
// metadata as form fields.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, apperr.Validation("upload exceeds %d bytes", s.maxUpload()))
			return
		}
		respondError(w, r, apperr.Validation("invalid multipart upload: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, apperr.Validation("file part is required"))
		return
	}
	defer file.Close()
	if header.Size > s.maxUpload() {
		respondError(w, r, apperr.Validation("upload exceeds %d bytes", s.maxUpload()))
		return
	}

	in := registry.UploadInput{
		CaseID:           chi.URLParam(r, "id"),
		EvidenceID:       r.FormValue("evidenceId"),
		Type:             models.EvidenceType(r.FormValue("type")),
		FileName:         r.FormValue("fileName"),
		Location:         r.FormValue("location"),
		Notes:            r.FormValue("notes"),
		SourceHash:       r.FormValue("sourceHash"),
		LiftingVideoRef:  r.FormValue("liftingVideo"),
		LiftingVideoHash: r.FormValue("liftingVideoHash"),
		Content:          file,
	}
	if in.FileName == "" {
		in.FileName = header.Filename
	}
	if raw := r.FormValue("visibility"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Visibility); err != nil {
			respondError(w, r, apperr.Validation("invalid visibility: %v", err))
			return
		}
	}

	e, receipt, err := s.Registry.UploadEvidence(r.Context(), principal(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusCreated, e, receipt)
}

func (s *Server) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	e, receipt, err := s.Registry.GetEvidence(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusOK, e, receipt)
}

func (s *Server) handleEvidenceContent(w http.ResponseWriter, r *http.Request) {
	rc, e, err := s.Registry.OpenEvidenceContent(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": e.FileName}))
	w.Header().Set("X-Evidence-Sha256", e.FileHash)
	w.WriteHeader(http.StatusOK)
	if n, err := io.Copy(w, rc); err != nil {
		log.Printf("[httpserver] evidence=%s content stream aborted after %d bytes: %v", e.ID, n, err)
	}
}

// visibleEvidence rejects writes to items the caller may not see, with the
// same NOT_FOUND a read would produce.
func (s *Server) visibleEvidence(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := s.Registry.Visible(r.Context(), principal(r), id); err != nil {
		respondError(w, r, err)
		return "", false
	}
	return id, true
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := s.visibleEvidence(w, r)
	if !ok {
		return
	}
	out, receipt, err := s.Verifier.Verify(r.Context(), principal(r), id)
	if err != nil {
		respondErrorWithAudit(w, r, err, &receipt)
		return
	}
	respondResult(w, http.StatusOK, out, receipt)
}

func (s *Server) handleClearCompromise(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	out, receipt, err := s.Verifier.ClearCompromise(r.Context(), principal(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		respondErrorWithAudit(w, r, err, &receipt)
		return
	}
	respondResult(w, http.StatusOK, out, receipt)
}

type certificateRequest struct {
	CertificateRef string `json:"certificateRef"`
}

func (s *Server) handleIssueCertificate(w http.ResponseWriter, r *http.Request) {
	var req certificateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	id, ok := s.visibleEvidence(w, r)
	if !ok {
		return
	}
	e, receipt, err := s.Custody.IssueCertificate(r.Context(), principal(r), id, req.CertificateRef)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusOK, e, receipt)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := s.visibleEvidence(w, r)
	if !ok {
		return
	}
	e, receipt, err := s.Custody.ApproveForLegal(r.Context(), principal(r), id)
	if err != nil {
		respondErrorWithAudit(w, r, err, &receipt)
		return
	}
	respondResult(w, http.StatusOK, e, receipt)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var rule models.Visibility
	if err := decodeJSON(w, r, &rule); err != nil {
		respondError(w, r, err)
		return
	}
	id, ok := s.visibleEvidence(w, r)
	if !ok {
		return
	}
	e, receipt, err := s.Visibility.UpdateVisibility(r.Context(), principal(r), id, rule)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusOK, e, receipt)
}

type linkRequest struct {
	LinkedID string `json:"linkedId"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := s.Registry.LinkEvidence(r.Context(), principal(r), chi.URLParam(r, "id"), req.LinkedID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	respondJSON(w, status, envelope{Data: res})
}

func (s *Server) handleCorrelate(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, r, apperr.Validation("invalid depth %q", v))
			return
		}
		depth = n
	}
	out, err := s.Registry.Correlate(r.Context(), principal(r), chi.URLParam(r, "id"), depth)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, out)
}

type transferRequest struct {
	Target string `json:"target"`
}

func (s *Server) handleRequestTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	id, ok := s.visibleEvidence(w, r)
	if !ok {
		return
	}
	e, receipt, err := s.Custody.RequestEvidenceTransfer(r.Context(), principal(r), id, req.Target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusOK, e, receipt)
}

func (s *Server) handleAcceptTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := s.visibleEvidence(w, r)
	if !ok {
		return
	}
	e, receipt, err := s.Custody.AcceptEvidenceTransfer(r.Context(), principal(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusOK, e, receipt)
}
