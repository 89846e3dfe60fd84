package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/registry"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
)

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req registry.CaseInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c, receipt, err := s.Registry.CreateCase(r.Context(), principal(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusCreated, c, receipt)
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.CaseFilter{
		Status:    models.CaseStatus(q.Get("status")),
		Custodian: q.Get("custodian"),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		respondError(w, r, err)
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		respondError(w, r, err)
		return
	}
	cases, err := s.Registry.ListCases(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, cases)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.Registry.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, c)
}

type statusRequest struct {
	Status models.CaseStatus `json:"status"`
}

func (s *Server) handleCaseStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c, receipt, err := s.Custody.UpdateCaseStatus(r.Context(), principal(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusOK, c, receipt)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c, receipt, err := s.Custody.FreezeCase(r.Context(), principal(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusOK, c, receipt)
}

func (s *Server) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	c, receipt, err := s.Custody.UnfreezeCase(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusOK, c, receipt)
}

type custodyRequest struct {
	Custodian string `json:"custodian"`
	Role      string `json:"role"`
	Notes     string `json:"notes"`
}

func (s *Server) handleTransferCustody(w http.ResponseWriter, r *http.Request) {
	var req custodyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c, receipt, err := s.Custody.TransferCustody(r.Context(), principal(r), chi.URLParam(r, "id"), req.Custodian, req.Role, req.Notes)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusOK, c, receipt)
}

func (s *Server) handleListCaseEvidence(w http.ResponseWriter, r *http.Request) {
	list, err := s.Registry.ListCaseEvidence(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, list)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req registry.DocumentInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	req.CaseID = chi.URLParam(r, "id")
	d, receipt, err := s.Registry.CreateDocument(r.Context(), principal(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondResult(w, http.StatusCreated, d, receipt)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.Registry.ListDocuments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, docs)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation("invalid integer %q", v)
	}
	return n, nil
}
