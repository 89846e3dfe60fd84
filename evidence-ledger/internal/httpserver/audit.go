package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

func (s *Server) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		CaseID:     q.Get("caseId"),
		EvidenceID: q.Get("evidenceId"),
		Action:     models.AuditAction(q.Get("action")),
		UserID:     q.Get("userId"),
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	f.Limit = limit
	entries, err := s.Ledger.Query(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, entries)
}

type entryCheck struct {
	EntryID string `json:"entryId"`
	Intact  bool   `json:"intact"`
}

func (s *Server) handleVerifyAuditEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.Ledger.VerifyEntry(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, entryCheck{EntryID: id, Intact: ok})
}
