package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/auth"
	"github.com/Kaaval/Main/evidence-ledger/internal/config"
	"github.com/Kaaval/Main/evidence-ledger/internal/custody"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/registry"
	"github.com/Kaaval/Main/evidence-ledger/internal/verifier"
	"github.com/Kaaval/Main/evidence-ledger/internal/visibility"
)

const maxJSONBody = 1 << 20

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the engine services the API exposes.
type Deps struct {
	Store      Pinger
	Registry   *registry.Registry
	Verifier   *verifier.Verifier
	Custody    *custody.Machine
	Visibility *visibility.Service
	Ledger     *audit.Ledger
	Auth       *auth.Verifier
}

type Server struct {
	cfg config.Config
	Deps
	limiter *RateLimiter
}

func New(cfg config.Config, d Deps) *Server {
	return &Server{
		cfg:     cfg,
		Deps:    d,
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

var (
	anyRole      = []models.Role{models.RoleAdmin, models.RolePolice, models.RoleForensics, models.RoleLegal}
	caseWriters  = []models.Role{models.RolePolice}
	fieldRoles   = []models.Role{models.RolePolice, models.RoleForensics}
	statusMovers = []models.Role{models.RolePolice, models.RoleLegal}
	verifiers    = []models.Role{models.RoleForensics, models.RoleLegal}
	docWriters   = []models.Role{models.RolePolice, models.RoleLegal}
	legal        = []models.Role{models.RoleLegal}
	certifiers   = []models.Role{models.RoleForensics}
	adminOnly    = []models.Role{models.RoleAdmin}
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.limiter.Middleware)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.Auth.Middleware)

		// Content streaming is exempt from the request timeout.
		r.With(auth.RequireRole(anyRole...)).Get("/evidence/{id}/content", s.handleEvidenceContent)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(auth.RequireRole(anyRole...))

			r.Get("/cases", s.handleListCases)
			r.Get("/cases/{id}", s.handleGetCase)
			r.Get("/cases/{id}/evidence", s.handleListCaseEvidence)
			r.Get("/cases/{id}/documents", s.handleListDocuments)
			r.Get("/evidence/{id}", s.handleGetEvidence)
			r.Get("/evidence/{id}/correlation", s.handleCorrelate)
			r.Post("/evidence/{id}/transfer/accept", s.handleAcceptTransfer)

			r.With(auth.RequireRole(caseWriters...)).Post("/cases", s.handleCreateCase)
			r.With(auth.RequireRole(statusMovers...)).Post("/cases/{id}/status", s.handleCaseStatus)
			r.With(auth.RequireRole(adminOnly...)).Post("/cases/{id}/freeze", s.handleFreeze)
			r.With(auth.RequireRole(adminOnly...)).Post("/cases/{id}/unfreeze", s.handleUnfreeze)
			r.With(auth.RequireRole(fieldRoles...)).Post("/cases/{id}/custody", s.handleTransferCustody)
			r.With(auth.RequireRole(docWriters...)).Post("/cases/{id}/documents", s.handleCreateDocument)

			r.With(auth.RequireRole(verifiers...)).Post("/evidence/{id}/verify", s.handleVerify)
			r.With(auth.RequireRole(adminOnly...)).Post("/evidence/{id}/clear", s.handleClearCompromise)
			r.With(auth.RequireRole(certifiers...)).Post("/evidence/{id}/certificate", s.handleIssueCertificate)
			r.With(auth.RequireRole(legal...)).Post("/evidence/{id}/approve", s.handleApprove)
			r.With(auth.RequireRole(caseWriters...)).Put("/evidence/{id}/visibility", s.handleVisibility)
			r.With(auth.RequireRole(fieldRoles...)).Post("/evidence/{id}/links", s.handleLink)
			r.With(auth.RequireRole(fieldRoles...)).Post("/evidence/{id}/transfer", s.handleRequestTransfer)

			r.With(auth.RequireRole(legal...)).Get("/audit", s.handleQueryAudit)
			r.With(auth.RequireRole(legal...)).Get("/audit/{id}/verify", s.handleVerifyAuditEntry)
		})

		// Uploads stream large files and carry their own size limit.
		r.With(auth.RequireRole(fieldRoles...)).Post("/cases/{id}/evidence", s.handleUpload)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.Store.Ping(ctx); err != nil {
		log.Printf("[httpserver] health check failed: %v", err)
		status["ok"] = false
		status["db"] = "unreachable"
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// envelope wraps the result of an operation and the receipt of its ledger
// entry.
type envelope struct {
	Data  interface{}    `json:"data"`
	Audit *audit.Receipt `json:"audit,omitempty"`
}

func respondResult(w http.ResponseWriter, status int, data interface{}, receipt audit.Receipt) {
	respondJSON(w, status, envelope{Data: data, Audit: &receipt})
}

func respondData(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, envelope{Data: data})
}

func principal(r *http.Request) models.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAdmissibility:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindIO, apperr.KindFileUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string         `json:"error"`
	Code  string         `json:"code"`
	Audit *audit.Receipt `json:"audit,omitempty"`
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondErrorWithAudit(w, r, err, nil)
}

// respondErrorWithAudit reports err. A receipt is attached when the failed
// operation still recorded a ledger entry.
func respondErrorWithAudit(w http.ResponseWriter, r *http.Request, err error, receipt *audit.Receipt) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		log.Printf("[httpserver] request_id=%s method=%s path=%s status=%d err=%v",
			middleware.GetReqID(r.Context()), r.Method, r.URL.Path, status, err)
	}
	if receipt != nil && !receipt.Recorded && receipt.EntryID == "" && receipt.Error == "" {
		receipt = nil
	}
	respondJSON(w, status, errorBody{
		Error: apperr.Message(err),
		Code:  fmt.Sprintf("EVIDENCE_LEDGER_%s", kind),
		Audit: receipt,
	})
}
