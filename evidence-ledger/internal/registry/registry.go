// Package registry owns the case, evidence and legal document graph. Every
// mutation goes through the durable store and records a ledger entry.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/filestore"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
)

const DefaultMaxCorrelationDepth = 4

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// ledgerid: ids end up in storage paths, so only path-safe characters
	_ = v.RegisterValidation("ledgerid", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" || s == "." || s == ".." {
			return false
		}
		for _, c := range s {
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			case c == '-' || c == '_' || c == '.':
			default:
				return false
			}
		}
		return true
	})
	return v
}

type Config struct {
	MaxCorrelationDepth int
}

type Registry struct {
	store  store.Store
	files  filestore.Store
	ledger *audit.Ledger
	cfg    Config

	NowFunc     func() time.Time
	NewID       func(prefix string) string
	NewUploadID func() string
}

func New(s store.Store, files filestore.Store, ledger *audit.Ledger, cfg Config) *Registry {
	if cfg.MaxCorrelationDepth <= 0 {
		cfg.MaxCorrelationDepth = DefaultMaxCorrelationDepth
	}
	return &Registry{
		store:   s,
		files:   files,
		ledger:  ledger,
		cfg:     cfg,
		NowFunc:     time.Now,
		NewID:       newID,
		NewUploadID: uuid.NewString,
	}
}

func newID(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// check runs struct validation and folds violations into one validation
// error naming every failing field.
func check(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return apperr.Validation("invalid input: %v", err)
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s (%s=%s)", f.Field(), f.Tag(), f.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s (%s)", f.Field(), f.Tag()))
		}
	}
	return apperr.Validation("invalid fields: %s", strings.Join(parts, ", "))
}

// CaseInput carries the fields of a new case. An empty ID is generated; an
// empty custodian defaults to the creator.
type CaseInput struct {
	ID                  string `json:"caseId" validate:"omitempty,max=64,ledgerid"`
	Title               string `json:"title" validate:"required,max=200"`
	Description         string `json:"description" validate:"max=4000"`
	Custodian           string `json:"currentCustodian" validate:"max=200"`
	CustodianRole       string `json:"custodianRole" validate:"max=64"`
	AssignedToForensics string `json:"assignedToForensics" validate:"max=200"`
}

func (r *Registry) CreateCase(ctx context.Context, actor models.Principal, in CaseInput) (models.Case, audit.Receipt, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Custodian = strings.TrimSpace(in.Custodian)
	if err := check(in); err != nil {
		return models.Case{}, audit.Receipt{}, err
	}

	now := r.NowFunc().UTC()
	c := models.Case{
		ID:                  in.ID,
		Title:               in.Title,
		Description:         in.Description,
		Status:              models.CaseOpen,
		Custodian:           in.Custodian,
		CustodianRole:       in.CustodianRole,
		AssignedToForensics: in.AssignedToForensics,
		CreatedBy:           actor.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if c.ID == "" {
		c.ID = r.NewID("CASE")
	}
	if c.Custodian == "" {
		c.Custodian = actor.ID
		if c.CustodianRole == "" {
			c.CustodianRole = string(actor.Role)
		}
	}

	if err := r.store.CreateCase(ctx, c); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.Case{}, audit.Receipt{}, apperr.Validation("case %s already exists", c.ID)
		}
		return models.Case{}, audit.Receipt{}, apperr.Persistence(err, "create case")
	}
	log.Printf("[registry] case=%s created by=%s", c.ID, actor.ID)

	receipt := r.ledger.Record(ctx, audit.Draft{
		CaseID:      c.ID,
		Action:      models.ActionCreateCase,
		Actor:       actor,
		Description: "Case created: " + c.Title,
		Detail:      models.AuditDetail{Title: c.Title, Officer: c.Custodian},
	})
	return c, receipt, nil
}

func (r *Registry) GetCase(ctx context.Context, id string) (models.Case, error) {
	c, err := r.store.GetCase(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Case{}, apperr.NotFound("case %s not found", id)
		}
		return models.Case{}, apperr.Persistence(err, "load case")
	}
	return c, nil
}

func (r *Registry) ListCases(ctx context.Context, f store.CaseFilter) ([]models.Case, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, apperr.Validation("limit and offset must not be negative")
	}
	cases, err := r.store.ListCases(ctx, f)
	if err != nil {
		return nil, apperr.Persistence(err, "list cases")
	}
	return cases, nil
}

func (r *Registry) loadEvidence(ctx context.Context, id string) (models.Evidence, error) {
	e, err := r.store.GetEvidence(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Evidence{}, apperr.NotFound("evidence %s not found", id)
		}
		return models.Evidence{}, apperr.Persistence(err, "load evidence")
	}
	return e, nil
}
