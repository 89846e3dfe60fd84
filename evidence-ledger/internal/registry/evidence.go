package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/custody"
	"github.com/Kaaval/Main/evidence-ledger/internal/filestore"
	"github.com/Kaaval/Main/evidence-ledger/internal/hasher"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
	"github.com/Kaaval/Main/evidence-ledger/internal/visibility"
)

// UploadInput describes a new evidence item. Content is consumed once; its
// bytes are hashed while they are written to the file store.
type UploadInput struct {
	CaseID           string              `json:"caseId" validate:"required,ledgerid"`
	EvidenceID       string              `json:"evidenceId" validate:"omitempty,max=64,ledgerid"`
	Type             models.EvidenceType `json:"type" validate:"required,oneof=IMAGE PDF WORD VIDEO AUDIO DOCUMENT PHYSICAL OTHER"`
	FileName         string              `json:"fileName" validate:"required,max=255,excludesall=/\\"`
	Location         string              `json:"location" validate:"max=500"`
	Notes            string              `json:"notes" validate:"max=4000"`
	SourceHash       string              `json:"sourceHash" validate:"omitempty,len=64,hexadecimal,lowercase"`
	LiftingVideoRef  string              `json:"liftingVideo" validate:"max=1024"`
	LiftingVideoHash string              `json:"liftingVideoHash" validate:"omitempty,len=64,hexadecimal,lowercase"`
	Visibility       models.Visibility   `json:"visibility"`
	Content          io.Reader           `json:"-" validate:"-"`
}

// EvidenceRef is the file store reference of an evidence file. Each upload
// attempt gets its own uploadID so a rejected attempt can never replace the
// bytes of stored evidence.
func EvidenceRef(caseID, evidenceID, uploadID, fileName string) string {
	return path.Join("cases", caseID, "evidence", evidenceID, uploadID, fileName)
}

// UploadEvidence stores the file, fingerprints file and metadata, classifies
// the item and records UPLOAD. Classification is decided here and never
// again.
func (r *Registry) UploadEvidence(ctx context.Context, actor models.Principal, in UploadInput) (models.Evidence, audit.Receipt, error) {
	in.FileName = strings.TrimSpace(in.FileName)
	in.SourceHash = strings.TrimSpace(in.SourceHash)
	in.LiftingVideoRef = strings.TrimSpace(in.LiftingVideoRef)
	if err := check(in); err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}
	if in.FileName == "." || in.FileName == ".." {
		return models.Evidence{}, audit.Receipt{}, apperr.Validation("invalid fields: fileName")
	}
	if in.Content == nil {
		return models.Evidence{}, audit.Receipt{}, apperr.Validation("file content is required")
	}
	for _, role := range visibility.Normalize(in.Visibility).AllowedRoles {
		if !role.Valid() {
			return models.Evidence{}, audit.Receipt{}, apperr.Validation("unknown role %q in allowedRoles", role)
		}
	}

	c, err := r.GetCase(ctx, in.CaseID)
	if err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}
	if c.Status == models.CaseFrozen {
		return models.Evidence{}, audit.Receipt{}, apperr.Validation("case %s is frozen", c.ID)
	}

	id := in.EvidenceID
	if id == "" {
		id = r.NewID("EV")
	} else if _, err := r.store.GetEvidence(ctx, id); err == nil {
		return models.Evidence{}, audit.Receipt{}, apperr.Validation("evidence %s already exists", id)
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Evidence{}, audit.Receipt{}, apperr.Persistence(err, "load evidence")
	}
	ref := EvidenceRef(c.ID, id, r.NewUploadID(), in.FileName)

	digester := hasher.NewDigester()
	if err := r.files.Write(ctx, ref, io.TeeReader(in.Content, digester)); err != nil {
		if errors.Is(err, filestore.ErrInvalidRef) {
			return models.Evidence{}, audit.Receipt{}, apperr.Validation("invalid file name %q", in.FileName)
		}
		return models.Evidence{}, audit.Receipt{}, apperr.IO(err, "store evidence file")
	}
	fileHash := digester.Sum()

	now := r.NowFunc().UTC()
	metaHash, err := hasher.DigestMetadata(map[string]interface{}{
		"caseId":      c.ID,
		"id":          id,
		"name":        in.FileName,
		"type":        string(in.Type),
		"uri":         ref,
		"timestamp":   models.FormatTime(now),
		"location":    in.Location,
		"submittedBy": actor.ID,
	})
	if err != nil {
		r.discard(ref)
		return models.Evidence{}, audit.Receipt{}, err
	}

	e := models.Evidence{
		ID:                id,
		CaseID:            c.ID,
		Type:              in.Type,
		FileName:          in.FileName,
		FileRef:           ref,
		UploadedBy:        actor.ID,
		UploadedAt:        now,
		Location:          in.Location,
		FileHash:          fileHash,
		MetadataHash:      metaHash,
		Custodian:         actor.ID,
		IntegrityStatus:   models.IntegrityNotChecked,
		Visibility:        visibility.Normalize(in.Visibility),
		Notes:             in.Notes,
		LinkedEvidenceIDs: []string{},
		Classification:    custody.Classify(in.SourceHash, in.LiftingVideoRef),
		SourceHash:        in.SourceHash,
		LiftingVideoRef:   in.LiftingVideoRef,
		LiftingVideoHash:  in.LiftingVideoHash,
	}
	if err := r.store.CreateEvidence(ctx, e); err != nil {
		r.discard(ref)
		if errors.Is(err, store.ErrConflict) {
			return models.Evidence{}, audit.Receipt{}, apperr.Validation("evidence %s already exists", id)
		}
		return models.Evidence{}, audit.Receipt{}, apperr.Persistence(err, "create evidence")
	}
	log.Printf("[registry] evidence=%s case=%s uploaded by=%s bytes=%d classification=%s",
		id, c.ID, actor.ID, digester.Size(), e.Classification)

	receipt := r.ledger.Record(ctx, audit.Draft{
		CaseID:      c.ID,
		EvidenceID:  e.ID,
		Action:      models.ActionUpload,
		Actor:       actor,
		Description: fmt.Sprintf("Uploaded %s (%s) as %s", e.FileName, e.Type, e.Classification),
		Detail: models.AuditDetail{
			Hash:         hasher.Fragment(fileHash),
			FileName:     e.FileName,
			FileType:     string(e.Type),
			FileURI:      ref,
			Location:     e.Location,
			MetadataHash: metaHash,
		},
	})
	return e, receipt, nil
}

// discard removes a staged file whose row was never written. It runs detached
// from the request so a cancelled upload still cleans up.
func (r *Registry) discard(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.files.Delete(ctx, ref); err != nil {
		log.Printf("[registry] staged file %s left unreferenced: %v", ref, err)
	}
}

// Visible loads an item the actor may see. Hidden items are reported as
// missing so their existence does not leak.
func (r *Registry) Visible(ctx context.Context, actor models.Principal, id string) (models.Evidence, error) {
	e, err := r.loadEvidence(ctx, id)
	if err != nil {
		return models.Evidence{}, err
	}
	if !visibility.CanView(actor, e) {
		return models.Evidence{}, apperr.NotFound("evidence %s not found", id)
	}
	return e, nil
}

func (r *Registry) GetEvidence(ctx context.Context, actor models.Principal, id string) (models.Evidence, audit.Receipt, error) {
	e, err := r.Visible(ctx, actor, id)
	if err != nil {
		return models.Evidence{}, audit.Receipt{}, err
	}
	receipt := r.ledger.Record(ctx, audit.Draft{
		CaseID:      e.CaseID,
		EvidenceID:  e.ID,
		Action:      models.ActionView,
		Actor:       actor,
		Description: "Evidence viewed: " + e.FileName,
		Detail:      models.AuditDetail{FileName: e.FileName},
	})
	return e, receipt, nil
}

// OpenEvidenceContent opens the evidence file for streaming. The caller
// closes the reader.
func (r *Registry) OpenEvidenceContent(ctx context.Context, actor models.Principal, id string) (io.ReadCloser, models.Evidence, error) {
	e, err := r.Visible(ctx, actor, id)
	if err != nil {
		return nil, models.Evidence{}, err
	}
	rc, err := r.files.Open(ctx, e.FileRef)
	if err != nil {
		return nil, models.Evidence{}, apperr.FileUnavailable(err, "evidence file for %s is unavailable", e.ID)
	}
	r.ledger.Record(ctx, audit.Draft{
		CaseID:      e.CaseID,
		EvidenceID:  e.ID,
		Action:      models.ActionDownload,
		Actor:       actor,
		Description: "Evidence file downloaded: " + e.FileName,
		Detail:      models.AuditDetail{FileName: e.FileName, Hash: hasher.Fragment(e.FileHash)},
	})
	return rc, e, nil
}

// ListCaseEvidence returns the case's items the actor may see.
func (r *Registry) ListCaseEvidence(ctx context.Context, actor models.Principal, caseID string) ([]models.Evidence, error) {
	if _, err := r.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	list, err := r.store.ListEvidenceByCase(ctx, caseID)
	if err != nil {
		return nil, apperr.Persistence(err, "list evidence")
	}
	return visibility.Filter(actor, list), nil
}
