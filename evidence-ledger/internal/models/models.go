package models

import (
	"time"
)

// Role is a principal's organisational role.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RolePolice    Role = "POLICE"
	RoleForensics Role = "FORENSICS"
	RoleLegal     Role = "LEGAL"
	RoleSystem    Role = "SYSTEM"
)

// Valid reports whether r is a role a human principal may hold.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePolice, RoleForensics, RoleLegal:
		return true
	}
	return false
}

// Principal is the acting party of an operation.
type Principal struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Role        Role   `json:"role"`
	Designation string `json:"designation,omitempty"`
	Org         string `json:"org,omitempty"`
}

// SystemPrincipal acts for operations without a human caller.
var SystemPrincipal = Principal{ID: "system", Name: "system", Role: RoleSystem, Org: "INTERNAL"}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// DisplayName is the name if known, otherwise the id.
func (p Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

type CaseStatus string

const (
	CaseOpen               CaseStatus = "OPEN"
	CaseUnderInvestigation CaseStatus = "UNDER_INVESTIGATION"
	CaseSubmittedToCourt   CaseStatus = "SUBMITTED_TO_COURT"
	CaseClosed             CaseStatus = "CLOSED"
	CaseFrozen             CaseStatus = "FROZEN"
)

type Case struct {
	ID                  string     `json:"caseId"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	Status              CaseStatus `json:"status"`
	FrozenFrom          CaseStatus `json:"frozenFrom,omitempty"`
	Custodian           string     `json:"currentCustodian"`
	CustodianRole       string     `json:"custodianRole,omitempty"`
	AssignedToForensics string     `json:"assignedToForensics,omitempty"`
	CreatedBy           string     `json:"createdBy"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type EvidenceType string

const (
	EvidenceImage    EvidenceType = "IMAGE"
	EvidencePDF      EvidenceType = "PDF"
	EvidenceWord     EvidenceType = "WORD"
	EvidenceVideo    EvidenceType = "VIDEO"
	EvidenceAudio    EvidenceType = "AUDIO"
	EvidenceDocument EvidenceType = "DOCUMENT"
	EvidencePhysical EvidenceType = "PHYSICAL"
	EvidenceOther    EvidenceType = "OTHER"
)

type IntegrityStatus string

const (
	IntegrityNotChecked  IntegrityStatus = "NOT_CHECKED"
	IntegrityPending     IntegrityStatus = "PENDING"
	IntegrityVerified    IntegrityStatus = "VERIFIED"
	IntegrityCompromised IntegrityStatus = "COMPROMISED"
)

type Classification string

const (
	ClassificationPrimary   Classification = "PRIMARY"
	ClassificationSecondary Classification = "SECONDARY"
)

// Visibility restricts who may see an evidence item. When IsRestricted is
// set, a principal matching any one of the allow-lists may view it.
type Visibility struct {
	IsRestricted        bool     `json:"isRestricted"`
	AllowedRoles        []Role   `json:"allowedRoles"`
	AllowedDesignations []string `json:"allowedDesignations"`
	AllowedUserIDs      []string `json:"allowedUserIds"`
}

type Evidence struct {
	ID                string          `json:"evidenceId"`
	CaseID            string          `json:"caseId"`
	Type              EvidenceType    `json:"type"`
	FileName          string          `json:"fileName"`
	FileRef           string          `json:"fileUrl"`
	UploadedBy        string          `json:"uploadedBy"`
	UploadedAt        time.Time       `json:"timestamp"`
	Location          string          `json:"location,omitempty"`
	FileHash          string          `json:"hash"`
	MetadataHash      string          `json:"metadataHash"`
	Custodian         string          `json:"custodian"`
	PendingTransferTo string          `json:"pendingTransferTo,omitempty"`
	IntegrityStatus   IntegrityStatus `json:"integrityStatus"`
	LastVerifiedAt    *time.Time      `json:"lastVerifiedAt,omitempty"`
	ApprovedForLegal  bool            `json:"approvedForLegal"`
	Visibility        Visibility      `json:"visibility"`
	Notes             string          `json:"notes,omitempty"`
	LinkedEvidenceIDs []string        `json:"linkedEvidenceIds"`
	Classification    Classification  `json:"classification"`
	SourceHash        string          `json:"sourceHash,omitempty"`
	LiftingVideoRef   string          `json:"liftingVideo,omitempty"`
	LiftingVideoHash  string          `json:"liftingVideoHash,omitempty"`
	CertificateRef    string          `json:"section63Certificate,omitempty"`
	CertificateIssued *time.Time      `json:"certificateIssuedAt,omitempty"`
}

// IsLinked reports whether other is in the item's link set.
func (e Evidence) IsLinked(other string) bool {
	for _, id := range e.LinkedEvidenceIDs {
		if id == other {
			return true
		}
	}
	return false
}

type DocumentType string

const (
	DocumentFIR         DocumentType = "FIR"
	DocumentWarrant     DocumentType = "WARRANT"
	DocumentCourtOrder  DocumentType = "COURT_ORDER"
	DocumentChargeSheet DocumentType = "CHARGE_SHEET"
)

type LegalDocument struct {
	ID                string       `json:"id"`
	CaseID            string       `json:"caseId"`
	Type              DocumentType `json:"type"`
	Title             string       `json:"title"`
	Content           string       `json:"content,omitempty"`
	IssuedBy          string       `json:"issuedBy"`
	LinkedEvidenceIDs []string     `json:"linkedEvidenceIds"`
	CreatedAt         time.Time    `json:"createdAt"`
}
