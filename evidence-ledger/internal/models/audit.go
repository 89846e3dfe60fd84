package models

import "time"

// AuditAction is the fixed vocabulary of ledger actions.
type AuditAction string

const (
	ActionCreateCase      AuditAction = "CREATE_CASE"
	ActionUpload          AuditAction = "UPLOAD"
	ActionVerify          AuditAction = "VERIFY"
	ActionApprove         AuditAction = "APPROVE"
	ActionVisibility      AuditAction = "VISIBILITY_UPDATE"
	ActionTransferCustody AuditAction = "TRANSFER_CUSTODY"
	ActionTransferRequest AuditAction = "TRANSFER_REQUEST"
	ActionTransferAccept  AuditAction = "TRANSFER_ACCEPT"
	ActionIssueCert       AuditAction = "ISSUE_CERT"
	ActionCaseStatus      AuditAction = "CASE_STATUS"
	ActionFreeze          AuditAction = "FREEZE"
	ActionUnfreeze        AuditAction = "UNFREEZE"
	ActionLinkEvidence    AuditAction = "LINK_EVIDENCE"
	ActionCreateDoc       AuditAction = "CREATE_DOC"
	ActionIntegrityClear  AuditAction = "INTEGRITY_CLEAR"
	ActionLogin           AuditAction = "LOGIN"
	ActionLogout          AuditAction = "LOGOUT"
	ActionUpdateUser      AuditAction = "UPDATE_USER"
	ActionView            AuditAction = "VIEW"
	ActionDownload        AuditAction = "DOWNLOAD"
)

var knownActions = map[AuditAction]struct{}{
	ActionCreateCase: {}, ActionUpload: {}, ActionVerify: {}, ActionApprove: {},
	ActionVisibility: {}, ActionTransferCustody: {}, ActionTransferRequest: {},
	ActionTransferAccept: {}, ActionIssueCert: {}, ActionCaseStatus: {},
	ActionFreeze: {}, ActionUnfreeze: {}, ActionLinkEvidence: {}, ActionCreateDoc: {},
	ActionIntegrityClear: {}, ActionLogin: {}, ActionLogout: {}, ActionUpdateUser: {},
	ActionView: {}, ActionDownload: {},
}

func (a AuditAction) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

type AuditResult string

const (
	ResultSuccess     AuditResult = "SUCCESS"
	ResultFailure     AuditResult = "FAILURE"
	ResultMatch       AuditResult = "MATCH"
	ResultMismatch    AuditResult = "MISMATCH"
	ResultRejected    AuditResult = "REJECTED"
	ResultUnavailable AuditResult = "UNAVAILABLE"
)

// AuditDetail is the optional, action-specific part of an entry. Every
// field maps to one nullable column; empty means absent.
type AuditDetail struct {
	Hash         string `json:"hash,omitempty"`
	FileName     string `json:"fileName,omitempty"`
	FileType     string `json:"fileType,omitempty"`
	FileURI      string `json:"fileUri,omitempty"`
	Location     string `json:"location,omitempty"`
	Title        string `json:"title,omitempty"`
	Officer      string `json:"officer,omitempty"`
	MetadataHash string `json:"metadataHash,omitempty"`
	PreviousHash string `json:"previousHash,omitempty"`
}

// AuditActor identifies who performed an action.
type AuditActor struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Org    string `json:"org"`
}

// ActorOf converts a principal into the identity recorded in the ledger.
func ActorOf(p Principal) AuditActor {
	org := p.Org
	if org == "" {
		org = SystemPrincipal.Org
	}
	return AuditActor{UserID: p.ID, Role: string(p.Role), Org: org}
}

// AuditEntry is one immutable ledger record.
type AuditEntry struct {
	ID           string      `json:"logId"`
	CaseID       string      `json:"caseId,omitempty"`
	EvidenceID   string      `json:"evidenceId,omitempty"`
	Action       AuditAction `json:"action"`
	Actor        AuditActor  `json:"performedBy"`
	Timestamp    time.Time   `json:"timestamp"`
	Result       AuditResult `json:"result"`
	Description  string      `json:"description,omitempty"`
	Detail       AuditDetail `json:"details"`
	MetadataHash string      `json:"metadataHash"`
}
