package audit

import (
	"github.com/Kaaval/Main/evidence-ledger/internal/hasher"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

// digestFields is the canonical field set an entry digest covers: every
// field except the digest itself. Empty optional fields are present as "".
func digestFields(e models.AuditEntry) map[string]interface{} {
	return map[string]interface{}{
		"logId":      e.ID,
		"caseId":     e.CaseID,
		"evidenceId": e.EvidenceID,
		"action":     string(e.Action),
		"performedBy": map[string]interface{}{
			"userId": e.Actor.UserID,
			"role":   e.Actor.Role,
			"org":    e.Actor.Org,
		},
		"timestamp":   models.FormatTime(e.Timestamp),
		"result":      string(e.Result),
		"description": e.Description,
		"details": map[string]interface{}{
			"hash":         e.Detail.Hash,
			"fileName":     e.Detail.FileName,
			"fileType":     e.Detail.FileType,
			"fileUri":      e.Detail.FileURI,
			"location":     e.Detail.Location,
			"title":        e.Detail.Title,
			"officer":      e.Detail.Officer,
			"metadataHash": e.Detail.MetadataHash,
			"previousHash": e.Detail.PreviousHash,
		},
	}
}

// EntryDigest computes the metadata digest of e.
func EntryDigest(e models.AuditEntry) (string, error) {
	return hasher.DigestMetadata(digestFields(e))
}

// envelope is the canonical document published to Kafka and archived to S3.
func envelope(e models.AuditEntry) map[string]interface{} {
	doc := digestFields(e)
	doc["metadataHash"] = e.MetadataHash
	return doc
}
