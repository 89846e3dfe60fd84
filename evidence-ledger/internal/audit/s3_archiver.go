package audit

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

// Archiver stores the canonical envelope of an entry and returns its key.
type Archiver interface {
	Archive(ctx context.Context, e models.AuditEntry, body []byte) (string, error)
}

// S3Archiver writes envelopes to
//
//	s3://<bucket>/<prefix>/audit/YYYY/MM/DD/<entryID>.json
//
// with S3-managed server-side encryption.
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver builds an archiver over an existing client. Credentials and
// region come from the caller's aws.Config.
func NewS3Archiver(client *s3.Client, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket required")
	}
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ArchiveKey is the object key an entry is archived under.
func ArchiveKey(prefix string, e models.AuditEntry) string {
	ts := e.Timestamp.UTC()
	year, month, day := ts.Date()
	return path.Join(prefix, "audit",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		e.ID+".json",
	)
}

func (a *S3Archiver) Archive(ctx context.Context, e models.AuditEntry, body []byte) (string, error) {
	key := ArchiveKey(a.prefix, e)
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return key, nil
}
