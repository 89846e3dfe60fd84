// Package hasher produces the digests the ledger relies on: SHA-256 over
// evidence byte streams and over canonicalized metadata mappings. Digests are
// 64 lowercase hex characters and are compared as exact strings.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/Kaaval/Main/evidence-ledger/internal/apperr"
	"github.com/Kaaval/Main/evidence-ledger/internal/canonical"
)

// DigestLength is the length of every digest string.
const DigestLength = sha256.Size * 2

// DigestBytes returns the hex-encoded SHA-256 of b.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DigestFile streams r through SHA-256. The input is never buffered whole.
func DigestFile(r io.Reader) (string, error) {
	d := NewDigester()
	if _, err := io.Copy(d, r); err != nil {
		return "", apperr.IO(err, "read evidence stream")
	}
	return d.Sum(), nil
}

// DigestPath opens path and digests its contents.
func DigestPath(path string) (sum string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, apperr.IO(err, "open %s", path)
	}
	defer f.Close()

	d := NewDigester()
	if _, err := io.Copy(d, f); err != nil {
		return "", 0, apperr.IO(err, "read %s", path)
	}
	return d.Sum(), d.Size(), nil
}

// DigestMetadata canonicalizes fields (keys sorted, deterministic encoding)
// and hashes the result. Insertion order never affects the digest.
func DigestMetadata(fields map[string]interface{}) (string, error) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	b, err := canonical.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("canonicalize metadata: %w", err)
	}
	return DigestBytes(b), nil
}

// Fragment shortens a digest for human-readable audit details.
func Fragment(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12] + "..."
}

// IsDigest reports whether s has the shape of a digest produced here.
func IsDigest(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Digester is an io.Writer that hashes everything written to it. It lets
// callers hash bytes while forwarding them elsewhere (io.TeeReader).
type Digester struct {
	h hash.Hash
	n int64
}

func NewDigester() *Digester {
	return &Digester{h: sha256.New()}
}

func (d *Digester) Write(p []byte) (int, error) {
	n, err := d.h.Write(p)
	d.n += int64(n)
	return n, err
}

// Sum returns the digest of the bytes written so far.
func (d *Digester) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Size returns the number of bytes written so far.
func (d *Digester) Size() int64 {
	return d.n
}
