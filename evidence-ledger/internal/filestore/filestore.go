// Package filestore reads and writes evidence file bytes. References are
// slash-separated keys such as cases/<case>/evidence/<id>/<name>.
package filestore

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store is the file collaborator the engine hashes and verifies against.
type Store interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Write(ctx context.Context, ref string, r io.Reader) error
	// Delete removes ref. Deleting a missing ref is not an error.
	Delete(ctx context.Context, ref string) error
}

var (
	// ErrNotExist is returned by Open when nothing is stored under ref.
	ErrNotExist = errors.New("file does not exist")
	// ErrInvalidRef is returned for references that are empty or would
	// escape the store root.
	ErrInvalidRef = errors.New("invalid file reference")
	// ErrReadTimeout is returned by readers wrapped with WithReadTimeout.
	ErrReadTimeout = errors.New("file read timed out")
)

// WithReadTimeout wraps s so that every Read on an opened file fails with
// ErrReadTimeout when it does not return within d. d <= 0 returns s.
func WithReadTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timeoutStore{Store: s, timeout: d}
}

type timeoutStore struct {
	Store
	timeout time.Duration
}

func (t *timeoutStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	rc, err := t.Store.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &timeoutReader{rc: rc, timeout: t.timeout}, nil
}

type readResult struct {
	n   int
	err error
}

// timeoutReader runs each Read on a helper goroutine so that a hung read on
// a network mount cannot block the caller past the deadline. After a timeout
// the reader is poisoned and the underlying file is closed.
type timeoutReader struct {
	rc      io.ReadCloser
	timeout time.Duration
	buf     []byte
	failed  error
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	if r.failed != nil {
		return 0, r.failed
	}
	if len(r.buf) < len(p) {
		r.buf = make([]byte, len(p))
	}
	buf := r.buf[:len(p)]

	done := make(chan readResult, 1)
	go func() {
		n, err := r.rc.Read(buf)
		done <- readResult{n: n, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		copy(p, buf[:res.n])
		return res.n, res.err
	case <-timer.C:
		r.failed = ErrReadTimeout
		// the pending read still owns buf
		r.buf = nil
		_ = r.rc.Close()
		return 0, ErrReadTimeout
	}
}

func (r *timeoutReader) Close() error {
	if r.failed != nil {
		return nil
	}
	return r.rc.Close()
}
