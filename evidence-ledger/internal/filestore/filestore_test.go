package filestore_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaaval/Main/evidence-ledger/internal/filestore"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref := "cases/CASE-1/evidence/EV-1/scene photo.jpg"
	require.NoError(t, s.Write(ctx, ref, strings.NewReader("abc")))

	rc, err := s.Open(ctx, ref)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	// overwrite replaces content
	require.NoError(t, s.Write(ctx, ref, strings.NewReader("abd")))
	rc2, err := s.Open(ctx, ref)
	require.NoError(t, err)
	defer rc2.Close()
	got, err = io.ReadAll(rc2)
	require.NoError(t, err)
	assert.Equal(t, "abd", string(got))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, ref := range []string{"", "../etc/passwd", "cases/../../x", `cases\..\x`, "/"} {
		err := s.Write(ctx, ref, strings.NewReader("x"))
		assert.ErrorIs(t, err, filestore.ErrInvalidRef, "ref %q", ref)
		_, err = s.Open(ctx, ref)
		assert.ErrorIs(t, err, filestore.ErrInvalidRef, "ref %q", ref)
	}
}

func TestLocalStoreMissingFile(t *testing.T) {
	s, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Open(context.Background(), "cases/none.bin")
	assert.ErrorIs(t, err, filestore.ErrNotExist)
}

func TestLocalStoreDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := filestore.NewLocalStore(root)
	require.NoError(t, err)

	ref := "cases/CASE-1/evidence/EV-1/up-1/scene.jpg"
	require.NoError(t, s.Write(ctx, ref, strings.NewReader("abc")))
	require.NoError(t, s.Delete(ctx, ref))
	_, err = s.Open(ctx, ref)
	assert.ErrorIs(t, err, filestore.ErrNotExist)

	dir, err := s.Path("cases/CASE-1/evidence/EV-1/up-1")
	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "empty upload dir is removed")

	assert.NoError(t, s.Delete(ctx, ref), "missing ref")
	assert.ErrorIs(t, s.Delete(ctx, "../x"), filestore.ErrInvalidRef)

	require.NoError(t, s.Delete(ctx, "top.bin"))
	_, err = os.Stat(root)
	assert.NoError(t, err, "root is kept")
}

// blockingStore returns readers that block until released.
type blockingStore struct {
	release chan struct{}
}

type blockingReader struct {
	release chan struct{}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.release
	return 0, io.EOF
}

func (b *blockingReader) Close() error { return nil }

func (s *blockingStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	return &blockingReader{release: s.release}, nil
}

func (s *blockingStore) Write(ctx context.Context, ref string, r io.Reader) error { return nil }
func (s *blockingStore) Delete(ctx context.Context, ref string) error { return nil }

func TestWithReadTimeout(t *testing.T) {
	inner := &blockingStore{release: make(chan struct{})}
	defer close(inner.release)
	s := filestore.WithReadTimeout(inner, 20*time.Millisecond)

	rc, err := s.Open(context.Background(), "slow")
	require.NoError(t, err)
	defer rc.Close()

	start := time.Now()
	_, err = io.ReadAll(rc)
	assert.ErrorIs(t, err, filestore.ErrReadTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	// the reader stays failed
	_, err = rc.Read(make([]byte, 8))
	assert.ErrorIs(t, err, filestore.ErrReadTimeout)
}

func TestWithReadTimeoutPassesData(t *testing.T) {
	ctx := context.Background()
	local, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	payload := bytes.Repeat([]byte("evidence"), 10000)
	require.NoError(t, local.Write(ctx, "big.bin", bytes.NewReader(payload)))

	s := filestore.WithReadTimeout(local, time.Second)
	rc, err := s.Open(ctx, "big.bin")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	assert.Same(t, local, filestore.WithReadTimeout(local, 0))
}
