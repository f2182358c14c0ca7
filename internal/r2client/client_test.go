package r2client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with S3 conditional write semantics.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	seq     int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, etags: map[string]string{}}
}

func (m *memStore) put(key string, body io.Reader) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.seq++
	m.objects[key] = b
	m.etags[key] = fmt.Sprintf("etag-%d", m.seq)
	return m.etags[key], nil
}

func (m *memStore) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(key, body)
}

func (m *memStore) Download(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), m.etags[key], nil
}

func (m *memStore) PutIfAbsent(_ context.Context, key string, body io.Reader, _ string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return false, "", nil
	}
	etag, err := m.put(key, body)
	return err == nil, etag, err
}

func (m *memStore) PutIfMatch(_ context.Context, key string, body io.Reader, etag, _ string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.etags[key] != etag {
		return false, "", nil
	}
	newETag, err := m.put(key, body)
	return err == nil, newETag, err
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.etags, key)
	return nil
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Config{Endpoint: "https://r2.example.com", AccessKeyID: "id", SecretKey: "s", Bucket: "b"}.Validate())

	err := Config{Endpoint: "https://r2.example.com", AccessKeyID: "id"}.Validate()
	require.Error(t, err)
	assert.Equal(t, "r2client: missing bucket, secret key", err.Error())

	_, err = New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestCompressRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "store.db")
	packed := filepath.Join(dir, "store.db.zst")
	restored := filepath.Join(dir, "restored.db")

	data := strings.Repeat("bot application configuration ", 4000)
	require.NoError(t, os.WriteFile(src, []byte(data), 0o600))

	size, err := CompressFile(src, packed)
	require.NoError(t, err)
	assert.Less(t, size, int64(len(data)))

	f, err := os.Open(packed)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, DecompressTo(f, restored))

	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, data, string(got))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.partial"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestDecompressTo_CorruptInputLeavesNoFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	dst := filepath.Join(dir, "restored.db")

	err := DecompressTo(strings.NewReader("definitely not zstd"), dst)
	require.Error(t, err)
	assert.NoFileExists(t, dst)

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.partial"))
	assert.Empty(t, leftovers)
}

func TestCompressFile_MissingSource(t *testing.T) {
	t.Parallel()
	_, err := CompressFile(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "out.zst"))
	assert.Error(t, err)
}

func TestLease_Exclusive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()

	first := NewLease(store, "locks/snapshot", time.Minute)
	second := NewLease(store, "locks/snapshot", time.Minute)
	assert.NotEqual(t, first.Holder(), second.Holder())

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "an unexpired lease is not taken over")

	require.NoError(t, second.Release(ctx), "releasing an unheld lease is a no-op")
	require.NoError(t, first.Release(ctx))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLease_TakesOverExpiredClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()

	stale := NewLease(store, "locks/snapshot", time.Minute)
	stale.now = func() time.Time { return time.Now().Add(-time.Hour) }
	ok, err := stale.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	fresh := NewLease(store, "locks/snapshot", time.Minute)
	ok, err = fresh.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	_, _, err = store.Download(ctx, "locks/snapshot")
	assert.NoError(t, err, "a former holder does not delete the new claim")
}
