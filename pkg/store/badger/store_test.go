package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoretti/lifeline/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(Options{Path: t.TempDir(), SyncWrites: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "tier/static-v1/GET /app.js", []byte("console.log(1)")))

	value, err := s.Get(ctx, "tier/static-v1/GET /app.js")
	require.NoError(t, err)
	assert.Equal(t, []byte("console.log(1)"), value)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "tier/static-v1/a", []byte("1")))
	require.NoError(t, s.Put(ctx, "tier/static-v1/b", []byte("2")))
	require.NoError(t, s.Put(ctx, "tier/dynamic-v1/c", []byte("3")))

	keys, err := s.List(ctx, "tier/static-v1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tier/static-v1/a", "tier/static-v1/b"}, keys)
}

func TestPutBatchAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := map[string][]byte{
		"batch/a": []byte("1"),
		"batch/b": []byte("2"),
		"batch/c": []byte("3"),
	}
	require.NoError(t, s.PutBatch(ctx, entries))

	keys, err := s.List(ctx, "batch/")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestDeletePrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "tier/static-v1/a", []byte("1")))
	require.NoError(t, s.Put(ctx, "tier/static-v2/a", []byte("2")))

	require.NoError(t, s.DeletePrefix(ctx, "tier/static-v1/"))

	_, err := s.Get(ctx, "tier/static-v1/a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	value, err := s.Get(ctx, "tier/static-v2/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), value)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(Options{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "queue/pending", []byte(`[{"id":1}]`)))
	require.NoError(t, s.Close())

	s2, err := New(Options{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	value, err := s2.Get(ctx, "queue/pending")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(value))
}

func TestContextCancelled(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	err = s.Put(ctx, "k", []byte("v"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHealthcheck(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Healthcheck(context.Background()))
}
