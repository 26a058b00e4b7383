package badger

import (
	"context"
	"testing"

	"github.com/poiesic/cartograph/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memRepo(t *testing.T) storage.VectorRepository {
	t.Helper()
	repo, err := NewMemoryVectorRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestVectorRepository_PutGet(t *testing.T) {
	repo := memRepo(t)
	ctx := context.Background()

	vector := []float32{0.25, -1.5, 3}
	require.NoError(t, repo.Put(ctx, "abc123", vector))

	got, err := repo.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, vector, got)
}

func TestVectorRepository_GetMissing(t *testing.T) {
	repo := memRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVectorRepository_Has(t *testing.T) {
	repo := memRepo(t)
	ctx := context.Background()

	ok, err := repo.Has(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Put(ctx, "h1", []float32{1}))
	ok, err = repo.Has(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVectorRepository_EmptyHash(t *testing.T) {
	repo := memRepo(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.Put(ctx, "", []float32{1}), storage.ErrEmptyHash)
	_, err := repo.Get(ctx, "")
	assert.ErrorIs(t, err, storage.ErrEmptyHash)
}

func TestVectorRepository_OverwriteIsStable(t *testing.T) {
	repo := memRepo(t)
	ctx := context.Background()

	vector := []float32{1, 2, 3}
	require.NoError(t, repo.Put(ctx, "h", vector))
	require.NoError(t, repo.Put(ctx, "h", vector))

	got, err := repo.Get(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, vector, got)
}
