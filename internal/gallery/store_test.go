package gallery

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galleryflow/internal/asset"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func sampleAssets() []asset.Asset {
	return []asset.Asset{
		{
			ID:         "p1",
			Name:       "sunrise.jpg",
			MimeType:   "image/jpeg",
			Size:       1024,
			URL:        "https://cdn/p1",
			Provenance: asset.ProvenanceProvider,
			CreatedAt:  time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			Name:       "upload.png",
			MimeType:   "image/png",
			Size:       2048,
			URL:        "file:///tmp/upload.png",
			Provenance: asset.ProvenanceUploaded,
			CreatedAt:  time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestSaveAndListAssets(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAssets(ctx, "wedding", sampleAssets()))

	stored, err := store.ListAssets(ctx, "wedding")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	assert.NotEmpty(t, stored[0].RowID)
	assert.Equal(t, "wedding", stored[0].Gallery)
	assert.Equal(t, "p1", stored[0].Asset.ID)
	assert.Equal(t, "sunrise.jpg", stored[0].Asset.Name)
	assert.Equal(t, asset.ProvenanceProvider, stored[0].Asset.Provenance)
	assert.Equal(t, time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC), stored[0].Asset.CreatedAt)

	assert.Empty(t, stored[1].Asset.ID, "uploaded rows keep an empty provider ID")
	assert.Equal(t, asset.ProvenanceUploaded, stored[1].Asset.Provenance)
}

func TestSaveAssets_EmptyIsNoop(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAssets(ctx, "empty", nil))

	stored, err := store.ListAssets(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestGetAssets_SelectsInRequestedOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAssets(ctx, "g", sampleAssets()))

	all, err := store.ListAssets(ctx, "g")
	require.NoError(t, err)
	require.Len(t, all, 2)

	got, err := store.GetAssets(ctx, "g", []string{all[1].RowID, "unknown", all[0].RowID})
	require.NoError(t, err)
	require.Len(t, got, 2, "unknown IDs are skipped")
	assert.Equal(t, all[1].RowID, got[0].RowID)
	assert.Equal(t, all[0].RowID, got[1].RowID)
}

func TestGalleries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAssets(ctx, "beta", sampleAssets()[:1]))
	require.NoError(t, store.SaveAssets(ctx, "alpha", sampleAssets()[:1]))

	names, err := store.Galleries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}
