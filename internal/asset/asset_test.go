package asset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"galleryflow/internal/provider"
)

func TestFromProvider_PrefersContentURL(t *testing.T) {
	entry := provider.Entry{
		ID:           "f1",
		Name:         "sunrise.jpg",
		MimeType:     "image/jpeg",
		Size:         2048,
		ContentURL:   "https://cdn/f1",
		ThumbnailURL: "https://cdn/thumb/f1",
		CreatedAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	a := FromProvider(entry)

	assert.Equal(t, "f1", a.ID)
	assert.Equal(t, "https://cdn/f1", a.URL)
	assert.Equal(t, ProvenanceProvider, a.Provenance)
	assert.Equal(t, entry.CreatedAt, a.CreatedAt)
}

func TestFromProvider_FallsBackToThumbnail(t *testing.T) {
	entry := provider.Entry{
		ID:           "f2",
		Name:         "dunes.png",
		MimeType:     "image/png",
		ThumbnailURL: "https://cdn/thumb/f2",
	}

	a := FromProvider(entry)

	assert.Equal(t, "https://cdn/thumb/f2", a.URL)
}

func TestFromProvider_Idempotent(t *testing.T) {
	entry := provider.Entry{
		ID:         "f3",
		Name:       "ridge.jpg",
		MimeType:   "image/jpeg",
		Size:       provider.SizeUnknown,
		ContentURL: "https://cdn/f3",
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	assert.Equal(t, FromProvider(entry), FromProvider(entry))
}

func TestFromUpload(t *testing.T) {
	created := time.Date(2024, 7, 4, 9, 0, 0, 0, time.UTC)

	a := FromUpload(Upload{
		URL:       "https://blobs/galleries/g1/frame.jpg",
		Name:      "frame.jpg",
		MimeType:  "image/jpeg",
		Size:      512,
		CreatedAt: created,
	})

	assert.Empty(t, a.ID, "uploaded assets carry no provider ID")
	assert.Equal(t, ProvenanceUploaded, a.Provenance)
	assert.Equal(t, "https://blobs/galleries/g1/frame.jpg", a.URL)
	assert.Equal(t, created, a.CreatedAt)
}
