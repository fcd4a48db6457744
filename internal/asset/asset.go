// Package asset defines the unified gallery asset record and the pure
// mapping functions that produce it from either provenance. No I/O happens
// here; records with no usable URL are excluded and reported by callers
// before normalization, never silently emitted.
package asset

import (
	"time"

	"galleryflow/internal/provider"
)

// Provenance distinguishes an asset imported from the storage provider from
// one uploaded directly to first-party storage.
type Provenance string

const (
	ProvenanceUploaded Provenance = "uploaded"
	ProvenanceProvider Provenance = "provider"
)

// Asset is the unified record for one importable/downloadable image
// regardless of origin. Created once per successful resolution and never
// mutated afterward by this pipeline; downstream gallery persistence owns
// any later mutation.
type Asset struct {
	ID         string // provider entry ID; empty for uploaded assets
	Name       string
	MimeType   string
	Size       int64 // provider.SizeUnknown if not reported
	URL        string
	Provenance Provenance
	CreatedAt  time.Time
}

// Upload is the result of a completed direct upload, as reported by the
// first-party object storage layer.
type Upload struct {
	URL       string
	Name      string
	MimeType  string
	Size      int64
	CreatedAt time.Time // upload completion time, stamped by the storage layer
}

// FromProvider maps a provider entry to an Asset. The content URL is
// preferred; the thumbnail URL is the fallback. Pure — calling it twice on
// the same entry yields identical records.
func FromProvider(e provider.Entry) Asset {
	url := e.ContentURL
	if url == "" {
		url = e.ThumbnailURL
	}

	return Asset{
		ID:         e.ID,
		Name:       e.Name,
		MimeType:   e.MimeType,
		Size:       e.Size,
		URL:        url,
		Provenance: ProvenanceProvider,
		CreatedAt:  e.CreatedAt,
	}
}

// FromUpload maps a direct-upload result to an Asset. Uploaded assets carry
// no provider ID. Pure — the timestamp comes from the upload result, not
// from a clock read here.
func FromUpload(u Upload) Asset {
	return Asset{
		Name:       u.Name,
		MimeType:   u.MimeType,
		Size:       u.Size,
		URL:        u.URL,
		Provenance: ProvenanceUploaded,
		CreatedAt:  u.CreatedAt,
	}
}
