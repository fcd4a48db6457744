package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// listPageSize is the pageSize value for ListFolder requests.
const listPageSize = 100

// imageMimePrefix is the server-side mime filter applied to folder listings.
// Galleries only import images; everything else never leaves the provider.
const imageMimePrefix = "image/"

// FolderMimeType is the mime type the provider assigns to folder entries.
// Folder-ness is derived from it exactly once, at decode time.
const FolderMimeType = "application/vnd.storage.folder"

// SizeUnknown indicates the size was not present in the API response.
const SizeUnknown = -1

// Timestamp validation bounds — timestamps outside this range are replaced
// with the current time and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// Entry represents one provider file or folder, normalized from the API
// response — callers never see raw API data.
type Entry struct {
	ID           string
	Name         string
	MimeType     string
	IsFolder     bool
	Size         int64  // SizeUnknown if not present
	ContentURL   string // pre-authenticated, ephemeral; NEVER log
	ThumbnailURL string
	CreatedAt    time.Time
}

// fileResponse mirrors the provider's file resource JSON exactly.
// Unexported — callers use Entry via toEntry() normalization.
type fileResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	Size         *int64 `json:"size"`
	ContentURL   string `json:"contentUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	CreatedTime  string `json:"createdTime"`
}

type listResponse struct {
	Files         []fileResponse `json:"files"`
	NextPageToken string         `json:"nextPageToken"`
}

// toEntry normalizes a provider file resource into our Entry type.
func (f *fileResponse) toEntry(logger *slog.Logger) Entry {
	entry := Entry{
		ID:           f.ID,
		Name:         f.Name,
		MimeType:     f.MimeType,
		IsFolder:     f.MimeType == FolderMimeType,
		Size:         SizeUnknown,
		ContentURL:   f.ContentURL,
		ThumbnailURL: f.ThumbnailURL,
	}

	if f.Size != nil {
		entry.Size = *f.Size
	}

	entry.CreatedAt = parseTimestamp(f.CreatedTime, "createdTime", f.ID, logger)

	return entry
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Invalid or out-of-range timestamps are replaced with time.Now().UTC() and logged.
func parseTimestamp(raw, field, entryID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("field", field),
			slog.String("entry_id", entryID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, using current time",
			slog.String("field", field),
			slog.String("entry_id", entryID),
			slog.String("raw", raw),
		)

		return time.Now().UTC()
	}

	return t
}

// ListFolder returns all image children of a folder, handling pagination
// automatically. The mime filter is applied server-side; a folder with no
// images yields an empty slice and a nil error.
func (c *Client) ListFolder(ctx context.Context, folderID string) ([]Entry, error) {
	c.logger.Info("listing folder",
		slog.String("folder_id", folderID),
	)

	basePath := fmt.Sprintf("/files?parent=%s&mimePrefix=%s&pageSize=%d",
		url.QueryEscape(folderID), url.QueryEscape(imageMimePrefix), listPageSize)

	var entries []Entry

	pageToken := ""
	page := 1

	for {
		path := basePath
		if pageToken != "" {
			path += "&pageToken=" + url.QueryEscape(pageToken)
		}

		pageEntries, next, err := c.listPage(ctx, path, page)
		if err != nil {
			return nil, err
		}

		entries = append(entries, pageEntries...)
		pageToken = next
		page++

		if pageToken == "" {
			break
		}
	}

	c.logger.Info("listed folder complete",
		slog.String("folder_id", folderID),
		slog.Int("total_entries", len(entries)),
	)

	return entries, nil
}

// listPage fetches a single page of folder children and returns the entries
// and the next page token (empty if no more pages).
func (c *Client) listPage(ctx context.Context, path string, page int) ([]Entry, string, error) {
	resp, err := c.Do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, "", fmt.Errorf("provider: decoding list response: %w", err)
	}

	entries := make([]Entry, 0, len(lr.Files))
	for i := range lr.Files {
		entries = append(entries, lr.Files[i].toEntry(c.logger))
	}

	c.logger.Debug("fetched folder page",
		slog.Int("page", page),
		slog.Int("count", len(entries)),
	)

	return entries, lr.NextPageToken, nil
}

// GetFile retrieves the canonical metadata for one file by ID. Picker-surfaced
// metadata is not guaranteed complete, so every imported file goes through
// this call before normalization.
func (c *Client) GetFile(ctx context.Context, fileID string) (*Entry, error) {
	c.logger.Info("getting file metadata",
		slog.String("file_id", fileID),
	)

	resp, err := c.Do(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var fr fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("provider: decoding file response: %w", err)
	}

	entry := fr.toEntry(c.logger)

	return &entry, nil
}

// IsImage reports whether the entry's mime type is in the importable image range.
func (e *Entry) IsImage() bool {
	return strings.HasPrefix(e.MimeType, imageMimePrefix)
}
