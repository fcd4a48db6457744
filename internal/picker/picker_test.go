package picker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galleryflow/internal/asset"
	"galleryflow/internal/auth"
	"galleryflow/internal/provider"
)

// fakeClient implements Lister with injectable behavior per folder/file ID.
type fakeClient struct {
	folders map[string][]provider.Entry
	files   map[string]provider.Entry

	folderErrs map[string]error
	fileErrs   map[string]error

	getFileCalls []string
}

func (f *fakeClient) ListFolder(_ context.Context, folderID string) ([]provider.Entry, error) {
	if err := f.folderErrs[folderID]; err != nil {
		return nil, err
	}

	return f.folders[folderID], nil
}

func (f *fakeClient) GetFile(_ context.Context, fileID string) (*provider.Entry, error) {
	f.getFileCalls = append(f.getFileCalls, fileID)

	if err := f.fileErrs[fileID]; err != nil {
		return nil, err
	}

	entry, ok := f.files[fileID]
	if !ok {
		return nil, provider.ErrNotFound
	}

	return &entry, nil
}

// fakeBroker implements TokenBroker.
type fakeBroker struct {
	err error
}

func (b *fakeBroker) Acquire(_ context.Context) (auth.Token, error) {
	if b.err != nil {
		return auth.Token{}, b.err
	}

	return auth.Token{Value: "tok"}, nil
}

func imageEntry(id string) provider.Entry {
	return provider.Entry{
		ID:         id,
		Name:       id + ".jpg",
		MimeType:   "image/jpeg",
		Size:       100,
		ContentURL: "https://cdn/" + id,
	}
}

func newTestPicker(client *fakeClient, broker TokenBroker) *Picker {
	return New(client, broker, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// collectInto returns a Collector appending into the given slice and
// counting invocations.
func collectInto(collected *[]asset.Asset, calls *int) Collector {
	return func(_ context.Context, assets []asset.Asset) error {
		*calls++
		*collected = assets

		return nil
	}
}

func TestPick_FilesOnlyPreservesOrderAndDedups(t *testing.T) {
	client := &fakeClient{
		files: map[string]provider.Entry{
			"f1": imageEntry("f1"),
			"f2": imageEntry("f2"),
			"f3": imageEntry("f3"),
		},
	}

	sel := Selection{
		{ID: "f2", Kind: KindFile},
		{ID: "f1", Kind: KindFile},
		{ID: "f2", Kind: KindFile}, // duplicate
		{ID: "f3", Kind: KindFile},
	}

	var (
		collected []asset.Asset
		calls     int
	)

	report, err := newTestPicker(client, &fakeBroker{}).Pick(context.Background(), sel, collectInto(&collected, &calls))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"f2", "f1", "f3"}, client.getFileCalls,
		"flattened sequence equals deduplicated input, order preserved")
	require.Len(t, collected, 3)
	assert.Equal(t, "f2", collected[0].ID)
	assert.Equal(t, asset.ProvenanceProvider, collected[0].Provenance)
	assert.Equal(t, 3, report.Resolved)
	assert.Empty(t, report.FolderFailures)
	assert.Empty(t, report.FileFailures)
}

func TestPick_FolderFailureInvisibleToSiblings(t *testing.T) {
	client := &fakeClient{
		folders: map[string][]provider.Entry{
			"good": {imageEntry("g1"), imageEntry("g2")},
		},
		folderErrs: map[string]error{
			"bad": &provider.Error{StatusCode: 403, Err: provider.ErrForbidden},
		},
		files: map[string]provider.Entry{
			"g1": imageEntry("g1"),
			"g2": imageEntry("g2"),
			"f1": imageEntry("f1"),
		},
	}

	sel := Selection{
		{ID: "bad", Kind: KindFolder},
		{ID: "good", Kind: KindFolder},
		{ID: "f1", Kind: KindFile},
	}

	var (
		collected []asset.Asset
		calls     int
	)

	report, err := newTestPicker(client, &fakeBroker{}).Pick(context.Background(), sel, collectInto(&collected, &calls))
	require.NoError(t, err)

	// Emitted sequence equals what a selection without "bad" would produce.
	require.Len(t, collected, 3)
	assert.Equal(t, "g1", collected[0].ID)
	assert.Equal(t, "g2", collected[1].ID)
	assert.Equal(t, "f1", collected[2].ID)

	require.Len(t, report.FolderFailures, 1)
	assert.Equal(t, "bad", report.FolderFailures[0].ID)
	assert.ErrorIs(t, report.FolderFailures[0].Err, provider.ErrForbidden)
}

func TestPick_AllFoldersFail(t *testing.T) {
	client := &fakeClient{
		folderErrs: map[string]error{
			"a": errors.New("boom"),
			"b": errors.New("boom"),
		},
	}

	var (
		collected []asset.Asset
		calls     int
	)

	report, err := newTestPicker(client, &fakeBroker{}).Pick(context.Background(),
		Selection{{ID: "a", Kind: KindFolder}, {ID: "b", Kind: KindFolder}},
		collectInto(&collected, &calls))
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "collector still called, with an empty list")
	assert.Empty(t, collected)
	assert.Len(t, report.FolderFailures, 2)
}

func TestPick_FileReachableTwiceAppearsOnce(t *testing.T) {
	client := &fakeClient{
		folders: map[string][]provider.Entry{
			"folder": {imageEntry("shared"), imageEntry("other")},
		},
		files: map[string]provider.Entry{
			"shared": imageEntry("shared"),
			"other":  imageEntry("other"),
		},
	}

	sel := Selection{
		{ID: "shared", Kind: KindFile},
		{ID: "folder", Kind: KindFolder},
	}

	var (
		collected []asset.Asset
		calls     int
	)

	_, err := newTestPicker(client, &fakeBroker{}).Pick(context.Background(), sel, collectInto(&collected, &calls))
	require.NoError(t, err)

	assert.Equal(t, []string{"shared", "other"}, client.getFileCalls)
	require.Len(t, collected, 2)
}

func TestPick_MetadataFailureDropsOnlyThatFile(t *testing.T) {
	// Mixed selection: fileA picked directly, folderF contains fileB and
	// fileC; fileC's metadata fetch fails.
	client := &fakeClient{
		folders: map[string][]provider.Entry{
			"folderF": {imageEntry("fileB"), imageEntry("fileC")},
		},
		files: map[string]provider.Entry{
			"fileA": imageEntry("fileA"),
			"fileB": imageEntry("fileB"),
		},
		fileErrs: map[string]error{
			"fileC": &provider.Error{StatusCode: 500, Err: provider.ErrServerError},
		},
	}

	sel := Selection{
		{ID: "fileA", Kind: KindFile},
		{ID: "folderF", Kind: KindFolder},
	}

	var (
		collected []asset.Asset
		calls     int
	)

	report, err := newTestPicker(client, &fakeBroker{}).Pick(context.Background(), sel, collectInto(&collected, &calls))
	require.NoError(t, err)

	require.Len(t, collected, 2)
	assert.Equal(t, "fileA", collected[0].ID)
	assert.Equal(t, "fileB", collected[1].ID)

	require.Len(t, report.FileFailures, 1)
	assert.Equal(t, "fileC", report.FileFailures[0].ID)
}

func TestPick_EntryWithoutURLDropped(t *testing.T) {
	noURL := imageEntry("nourl")
	noURL.ContentURL = ""
	noURL.ThumbnailURL = ""

	client := &fakeClient{
		files: map[string]provider.Entry{
			"nourl": noURL,
			"ok":    imageEntry("ok"),
		},
	}

	var (
		collected []asset.Asset
		calls     int
	)

	report, err := newTestPicker(client, &fakeBroker{}).Pick(context.Background(),
		Selection{{ID: "nourl", Kind: KindFile}, {ID: "ok", Kind: KindFile}},
		collectInto(&collected, &calls))
	require.NoError(t, err)

	require.Len(t, collected, 1)
	assert.Equal(t, "ok", collected[0].ID)
	require.Len(t, report.FileFailures, 1)
	assert.Equal(t, "nourl", report.FileFailures[0].ID)
}

func TestPick_EmptySelection(t *testing.T) {
	var (
		collected []asset.Asset
		calls     int
	)

	report, err := newTestPicker(&fakeClient{}, &fakeBroker{}).Pick(context.Background(),
		Selection{}, collectInto(&collected, &calls))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Empty(t, collected)
	assert.Empty(t, report.FolderFailures)
	assert.Empty(t, report.FileFailures)
}

func TestPick_TokenFailureSkipsCollector(t *testing.T) {
	var calls int

	_, err := newTestPicker(&fakeClient{}, &fakeBroker{err: auth.ErrConsentDenied}).Pick(
		context.Background(),
		Selection{{ID: "f1", Kind: KindFile}},
		func(_ context.Context, _ []asset.Asset) error {
			calls++
			return nil
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrConsentDenied)
	assert.Zero(t, calls, "collector must not run without a token")
}

func TestPick_CollectorErrorSurfaces(t *testing.T) {
	client := &fakeClient{
		files: map[string]provider.Entry{"f1": imageEntry("f1")},
	}

	_, err := newTestPicker(client, &fakeBroker{}).Pick(context.Background(),
		Selection{{ID: "f1", Kind: KindFile}},
		func(_ context.Context, _ []asset.Asset) error {
			return fmt.Errorf("persistence down")
		})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence down")
}
