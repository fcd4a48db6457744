// Package picker orchestrates one user selection episode: expand chosen
// folders into their image children, deduplicate, fetch canonical metadata
// per file, and hand the surviving normalized assets to the caller's
// collector in a single call. Failures are scoped to one folder or one file
// and aggregated — a bad folder never drops the rest of the selection.
package picker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"galleryflow/internal/asset"
	"galleryflow/internal/auth"
	"galleryflow/internal/provider"
)

// ChoiceKind tags a selection entry as a file or a folder. Resolved once at
// selection time; nothing downstream re-inspects mime types to decide.
type ChoiceKind int

const (
	KindFile ChoiceKind = iota
	KindFolder
)

// Choice is one entry the user picked in the chooser.
type Choice struct {
	ID   string
	Kind ChoiceKind
}

// Selection is the ordered set of entries from one chooser confirmation.
// An empty selection is valid and produces an empty collector call.
type Selection []Choice

// Failure records one folder or file that contributed nothing, with the
// error that excluded it.
type Failure struct {
	ID  string
	Err error
}

// Report aggregates the partial failures of one picker episode for UI
// reporting. Resolved is the number of assets handed to the collector.
type Report struct {
	Resolved       int
	FolderFailures []Failure
	FileFailures   []Failure
}

// Collector receives the normalized assets of one picker episode. Called
// exactly once per Pick, including with an empty slice. The callee owns the
// slice afterward.
type Collector func(ctx context.Context, assets []asset.Asset) error

// Lister is the subset of the provider client the picker needs.
type Lister interface {
	ListFolder(ctx context.Context, folderID string) ([]provider.Entry, error)
	GetFile(ctx context.Context, fileID string) (*provider.Entry, error)
}

// TokenBroker gates the picker on a usable session token.
type TokenBroker interface {
	Acquire(ctx context.Context) (auth.Token, error)
}

// Picker drives selection expansion against the provider API.
type Picker struct {
	client Lister
	broker TokenBroker
	logger *slog.Logger
}

// New creates a Picker.
func New(client Lister, broker TokenBroker, logger *slog.Logger) *Picker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Picker{
		client: client,
		broker: broker,
		logger: logger,
	}
}

// Pick runs one selection episode. The token is acquired first — if that
// fails (ErrInitFailed, ErrConsentDenied) the collector is never called.
// After that point only per-folder and per-file failures occur; they are
// recorded in the Report and the episode continues. The collector is called
// exactly once with the surviving assets, in selection order.
func (p *Picker) Pick(ctx context.Context, sel Selection, collect Collector) (*Report, error) {
	if _, err := p.broker.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("picker: acquiring token: %w", err)
	}

	p.logger.Info("selection confirmed",
		slog.Int("choices", len(sel)),
	)

	report := &Report{}

	flattened := p.expand(ctx, sel, report)
	assets := p.resolve(ctx, flattened, report)

	if err := collect(ctx, assets); err != nil {
		return report, fmt.Errorf("picker: collector failed: %w", err)
	}

	report.Resolved = len(assets)

	p.logger.Info("selection resolved",
		slog.Int("assets", len(assets)),
		slog.Int("folder_failures", len(report.FolderFailures)),
		slog.Int("file_failures", len(report.FileFailures)),
	)

	return report, nil
}

// expand flattens the selection into an ordered, deduplicated list of file
// IDs. Folders are listed via the provider; a folder that fails to list is
// recorded and skipped, leaving sibling results untouched.
func (p *Picker) expand(ctx context.Context, sel Selection, report *Report) []string {
	var ids []string

	seen := make(map[string]bool)

	appendID := func(id string) {
		if id == "" || seen[id] {
			return
		}

		seen[id] = true
		ids = append(ids, id)
	}

	for _, choice := range sel {
		switch choice.Kind {
		case KindFile:
			appendID(choice.ID)
		case KindFolder:
			children, err := p.client.ListFolder(ctx, choice.ID)
			if err != nil {
				p.logger.Warn("folder listing failed, skipping folder",
					slog.String("folder_id", choice.ID),
					slog.String("error", err.Error()),
				)

				report.FolderFailures = append(report.FolderFailures, Failure{ID: choice.ID, Err: err})

				continue
			}

			for _, child := range children {
				if child.IsFolder {
					// Providers should not return folders under an image
					// mime filter, but tolerate it.
					continue
				}

				appendID(child.ID)
			}
		}
	}

	return ids
}

// resolve fetches canonical metadata for every flattened ID and normalizes
// the survivors. A file whose metadata fetch fails, or that exposes no
// retrievable URL, is dropped and recorded.
func (p *Picker) resolve(ctx context.Context, ids []string, report *Report) []asset.Asset {
	assets := make([]asset.Asset, 0, len(ids))

	for _, id := range ids {
		entry, err := p.client.GetFile(ctx, id)
		if err != nil {
			p.logger.Warn("metadata fetch failed, dropping file",
				slog.String("file_id", id),
				slog.String("error", err.Error()),
			)

			report.FileFailures = append(report.FileFailures, Failure{ID: id, Err: err})

			continue
		}

		if entry.ContentURL == "" && entry.ThumbnailURL == "" {
			p.logger.Warn("file has no retrievable URL, dropping",
				slog.String("file_id", id),
			)

			report.FileFailures = append(report.FileFailures, Failure{ID: id, Err: errNoURL})

			continue
		}

		assets = append(assets, asset.FromProvider(*entry))
	}

	return assets
}

// errNoURL excludes entries with neither a content nor a thumbnail URL.
// The invariant is enforced here, before normalization — FromProvider itself
// never rejects input.
var errNoURL = errors.New("picker: entry has no retrievable URL")
