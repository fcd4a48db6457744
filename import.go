package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"galleryflow/internal/asset"
	"galleryflow/internal/auth"
	"galleryflow/internal/gallery"
	"galleryflow/internal/picker"
	"galleryflow/internal/provider"
)

// newImportCmd runs one picker episode: provider files/folders named by ID
// plus optional direct uploads from local paths, resolved and persisted into
// the gallery store.
func newImportCmd() *cobra.Command {
	var (
		flagFolders []string
		flagFiles   []string
		flagUploads []string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import images into a gallery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			galleryName, err := requireGallery()
			if err != nil {
				return err
			}

			if len(flagFolders)+len(flagFiles)+len(flagUploads) == 0 {
				return fmt.Errorf("nothing to import: pass --folder, --file, or --upload")
			}

			logger := buildLogger()
			ctx := cmd.Context()

			store, err := gallery.Open(ctx, resolvedCfg.Storage.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(flagFolders)+len(flagFiles) > 0 {
				if err := importFromProvider(ctx, cmd, store, galleryName, flagFolders, flagFiles); err != nil {
					return err
				}
			}

			if len(flagUploads) > 0 {
				if err := importUploads(ctx, cmd, store, galleryName, flagUploads); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&flagFolders, "folder", nil, "provider folder ID to import recursively (repeatable)")
	cmd.Flags().StringArrayVar(&flagFiles, "file", nil, "provider file ID to import (repeatable)")
	cmd.Flags().StringArrayVar(&flagUploads, "upload", nil, "local image path to import as a direct upload (repeatable)")

	return cmd
}

// importFromProvider runs the token/picker pipeline against the provider
// selection and persists the resolved assets.
func importFromProvider(
	ctx context.Context,
	cmd *cobra.Command,
	store *gallery.Store,
	galleryName string,
	folders, files []string,
) error {
	slogger := buildLogger()

	broker, err := auth.New(auth.Config{
		ClientID:    resolvedCfg.Provider.ClientID,
		AuthURL:     resolvedCfg.Provider.AuthURL,
		TokenURL:    resolvedCfg.Provider.TokenURL,
		Scopes:      resolvedCfg.Provider.Scopes,
		OpenBrowser: openBrowser,
	}, slogger)
	if err != nil {
		return fmt.Errorf("provider import unavailable: %w", err)
	}

	client := provider.NewClient(resolvedCfg.Provider.BaseURL, defaultHTTPClient(), broker, slogger)
	pick := picker.New(client, broker, slogger)

	sel := make(picker.Selection, 0, len(files)+len(folders))
	for _, id := range files {
		sel = append(sel, picker.Choice{ID: id, Kind: picker.KindFile})
	}

	for _, id := range folders {
		sel = append(sel, picker.Choice{ID: id, Kind: picker.KindFolder})
	}

	report, err := pick.Pick(ctx, sel, func(ctx context.Context, assets []asset.Asset) error {
		return store.SaveAssets(ctx, galleryName, assets)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d asset(s) into %q.\n", report.Resolved, galleryName)

	for _, f := range report.FolderFailures {
		fmt.Fprintf(cmd.OutOrStdout(), "  folder %s skipped: %v\n", f.ID, f.Err)
	}

	for _, f := range report.FileFailures {
		fmt.Fprintf(cmd.OutOrStdout(), "  file %s skipped: %v\n", f.ID, f.Err)
	}

	return nil
}

// importUploads normalizes local files as uploaded-provenance assets and
// persists them. A path that cannot be read is reported and skipped.
func importUploads(
	ctx context.Context,
	cmd *cobra.Command,
	store *gallery.Store,
	galleryName string,
	paths []string,
) error {
	assets := make([]asset.Asset, 0, len(paths))

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  upload %s skipped: %v\n", p, err)

			continue
		}

		abs, err := filepath.Abs(p)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  upload %s skipped: %v\n", p, err)

			continue
		}

		mimeType := mime.TypeByExtension(filepath.Ext(p))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		assets = append(assets, asset.FromUpload(asset.Upload{
			URL:       "file://" + abs,
			Name:      filepath.Base(p),
			MimeType:  mimeType,
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		}))
	}

	if err := store.SaveAssets(ctx, galleryName, assets); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d asset(s) into %q.\n", len(assets), galleryName)

	return nil
}
