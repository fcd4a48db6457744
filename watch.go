package main

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"galleryflow/internal/asset"
	"galleryflow/internal/gallery"
)

// settleDelay is how long a file must stay quiet after its last write event
// before it is imported. Cameras and transfer tools write images in bursts;
// importing mid-write produces truncated assets.
const settleDelay = 2 * time.Second

// newWatchCmd watches a drop directory and imports every new image file as
// an uploaded-provenance asset.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a drop directory and import new images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			galleryName, err := requireGallery()
			if err != nil {
				return err
			}

			logger := buildLogger()
			ctx := cmd.Context()

			store, err := gallery.Open(ctx, resolvedCfg.Storage.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			return watchDir(ctx, args[0], galleryName, store, logger)
		},
	}
}

// watchDir runs the fsnotify loop until the context is canceled. Each image
// file that settles is normalized and persisted; per-file failures are
// logged and do not stop the watcher.
func watchDir(ctx context.Context, dir, galleryName string, store *gallery.Store, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	logger.Info("watching drop directory",
		slog.String("dir", dir),
		slog.String("gallery", galleryName),
	)

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)

	// Pending timers must not outlive the watch loop.
	defer func() {
		mu.Lock()
		defer mu.Unlock()

		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("watcher error", slog.String("error", watchErr.Error()))
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			if !isImagePath(ev.Name) {
				continue
			}

			path := ev.Name

			mu.Lock()
			if t, exists := timers[path]; exists {
				t.Stop()
			}

			timers[path] = time.AfterFunc(settleDelay, func() {
				mu.Lock()
				delete(timers, path)
				mu.Unlock()

				importDroppedFile(ctx, path, galleryName, store, logger)
			})
			mu.Unlock()
		}
	}
}

// importDroppedFile persists one settled drop-directory file.
func importDroppedFile(ctx context.Context, path, galleryName string, store *gallery.Store, logger *slog.Logger) {
	info, err := os.Stat(path)
	if err != nil {
		logger.Warn("dropped file vanished before import",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		logger.Warn("resolving dropped file path failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return
	}

	a := asset.FromUpload(asset.Upload{
		URL:       "file://" + abs,
		Name:      filepath.Base(path),
		MimeType:  mime.TypeByExtension(filepath.Ext(path)),
		Size:      info.Size(),
		CreatedAt: info.ModTime().UTC(),
	})

	if err := store.SaveAssets(ctx, galleryName, []asset.Asset{a}); err != nil {
		logger.Warn("importing dropped file failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return
	}

	logger.Info("imported dropped file",
		slog.String("path", path),
		slog.String("gallery", galleryName),
	)
}

// isImagePath reports whether the file extension maps to an image mime type.
func isImagePath(path string) bool {
	mimeType := mime.TypeByExtension(filepath.Ext(path))

	return strings.HasPrefix(mimeType, "image/")
}
