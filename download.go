package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"galleryflow/internal/asset"
	"galleryflow/internal/delivery"
	"galleryflow/internal/gallery"
	"galleryflow/internal/notify"
)

// newDownloadCmd runs one batch delivery episode over a stored gallery
// selection. Direct-provenance assets are fetched sequentially; provider
// assets are listed as numbered manual actions the user invokes one at a
// time, matching the one-delivery-per-gesture constraint.
func newDownloadCmd() *cobra.Command {
	var (
		flagOut       string
		flagAssets    []string
		flagAll       bool
		flagNotifyURL string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Batch-download gallery assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			galleryName, err := requireGallery()
			if err != nil {
				return err
			}

			if !flagAll && len(flagAssets) == 0 {
				return fmt.Errorf("nothing selected: pass --all or --asset")
			}

			logger := buildLogger()
			ctx := cmd.Context()

			store, err := gallery.Open(ctx, resolvedCfg.Storage.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			var stored []gallery.StoredAsset
			if flagAll {
				stored, err = store.ListAssets(ctx, galleryName)
			} else {
				stored, err = store.GetAssets(ctx, galleryName, flagAssets)
			}

			if err != nil {
				return err
			}

			assets := make([]asset.Asset, 0, len(stored))
			for _, sa := range stored {
				assets = append(assets, sa.Asset)
			}

			outDir := resolvedCfg.Delivery.DownloadDir
			if flagOut != "" {
				outDir = flagOut
			}

			sink := notify.Sink(notify.LogSink{Logger: logger})

			if flagNotifyURL != "" {
				conn, _, dialErr := websocket.Dial(ctx, flagNotifyURL, nil)
				if dialErr != nil {
					return fmt.Errorf("connecting to notification endpoint: %w", dialErr)
				}
				defer conn.Close(websocket.StatusNormalClosure, "")

				wsSink := notify.NewWebsocketSink(conn, logger)
				defer wsSink.Close()

				sink = notify.MultiSink{sink, wsSink}
			}

			orch := delivery.New(delivery.Config{
				OutDir: outDir,
				Pacing: resolvedCfg.Pacing(),
			}, defaultHTTPClient(), sink, logger)

			result, err := orch.Run(ctx, assets)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Done: %d downloaded, %d failed.\n",
				len(result.Succeeded), len(result.Failed))

			if len(result.Triggers) > 0 {
				runTriggers(cmd, result.Triggers)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&flagOut, "out", "", "output directory (default from config)")
	cmd.Flags().StringArrayVar(&flagAssets, "asset", nil, "asset row ID to download (repeatable)")
	cmd.Flags().BoolVar(&flagAll, "all", false, "download every asset in the gallery")
	cmd.Flags().StringVar(&flagNotifyURL, "notify-url", "", "websocket endpoint to stream batch events to")

	return cmd
}

// runTriggers renders the per-item manual actions for provider-hosted assets
// and executes each on user confirmation. Items are never auto-opened.
func runTriggers(cmd *cobra.Command, triggers []delivery.Trigger) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%d provider item(s) need a manual download each:\n", len(triggers))

	for i, t := range triggers {
		fmt.Fprintf(out, "  [%d] %s\n", i+1, t.Asset.Name)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())

	for {
		fmt.Fprint(out, "item number to download (empty to finish): ")

		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return
		}

		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(triggers) {
			fmt.Fprintln(out, "invalid item number")

			continue
		}

		t := triggers[n-1]
		if err := t.Open(cmd.Context()); err != nil {
			fmt.Fprintf(out, "  %s failed: %v\n", t.Asset.Name, err)

			continue
		}

		fmt.Fprintf(out, "  %s downloaded\n", t.Asset.Name)
	}
}
