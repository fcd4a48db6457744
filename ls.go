package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"galleryflow/internal/gallery"
	"galleryflow/internal/provider"
)

// newLsCmd lists a gallery's assets, or all gallery names when no --gallery
// is given.
func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List galleries or gallery assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()
			ctx := cmd.Context()

			store, err := gallery.Open(ctx, resolvedCfg.Storage.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if flagGallery == "" {
				names, err := store.Galleries(ctx)
				if err != nil {
					return err
				}

				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}

				return nil
			}

			assets, err := store.ListAssets(ctx, flagGallery)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tSIZE\tORIGIN")

			for _, sa := range assets {
				size := "-"
				if sa.Asset.Size != provider.SizeUnknown {
					size = fmt.Sprintf("%d", sa.Asset.Size)
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					sa.RowID, sa.Asset.Name, sa.Asset.MimeType, size, sa.Asset.Provenance)
			}

			return w.Flush()
		},
	}
}
