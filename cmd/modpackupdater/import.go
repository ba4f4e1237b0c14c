package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/importer"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/logging"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/pack"
)

var importOpts struct {
	id        string
	version   string
	overwrite bool
	resolve   bool
	workers   int
}

var importCmd = &cobra.Command{
	Use:   "import <archive>",
	Short: "Import a pack archive (.zip or .mrpack) into the pack root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logging.Sync()

		store, err := pack.NewStore(cfg.RootDir)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		res, err := importer.New(store).Import(ctx, args[0], importer.Options{
			ID:            importOpts.id,
			Version:       importOpts.version,
			Overwrite:     importOpts.overwrite,
			ResolveRemote: importOpts.resolve,
			Workers:       importOpts.workers,
		})
		if err != nil {
			return err
		}

		fmt.Printf("imported %s (version %s): %d files extracted, %d downloaded, %d skipped\n",
			res.PackID, res.Version, res.Extracted, res.Resolved, res.Skipped)
		for _, w := range res.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d remote files failed to resolve", len(res.Failed))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importOpts.id, "id", "", "pack id override (default: inferred from the archive)")
	importCmd.Flags().StringVar(&importOpts.version, "version", "", "version label override (advisory)")
	importCmd.Flags().BoolVar(&importOpts.overwrite, "overwrite", false, "replace an existing pack instead of merging")
	importCmd.Flags().BoolVar(&importOpts.resolve, "resolve", false, "download remote files listed by the pack index")
	importCmd.Flags().IntVar(&importOpts.workers, "workers", 0, "remote download concurrency (clamped to 2..8)")
}
