package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanjnn/sketchy/config"
	"github.com/aidanjnn/sketchy/internal/bootstrap"
	"github.com/aidanjnn/sketchy/internal/jobs"
	"github.com/aidanjnn/sketchy/internal/platform/logger"
	"github.com/aidanjnn/sketchy/internal/projects/repository"
	"github.com/aidanjnn/sketchy/internal/projects/service"
)

var purgeRetention time.Duration

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Permanently remove soft-deleted projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.App.Environment, cfg.App.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync()

		retention := cfg.Jobs.PurgeRetention
		if cmd.Flags().Changed("retention") {
			retention = purgeRetention
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		stores, err := bootstrap.OpenStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer stores.Close()

		projects := service.NewProjectService(repository.NewProjectRepository(stores.SQL))
		n, err := jobs.NewScheduler(projects, retention, log).RunPurge(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d project(s)\n", n)
		return nil
	},
}

func init() {
	purgeCmd.Flags().DurationVar(&purgeRetention, "retention", 0, "purge projects deleted longer ago than this (default PURGE_RETENTION)")
	rootCmd.AddCommand(purgeCmd)
}
