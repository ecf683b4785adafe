package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/eventbot/core/buildinfo"
	corecmd "github.com/m3rciful/eventbot/core/cmd"
	"github.com/m3rciful/eventbot/core/database"
	"github.com/m3rciful/eventbot/internal/app"
	"github.com/m3rciful/eventbot/migrations"
)

const defaultConfigPath = "configs/config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	runOpts := func() corecmd.Options {
		return corecmd.Options{
			ConfigPath:        configPath,
			DefaultConfigPath: defaultConfigPath,
			LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
				return app.Load(path)
			},
			Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
				return app.Bootstrap(ctx, cfg)
			},
		}
	}

	root := &cobra.Command{
		Use:           "eventbot",
		Short:         "Telegram bot that registers events and hands out their links",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return corecmd.Run(runOpts())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config (default $CONFIG_PATH or "+defaultConfigPath+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the bot (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return corecmd.Run(runOpts())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := corecmd.ResolveConfigPath(runOpts())
				if err != nil {
					return err
				}
				cfg, err := app.Load(path)
				if err != nil {
					return err
				}
				if err := database.RunMigrations(cfg.Database, migrations.FS); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
			},
		},
	)
	return root
}
