package main

import (
	"github.com/spf13/cobra"

	"github.com/heimdex/clipdesk/internal/config"
)

func newRootCommand() *cobra.Command {
	var envFile string
	var jsonOut bool

	ctx := newCommandContext(&envFile, &jsonOut)

	rootCmd := &cobra.Command{
		Use:           "clipdesk",
		Short:         "Clipdesk media session agent",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DotEnvFile, "Dotenv file read before the environment")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Write machine-readable JSON")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newProjectsCommand(ctx))
	rootCmd.AddCommand(newAssetsCommand(ctx))
	rootCmd.AddCommand(newRenderCommand(ctx))
	rootCmd.AddCommand(newRendersCommand(ctx))

	return rootCmd
}
