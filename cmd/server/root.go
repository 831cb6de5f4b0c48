package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyang/portfolio-api/internal/config"
)

var (
	verbose bool
	envFile string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "portfolio-api",
	Short: "REST API for portfolio projects, blog posts and contact messages",
	Long: `portfolio-api serves CRUD endpoints for the projects, blogs and messages
collections over MongoDB, Postgres or an in-memory store.`,
	SilenceUsage: true,
	PersistentPreRunE: setup((*config.Config).Validate),
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

// setup loads the configuration, checks it with validate and installs the
// default logger.
func setup(validate func(*config.Config) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}

		loaded, err := config.Parse(files...)
		if err != nil {
			return err
		}
		if err := validate(loaded); err != nil {
			return err
		}
		cfg = loaded

		level, _ := cfg.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)
		return nil
	}
}

// Execute runs the root command. Any error exits with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load variables from this file instead of .env")
}
