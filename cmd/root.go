package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/picturebook/internal/config"
	"github.com/lehigh-university-libraries/picturebook/internal/pipeline"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "picturebook",
		Short: "Turn a picture into a short story with vision and language models",
		Long: `Picturebook captions an image with a vision model and uses the caption to
seed a short story in one of several styles.

It runs as a web interface, a one-shot command or an interactive console.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or TOML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newTellCmd(opts))
	cmd.AddCommand(newConsoleCmd(opts))

	return cmd
}

// loadApp reads the configuration and builds the shared pipeline state.
func loadApp(cmd *cobra.Command, opts *rootOptions) (*config.Config, *pipeline.App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	app, err := pipeline.New(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, app, nil
}
