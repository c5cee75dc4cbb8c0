package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/picturebook/internal/handlers"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port    string
		preload bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the picturebook web interface",
		Long: `Starts the Picturebook web interface on the specified port.

Upload a picture or paste an image URL, choose a story style and length,
and get a caption and a short story back. The last few stories are shown
with their thumbnails.`,
		Example: `  # Start server on default port 8501
  picturebook serve

  # Start server on custom port and load the standard models up front
  picturebook serve --port 3000 --preload`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, app, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			if cmd.Flags().Changed("port") || cfg.Server.Port == "" {
				cfg.Server.Port = port
			}

			if preload {
				bundle, err := app.Loader.Load(cmd.Context(), false)
				if err != nil {
					slog.Warn("Preloading models failed, will retry on first request", "err", err)
				} else {
					if bundle.Degraded() {
						slog.Warn("Some models failed to load, serving with fallbacks")
					}
					for role, h := range bundle.Handles() {
						slog.Info("Model ready", "role", role, "provider", h.Provider, "model", h.Model)
					}
				}
			}

			handler := handlers.New(app, cfg.History.Display, cfg.History.ExcerptChars)
			addr := ":" + cfg.Server.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(cfg.Fetch.Timeout + 2*cfg.Inference.Timeout + cfg.Load.Timeout),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				slog.Info("Picturebook interface available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				// Wait for context cancellation (Ctrl+C) or server error
				<-ctx.Done()
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8501", "Port to listen on")
	cmd.Flags().BoolVar(&preload, "preload", false, "Load the standard models before accepting requests")

	return cmd
}
