package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/scanhelper/scanhelper/internal/handlers"
	"github.com/scanhelper/scanhelper/internal/metrics"
	"github.com/scanhelper/scanhelper/internal/store"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port      string
		jsonLogs  bool
		noHistory bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the solution API server",
		Long: `Starts the Scanhelper HTTP API on the specified port.

Clients upload a photographed problem with an optional crop rectangle and the
frame it was drawn in, then follow the solution as server-sent events at
/api/sessions/{id}/events. Requests are scoped by the X-Device-ID header.`,
		Example: `  # Start server on default port 8888
  scanhelper serve

  # Start server on custom port with Ollama
  scanhelper serve --port 3000 --provider ollama`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonLogs {
				slog.SetDefault(opts.newLogger(os.Stdout, true))
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			provider, err := newProvider(cfg)
			if err != nil {
				return err
			}

			var repo store.Repository
			if !noHistory {
				sqlite, err := store.NewSQLite(cfg.DBPath)
				if err != nil {
					return err
				}
				defer func() {
					if closeErr := sqlite.Close(); closeErr != nil {
						slog.Error("Failed to close repository", "err", closeErr)
					}
				}()
				if err := sqlite.Ping(cmd.Context()); err != nil {
					return err
				}
				slog.Info("Database connected", "path", cfg.DBPath)
				repo = sqlite
			}

			// Sessions outlive the request that started them, not the server.
			sessionCtx, cancelSessions := context.WithCancel(context.Background())
			defer cancelSessions()
			handler := handlers.New(sessionCtx, handlers.Options{
				Provider:    provider,
				Model:       cfg.Model,
				Temperature: cfg.Temperature,
				Prompts:     cfg.Prompts,
				Repo:        repo,
				SessionTTL:  cfg.SessionTTL,
			})
			defer handler.Close()

			// Set up routes
			r := chi.NewRouter()
			r.Use(chiMiddleware.RequestID)
			r.Use(chiMiddleware.RealIP)
			r.Use(chiMiddleware.Recoverer)
			r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if repo != nil {
					if err := repo.Ping(r.Context()); err != nil {
						http.Error(w, "database unavailable", http.StatusServiceUnavailable)
						return
					}
				}
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})
			r.Handle("/metrics", metrics.Handler())
			handler.RegisterRoutes(r)

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:        addr,
				Handler:     r,
				ReadTimeout: 30 * time.Second,
				// SSE responses stay open for the whole run
				WriteTimeout: 0,
				IdleTimeout:  120 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Scanhelper API available", "addr", addr, "provider", cfg.Provider, "model", cfg.Model)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				cancelSessions()
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on (default from PORT)")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON to stdout")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Disable the solution history database")

	return cmd
}
