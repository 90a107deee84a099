package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/veil-io/veil/internal/audit"
	"github.com/veil-io/veil/internal/config"
	"github.com/veil-io/veil/internal/server"
)

var serveNoAudit bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Veil HTTP API",
	Long: `Starts the HTTP server exposing POST /v1/redact. Requests are
authenticated with the X-API-Key header when VEIL_SERVE_API_KEY is set,
and every run is recorded in the audit database unless --no-audit is
given.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoAudit, "no-audit", false, "disable audit recording")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithAPIKey(os.Getenv("VEIL_SERVE_API_KEY")),
	}
	if !serveNoAudit {
		if err := cfg.EnsureDataDir(); err != nil {
			return err
		}
		store, err := audit.NewStore(cfg.AuditDBPath())
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, server.WithAuditStore(store))
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.NewServer(p, opts...).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("veil server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
