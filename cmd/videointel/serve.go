package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/videointel/internal/api"
	"github.com/fpang/videointel/internal/fusion"
	"github.com/fpang/videointel/internal/pipeline"
)

var (
	listenFlag  string
	workersFlag int
	backlogFlag int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the job API and process submitted videos in the background",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "Listen address (default 127.0.0.1:8080)")
	serveCmd.Flags().IntVar(&workersFlag, "workers", 1, "Videos processed at once")
	serveCmd.Flags().IntVar(&backlogFlag, "backlog", 16, "Queued jobs before submissions are rejected")
}

func runServe(cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.ListenAddr = listenFlag
	}
	ctx := cmd.Context()

	engine, closeEngine, err := newLocalEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEngine()
	if engine.Ledger == nil {
		return fmt.Errorf("serve needs the job ledger at %s", cfg.LedgerPath)
	}

	runner := fusion.NewRunner(ctx, engine, pipeline.JobConfig(cfg, cfg.OutputDir), workersFlag, backlogFlag)
	defer runner.Close()

	router := api.NewRouter(api.ServerConfig{
		Jobs:      engine.Ledger,
		Records:   pipeline.LocalWriter(cfg),
		Submit:    runner,
		Version:   version,
		StartTime: start,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logStartup("videointel serve", cfg, start)
	log.Info().Str("addr", cfg.ListenAddr).Msg("Listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
