package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/fpang/videointel/internal/cli"
	"github.com/fpang/videointel/internal/config"
	"github.com/fpang/videointel/internal/filehandler"
	"github.com/fpang/videointel/internal/fusion"
	"github.com/fpang/videointel/internal/notify"
	"github.com/fpang/videointel/internal/pipeline"
	"github.com/fpang/videointel/internal/store"
)

var processCmd = &cobra.Command{
	Use:   "process <file|directory>",
	Short: "Process a video, or every supported video in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	inputs, err := filehandler.ResolveInputs(args[0])
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no supported videos in %s", args[0])
	}

	if err := filehandler.CheckTool("ffprobe"); err != nil {
		return err
	}
	if err := filehandler.CheckTool("ffmpeg"); err != nil {
		return err
	}

	engine, closeEngine, err := newLocalEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEngine()
	logStartup("videointel process", cfg, start)

	jobCfg := pipeline.JobConfig(cfg, cfg.OutputDir)
	batch := make([]fusion.VideoJob, len(inputs))
	for i, path := range inputs {
		batch[i] = fusion.NewJob(path, jobCfg)
	}

	summary := engine.ProcessBatch(ctx, batch)
	cli.PrintSummary(os.Stdout, summary)
	return summary.Err()
}

// newLocalEngine builds an engine writing records to cfg.OutputDir and
// tracking jobs in the SQLite ledger. A ledger that cannot be opened is
// logged and skipped.
func newLocalEngine(ctx context.Context, cfg *config.Config) (*fusion.Engine, func(), error) {
	var client *genai.Client
	if cfg.NeedsGemini() {
		var err error
		if client, err = cli.InitGeminiClient(ctx, pipeline.GeminiModel(cfg)); err != nil {
			return nil, nil, err
		}
	}

	deps := pipeline.Deps{
		Writer:   pipeline.LocalWriter(cfg),
		Notifier: notify.LogPublisher{},
		Gemini:   client,
	}

	closeFn := func() {}
	ledger, err := store.OpenSQLite(cfg.LedgerPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.LedgerPath).Msg("Job ledger unavailable, continuing without it")
	} else {
		deps.Ledger = ledger
		closeFn = func() {
			if err := ledger.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close job ledger")
			}
		}
	}

	engine, err := pipeline.Build(cfg, deps)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return engine, closeFn, nil
}
