// Command videointel turns videos into timestamped JSON records: shots with
// keyframes, aligned transcript words, and per-shot captions, OCR text, and
// detected objects.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/videointel/internal/config"
	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/logging"
	"github.com/fpang/videointel/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Pipeline flags shared by process and serve.
var (
	configFlag         string
	outputFlag         string
	framesDirFlag      string
	languageFlag       string
	sceneThresholdFlag float64
	minShotFlag        float64
	keyframePolicyFlag string
	numCaptionsFlag    int
	skipOCRFlag        bool
	modalitiesFlag     string
	concurrencyFlag    int
	callTimeoutFlag    time.Duration
	retriesFlag        int
	keepFramesFlag     bool
	keepAudioFlag      bool
	allowNoTranscript  bool
	compressFlag       bool
	asrFlag            string
	ocrFlag            string
	whisperModelFlag   string
	modelFlag          string
	ledgerFlag         string
	logLevelFlag       string
	metricsFlag        bool
)

var rootCmd = &cobra.Command{
	Use:   "videointel",
	Short: "Turn videos into timestamped JSON records",
	Long: `videointel segments a video into shots, transcribes its audio, aligns the
words to shots, and enriches each shot's keyframe with a caption, OCR text, and
detected objects. The result is one JSON record per video.

Examples:
  videointel process clip.mp4
  videointel process ./videos --output ./records --keep-frames
  videointel process talk.mkv --language no --modalities caption,ocr
  videointel doctor
  videointel serve --listen 127.0.0.1:8080
  videointel jobs`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configFlag, "config", "", "YAML configuration file")
	f.StringVarP(&outputFlag, "output", "o", "", "Directory for JSON records (default \"output\")")
	f.StringVar(&framesDirFlag, "frames-dir", "", "Directory for keyframes (default <output>/frames)")
	f.StringVarP(&languageFlag, "language", "l", "", "Language hint for transcription (ISO 639-1, empty to auto-detect)")
	f.Float64Var(&sceneThresholdFlag, "scene-threshold", 0, "Frame difference score above which a new shot starts, in (0, 2)")
	f.Float64Var(&minShotFlag, "min-shot", 0, "Minimum shot length in seconds")
	f.StringVar(&keyframePolicyFlag, "keyframe-policy", "", "Keyframe choice: first, middle, or peak")
	f.IntVar(&numCaptionsFlag, "num-captions", 0, "Caption candidates per shot")
	f.BoolVar(&skipOCRFlag, "skip-ocr", false, "Disable OCR")
	f.StringVar(&modalitiesFlag, "modalities", "", "Comma-separated enrichers: caption,ocr,object_detector (\"none\" disables all)")
	f.IntVar(&concurrencyFlag, "concurrency", 0, "Shots enriched concurrently")
	f.DurationVar(&callTimeoutFlag, "call-timeout", 0, "Timeout for one model call")
	f.IntVar(&retriesFlag, "retries", -1, "Retries after a transient model failure")
	f.BoolVar(&keepFramesFlag, "keep-frames", false, "Keep keyframe images after the record is written")
	f.BoolVar(&keepAudioFlag, "keep-audio", false, "Keep the extracted WAV")
	f.BoolVar(&allowNoTranscript, "allow-no-transcript", false, "Write the record with an empty transcript when recognition fails")
	f.BoolVar(&compressFlag, "compress", false, "Also write a zstd-compressed copy of each record")
	f.StringVar(&asrFlag, "asr", "", "Speech recognizer: whisper or gemini")
	f.StringVar(&ocrFlag, "ocr", "", "OCR backend: tesseract or gemini")
	f.StringVar(&whisperModelFlag, "whisper-model", "", "Path to the whisper.cpp model file")
	f.StringVarP(&modelFlag, "model", "m", "", "Gemini model (e.g., gemini-3-flash-preview, gemini-2.5-flash)")
	f.StringVar(&ledgerFlag, "ledger", "", "SQLite job ledger path")
	f.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	f.BoolVar(&metricsFlag, "metrics", false, "Print CloudWatch EMF metric lines to stdout")

	rootCmd.AddCommand(processCmd, doctorCmd, serveCmd, jobsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

// loadConfig resolves the configuration from file, environment, and the
// flags the user set, then initializes logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	cfg.Resolve()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	if !metricsFlag {
		metrics.SetOutput(nil)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("output") {
		cfg.OutputDir = outputFlag
	}
	if changed("frames-dir") {
		cfg.FramesDir = framesDirFlag
	}
	if changed("language") {
		cfg.Language = languageFlag
	}
	if changed("scene-threshold") {
		cfg.SceneThreshold = sceneThresholdFlag
	}
	if changed("min-shot") {
		cfg.MinShotS = minShotFlag
	}
	if changed("keyframe-policy") {
		cfg.KeyframePolicy = keyframePolicyFlag
	}
	if changed("num-captions") {
		cfg.NumCaptions = numCaptionsFlag
	}
	if changed("modalities") {
		cfg.Modalities = config.SplitList(modalitiesFlag)
	}
	if skipOCRFlag {
		cfg.DisableModality(domain.ModalityOCR)
	}
	if changed("concurrency") {
		cfg.Concurrency = concurrencyFlag
	}
	if changed("call-timeout") {
		cfg.CallTimeout = callTimeoutFlag
	}
	if changed("retries") {
		cfg.MaxRetries = retriesFlag
	}
	if changed("keep-frames") {
		cfg.KeepFrames = keepFramesFlag
	}
	if changed("keep-audio") {
		cfg.KeepAudio = keepAudioFlag
	}
	if changed("allow-no-transcript") {
		cfg.AllowNoTranscript = allowNoTranscript
	}
	if changed("compress") {
		cfg.Compress = compressFlag
	}
	if changed("asr") {
		cfg.ASR = asrFlag
	}
	if changed("ocr") {
		cfg.OCR = ocrFlag
	}
	if changed("whisper-model") {
		cfg.WhisperModel = whisperModelFlag
	}
	if changed("model") {
		cfg.GeminiModel = modelFlag
	}
	if changed("ledger") {
		cfg.LedgerPath = ledgerFlag
	}
	if changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
}

// logStartup records the resolved settings once per run.
func logStartup(name string, cfg *config.Config, start time.Time) {
	mods, _ := cfg.EnabledModalities()
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = string(m)
	}
	logging.NewStartupLogger(name).
		Config("version", version).
		Config("output", cfg.OutputDir).
		Config("asr", cfg.ASR).
		Config("ocr", cfg.OCR).
		Config("modalities", fmt.Sprint(names)).
		Feature("keepFrames", cfg.KeepFrames).
		Feature("compress", cfg.Compress).
		InitDuration(time.Since(start)).
		Log()
	log.Debug().Interface("config", cfg).Msg("Resolved configuration")
}
