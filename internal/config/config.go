// Package config resolves the pipeline configuration. Sources are applied
// in order, later ones winning: built-in defaults, an optional YAML file,
// a .env file, VIDEOINTEL_* environment variables, and finally CLI flags
// (applied by the caller on the returned Config).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fpang/videointel/internal/domain"
	"github.com/fpang/videointel/internal/shots"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VIDEOINTEL_"

// Transcription and OCR backends.
const (
	BackendWhisper   = "whisper"
	BackendGemini    = "gemini"
	BackendTesseract = "tesseract"
)

// Config is the full set of pipeline settings for one run.
type Config struct {
	OutputDir string `yaml:"output_dir"`
	// FramesDir defaults to <OutputDir>/frames.
	FramesDir string `yaml:"frames_dir"`
	// WorkDir holds extracted audio; defaults to <OutputDir>/audio.
	WorkDir string `yaml:"work_dir"`

	Language       string   `yaml:"language"`
	SceneThreshold float64  `yaml:"scene_threshold"`
	MinShotS       float64  `yaml:"min_shot_s"`
	KeyframePolicy string   `yaml:"keyframe_policy"`
	NumCaptions    int      `yaml:"num_captions"`
	Modalities     []string `yaml:"modalities"`

	Concurrency int           `yaml:"concurrency"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	MaxRetries  int           `yaml:"max_retries"`

	KeepFrames        bool `yaml:"keep_frames"`
	KeepAudio         bool `yaml:"keep_audio"`
	AllowNoTranscript bool `yaml:"allow_no_transcript"`
	Compress          bool `yaml:"compress"`

	ASR          string `yaml:"asr"`
	OCR          string `yaml:"ocr"`
	WhisperBin   string `yaml:"whisper_bin"`
	WhisperModel string `yaml:"whisper_model"`
	GeminiModel  string `yaml:"gemini_model"`

	LedgerPath string `yaml:"ledger_path"`
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OutputDir:      "output",
		SceneThreshold: shots.DefaultThreshold,
		KeyframePolicy: string(shots.KeyframeFirst),
		NumCaptions:    1,
		Modalities:     []string{"caption", "ocr", "object_detector"},
		Concurrency:    4,
		CallTimeout:    60 * time.Second,
		MaxRetries:     2,
		ASR:            BackendWhisper,
		OCR:            BackendTesseract,
		WhisperBin:     "whisper-cli",
		WhisperModel:   filepath.Join("models", "ggml-base.bin"),
		LedgerPath:     filepath.Join("output", "jobs.db"),
		ListenAddr:     "127.0.0.1:8080",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), a .env file in the working directory if present, and the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	// .env is optional; existing environment variables are not overridden.
	_ = godotenv.Load()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides fields from VIDEOINTEL_<FIELD> variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}

	str("OUTPUT_DIR", &c.OutputDir)
	str("FRAMES_DIR", &c.FramesDir)
	str("WORK_DIR", &c.WorkDir)
	str("LANGUAGE", &c.Language)
	float("SCENE_THRESHOLD", &c.SceneThreshold)
	float("MIN_SHOT_S", &c.MinShotS)
	str("KEYFRAME_POLICY", &c.KeyframePolicy)
	integer("NUM_CAPTIONS", &c.NumCaptions)
	if v, ok := lookup(EnvPrefix + "MODALITIES"); ok {
		c.Modalities = SplitList(v)
	}
	integer("CONCURRENCY", &c.Concurrency)
	if v, ok := lookup(EnvPrefix + "CALL_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sCALL_TIMEOUT: %v", EnvPrefix, err))
		} else {
			c.CallTimeout = d
		}
	}
	integer("MAX_RETRIES", &c.MaxRetries)
	boolean("KEEP_FRAMES", &c.KeepFrames)
	boolean("KEEP_AUDIO", &c.KeepAudio)
	boolean("ALLOW_NO_TRANSCRIPT", &c.AllowNoTranscript)
	boolean("COMPRESS", &c.Compress)
	str("ASR", &c.ASR)
	str("OCR", &c.OCR)
	str("WHISPER_BIN", &c.WhisperBin)
	str("WHISPER_MODEL", &c.WhisperModel)
	str("GEMINI_MODEL", &c.GeminiModel)
	str("LEDGER_PATH", &c.LedgerPath)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SplitList parses a comma-separated list, dropping blanks. "none" yields
// an empty, non-nil list.
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.EqualFold(part, "none") {
			continue
		}
		out = append(out, part)
	}
	return out
}

// Resolve fills derived defaults. Call after every override is applied.
func (c *Config) Resolve() {
	if c.FramesDir == "" {
		c.FramesDir = filepath.Join(c.OutputDir, "frames")
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(c.OutputDir, "audio")
	}
}

// DisableModality removes mod from the enabled list.
func (c *Config) DisableModality(mod domain.Modality) {
	kept := c.Modalities[:0:0]
	for _, m := range c.Modalities {
		if parsed, err := domain.ParseModality(m); err == nil && parsed == mod {
			continue
		}
		kept = append(kept, m)
	}
	c.Modalities = kept
}

// EnabledModalities parses Modalities in canonical order without
// duplicates.
func (c *Config) EnabledModalities() ([]domain.Modality, error) {
	want := make(map[domain.Modality]bool, len(c.Modalities))
	for _, m := range c.Modalities {
		mod, err := domain.ParseModality(strings.ToLower(strings.TrimSpace(m)))
		if err != nil {
			return nil, err
		}
		want[mod] = true
	}
	var out []domain.Modality
	for _, mod := range domain.AllModalities {
		if want[mod] {
			out = append(out, mod)
		}
	}
	return out, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.OutputDir == "" {
		problems = append(problems, "output directory is required")
	}
	if c.SceneThreshold <= 0 || c.SceneThreshold >= 2 {
		problems = append(problems, fmt.Sprintf("scene threshold %.3f must be in (0, 2)", c.SceneThreshold))
	}
	if c.MinShotS < 0 {
		problems = append(problems, "minimum shot length must not be negative")
	}
	if _, err := shots.ParseKeyframePolicy(c.KeyframePolicy); err != nil {
		problems = append(problems, err.Error())
	}
	if c.NumCaptions < 1 {
		problems = append(problems, "num captions must be at least 1")
	}
	if _, err := c.EnabledModalities(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	if c.CallTimeout <= 0 {
		problems = append(problems, "call timeout must be positive")
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "max retries must not be negative")
	}
	switch c.ASR {
	case BackendWhisper:
		if c.WhisperModel == "" {
			problems = append(problems, "whisper backend needs a model path (whisper_model)")
		}
	case BackendGemini:
	default:
		problems = append(problems, fmt.Sprintf("unknown asr backend %q (want whisper or gemini)", c.ASR))
	}
	switch c.OCR {
	case BackendTesseract, BackendGemini:
	default:
		problems = append(problems, fmt.Sprintf("unknown ocr backend %q (want tesseract or gemini)", c.OCR))
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NeedsGemini reports whether any configured collaborator uses the Gemini
// API.
func (c *Config) NeedsGemini() bool {
	if c.ASR == BackendGemini {
		return true
	}
	mods, _ := c.EnabledModalities()
	for _, m := range mods {
		if m != domain.ModalityOCR || c.OCR == BackendGemini {
			return true
		}
	}
	return false
}
