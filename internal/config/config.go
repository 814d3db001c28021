// Package config loads the YAML run configuration and the prompt template,
// applies CLI flag and .env overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	// Version is the application version.
	Version = "0.1.0"

	defaultConcurrency     = 4
	defaultQueueCap        = 8
	defaultRatePerMin      = 60
	defaultBackoffBaseMS   = 500
	defaultBackoffFactor   = 2.0
	defaultBackoffJitterMS = 250
	defaultMaxAttempts     = 3
	defaultPhashBits       = 64
	defaultPhashThresh     = 10
	defaultThumbMax        = 256
	defaultWidth           = 1024
	defaultHeight          = 1024
	defaultLogLevel        = "info"

	minConcurrency = 1
	maxConcurrency = 256
)

var (
	// ErrInvalidProviderKind is returned when provider.kind is not recognized.
	ErrInvalidProviderKind = errors.New("provider.kind must be one of: mock, openai, gemini")
	// ErrMissingOutDir is returned when out_dir is empty.
	ErrMissingOutDir = errors.New("out_dir must be set")
	// ErrInvalidConcurrency is returned when orchestrator.concurrency is out of range.
	ErrInvalidConcurrency = errors.New("orchestrator.concurrency must be between 1 and 256")
	// ErrInvalidTemplateMode is returned when the template YAML names neither AdTemplate nor GeneralPrompt.
	ErrInvalidTemplateMode = errors.New("template mode must be one of: AdTemplate, GeneralPrompt")
	// ErrMissingAPIKeyEnv is returned when a non-mock provider has no api_key_env set, or the
	// named environment variable is unset or empty.
	ErrMissingAPIKeyEnv = errors.New("provider.api_key_env must name a non-empty environment variable for non-mock providers")
)

// ProviderCfg configures the image-generation backend.
type ProviderCfg struct {
	Kind             string  `yaml:"kind"`
	Model            string  `yaml:"model,omitempty"`
	APIKeyEnv        string  `yaml:"api_key_env,omitempty"`
	Width            int     `yaml:"width,omitempty"`
	Height           int     `yaml:"height,omitempty"`
	PriceUSDPerImage float64 `yaml:"price_usd_per_image,omitempty"`
}

// OrchestratorCfg configures run concurrency, queueing, and retry behavior.
type OrchestratorCfg struct {
	TargetImages    uint64  `yaml:"target_images"`
	Concurrency     int     `yaml:"concurrency"`
	QueueCap        int     `yaml:"queue_cap"`
	RatePerMin      int     `yaml:"rate_per_min"`
	BackoffBaseMS   int64   `yaml:"backoff_base_ms"`
	BackoffFactor   float64 `yaml:"backoff_factor"`
	BackoffJitterMS int64   `yaml:"backoff_jitter_ms"`
	MaxAttempts     int     `yaml:"max_attempts,omitempty"`
}

// DedupeCfg configures perceptual-hash duplicate detection.
type DedupeCfg struct {
	Enabled     bool `yaml:"enabled"`
	PhashBits   int  `yaml:"phash_bits,omitempty"`
	PhashThresh int  `yaml:"phash_thresh,omitempty"`
}

// PostCfg configures post-processing applied to each persisted image.
type PostCfg struct {
	Thumbnail       bool   `yaml:"thumbnail"`
	ThumbMax        int    `yaml:"thumb_max,omitempty"`
	Fmt             string `yaml:"fmt,omitempty"`
	JPEGQuality     int    `yaml:"jpeg_quality,omitempty"`
	Width           int    `yaml:"width,omitempty"`
	Height          int    `yaml:"height,omitempty"`
	WatermarkText   string `yaml:"watermark_text,omitempty"`
	WatermarkFont   string `yaml:"watermark_font,omitempty"`
	WatermarkPx     int    `yaml:"watermark_px,omitempty"`
	WatermarkMargin int    `yaml:"watermark_margin,omitempty"`
}

// RewriteCfg configures the optional LLM prompt-rewrite stage.
type RewriteCfg struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model,omitempty"`
	System    string `yaml:"system,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
	CacheFile string `yaml:"cache_file,omitempty"`
}

// RunCfg is the top-level YAML configuration for a run.
type RunCfg struct {
	Provider       ProviderCfg     `yaml:"provider"`
	Orchestrator   OrchestratorCfg `yaml:"orchestrator"`
	Dedupe         DedupeCfg       `yaml:"dedupe"`
	Post           PostCfg         `yaml:"post"`
	Rewrite        RewriteCfg      `yaml:"rewrite"`
	OutDir         string          `yaml:"out_dir"`
	Seed           uint64          `yaml:"seed"`
	BudgetLimitUSD *float64        `yaml:"budget_limit_usd,omitempty"`
	LogLevel       string          `yaml:"log_level,omitempty"`
}

// applyDefaults fills zero-valued fields with spec defaults, run before
// validation so flag overrides and validation both see final values.
func (c *RunCfg) applyDefaults() {
	if c.Orchestrator.Concurrency == 0 {
		c.Orchestrator.Concurrency = defaultConcurrency
	}
	if c.Orchestrator.QueueCap == 0 {
		c.Orchestrator.QueueCap = defaultQueueCap
	}
	if c.Orchestrator.RatePerMin == 0 {
		c.Orchestrator.RatePerMin = defaultRatePerMin
	}
	if c.Orchestrator.BackoffBaseMS == 0 {
		c.Orchestrator.BackoffBaseMS = defaultBackoffBaseMS
	}
	if c.Orchestrator.BackoffFactor == 0 {
		c.Orchestrator.BackoffFactor = defaultBackoffFactor
	}
	if c.Orchestrator.BackoffJitterMS == 0 {
		c.Orchestrator.BackoffJitterMS = defaultBackoffJitterMS
	}
	if c.Orchestrator.MaxAttempts == 0 {
		c.Orchestrator.MaxAttempts = defaultMaxAttempts
	}
	if c.Dedupe.PhashBits == 0 {
		c.Dedupe.PhashBits = defaultPhashBits
	}
	if c.Dedupe.PhashThresh == 0 {
		c.Dedupe.PhashThresh = defaultPhashThresh
	}
	if c.Post.ThumbMax == 0 {
		c.Post.ThumbMax = defaultThumbMax
	}
	if c.Provider.Width == 0 {
		c.Provider.Width = defaultWidth
	}
	if c.Provider.Height == 0 {
		c.Provider.Height = defaultHeight
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate checks RunCfg invariants. Call after applyDefaults (LoadRunCfg
// does this automatically).
func (c *RunCfg) Validate() error {
	switch c.Provider.Kind {
	case "mock", "openai", "gemini":
	default:
		return ErrInvalidProviderKind
	}
	if c.OutDir == "" {
		return ErrMissingOutDir
	}
	if c.Orchestrator.Concurrency < minConcurrency || c.Orchestrator.Concurrency > maxConcurrency {
		return ErrInvalidConcurrency
	}
	if c.Provider.Kind != "mock" {
		if c.Provider.APIKeyEnv == "" {
			return ErrMissingAPIKeyEnv
		}
		if os.Getenv(c.Provider.APIKeyEnv) == "" {
			return ErrMissingAPIKeyEnv
		}
	}
	return nil
}

// LoadRunCfg reads and parses a RunCfg from a YAML file, applies defaults,
// and validates it.
func LoadRunCfg(path string) (*RunCfg, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config %s: %w", path, err)
	}
	var cfg RunCfg
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse run config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TemplateYaml is the tagged-union on-disk shape of a prompt template: a
// single "mode" field selects AdTemplate or GeneralPrompt, with the other
// branch's fields absent or ignored.
type TemplateYaml struct {
	Mode    string   `yaml:"mode"`
	Brand   string   `yaml:"brand,omitempty"`
	Product string   `yaml:"product,omitempty"`
	Styles  []string `yaml:"styles,omitempty"`
	Prompt  string   `yaml:"prompt,omitempty"`
}

// Validate checks that Mode names a known variant and that variant's
// required fields are present.
func (t *TemplateYaml) Validate() error {
	switch t.Mode {
	case "AdTemplate":
		if t.Brand == "" || t.Product == "" {
			return fmt.Errorf("%w: AdTemplate requires brand and product", ErrInvalidTemplateMode)
		}
	case "GeneralPrompt":
		if t.Prompt == "" {
			return fmt.Errorf("%w: GeneralPrompt requires prompt", ErrInvalidTemplateMode)
		}
	default:
		return ErrInvalidTemplateMode
	}
	return nil
}

// LoadTemplateYaml reads and validates a TemplateYaml from a YAML file.
func LoadTemplateYaml(path string) (*TemplateYaml, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	var t TemplateYaml
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Overrides holds CLI-flag and .env derived values that take precedence
// over the YAML RunCfg when set.
type Overrides struct {
	OutDir       string
	TargetImages uint64
	Concurrency  int
	Seed         uint64
	LogLevel     string
	EnvFile      string
	ConfigPath   string
	TemplatePath string
	Addr         string
	Resume       bool
}

// ParseFlags parses CLI flags into an Overrides struct. Zero values mean
// "not set"; Apply only overwrites fields actually supplied.
func ParseFlags(args []string) (*Overrides, error) {
	fs := pflag.NewFlagSet("imggen", pflag.ContinueOnError)

	o := &Overrides{}
	fs.StringVar(&o.OutDir, "out-dir", "", "override out_dir from the run config")
	fs.Uint64Var(&o.TargetImages, "target-images", 0, "override orchestrator.target_images")
	fs.IntVar(&o.Concurrency, "concurrency", 0, "override orchestrator.concurrency")
	fs.Uint64Var(&o.Seed, "seed", 0, "override seed")
	fs.StringVar(&o.LogLevel, "log-level", "", "override log_level (debug, info, warn, error)")
	fs.StringVar(&o.EnvFile, "env-file", ".env", "path to a .env file to load before reading config")
	fs.StringVar(&o.ConfigPath, "config", "run.yaml", "path to the run config YAML")
	fs.StringVar(&o.TemplatePath, "template", "template.yaml", "path to the template YAML")
	fs.StringVar(&o.Addr, "addr", "", "address for imggen-server to listen on (overrides IMGGEN_ADDR)")
	fs.BoolVar(&o.Resume, "resume", false, "resume a prior run from the existing manifest in out_dir")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// LoadEnv loads path into the process environment via godotenv. A missing
// file is not an error: most invocations have no .env at all.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Apply overwrites non-zero Overrides fields onto cfg, re-running defaults
// and validation so an override cannot leave cfg inconsistent.
func (o *Overrides) Apply(cfg *RunCfg) error {
	if o.OutDir != "" {
		cfg.OutDir = o.OutDir
	}
	if o.TargetImages != 0 {
		cfg.Orchestrator.TargetImages = o.TargetImages
	}
	if o.Concurrency != 0 {
		cfg.Orchestrator.Concurrency = o.Concurrency
	}
	if o.Seed != 0 {
		cfg.Seed = o.Seed
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	cfg.applyDefaults()
	return cfg.Validate()
}
