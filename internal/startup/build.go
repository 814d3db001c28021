// Package startup wires a loaded RunCfg and TemplateYaml into the concrete
// components the orchestrator depends on, generalized from the teacher's
// InitializeAll (internal/startup/init.go): one function per component,
// plus a single entry point that wires them together.
package startup

import (
	"fmt"
	"os"

	"github.com/hurricanerix/imggen/internal/config"
	"github.com/hurricanerix/imggen/internal/dedupe"
	"github.com/hurricanerix/imggen/internal/events"
	"github.com/hurricanerix/imggen/internal/logging"
	"github.com/hurricanerix/imggen/internal/orchestrator"
	"github.com/hurricanerix/imggen/internal/persistence"
	"github.com/hurricanerix/imggen/internal/provider"
	"github.com/hurricanerix/imggen/internal/ratelimit"
	"github.com/hurricanerix/imggen/internal/rewrite"
	"github.com/hurricanerix/imggen/internal/variant"
)

// CreateLogger builds a Logger at the level named in cfg.
func CreateLogger(cfg *config.RunCfg) *logging.Logger {
	return logging.NewFromString(cfg.LogLevel, nil)
}

// CreateProvider builds the image-generation provider named by
// cfg.Provider.Kind.
func CreateProvider(cfg *config.RunCfg) (provider.Provider, error) {
	switch cfg.Provider.Kind {
	case "mock":
		return provider.NewMock(cfg.Provider.Width, cfg.Provider.Height, cfg.Provider.PriceUSDPerImage), nil
	case "openai":
		apiKey := os.Getenv(cfg.Provider.APIKeyEnv)
		return provider.NewOpenAI(apiKey, cfg.Provider.Model, cfg.Provider.Width, cfg.Provider.Height, cfg.Provider.PriceUSDPerImage), nil
	case "gemini":
		apiKey := os.Getenv(cfg.Provider.APIKeyEnv)
		return provider.NewGemini(apiKey, cfg.Provider.Model, cfg.Provider.Width, cfg.Provider.Height, cfg.Provider.PriceUSDPerImage), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}

// CreateTemplate converts a TemplateYaml into a variant.Template.
func CreateTemplate(t *config.TemplateYaml) (variant.Template, error) {
	switch t.Mode {
	case "AdTemplate":
		return variant.NewAdTemplate(t.Brand, t.Product, t.Styles), nil
	case "GeneralPrompt":
		return variant.NewGeneralPrompt(t.Prompt), nil
	default:
		return variant.Template{}, fmt.Errorf("unknown template mode %q", t.Mode)
	}
}

// CreateGenerator builds the seeded prompt generator for tmpl.
func CreateGenerator(cfg *config.RunCfg, tmpl *config.TemplateYaml) (*variant.Generator, error) {
	t, err := CreateTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	return variant.New(t, cfg.Seed), nil
}

// CreateLimiter builds the rate limiter for cfg.Orchestrator.RatePerMin.
func CreateLimiter(cfg *config.RunCfg) *ratelimit.Limiter {
	return ratelimit.New(cfg.Orchestrator.RatePerMin)
}

// CreateDeduper builds the perceptual deduper if cfg.Dedupe.Enabled,
// otherwise returns nil (orchestrator.Extras.Deduper nil disables dedupe).
func CreateDeduper(cfg *config.RunCfg) *dedupe.Deduper {
	if !cfg.Dedupe.Enabled {
		return nil
	}
	return dedupe.New(cfg.Dedupe.PhashBits, cfg.Dedupe.PhashThresh)
}

// CreateRewriter builds the prompt rewriter and its cache if
// cfg.Rewrite.Enabled, otherwise returns nil, nil.
func CreateRewriter(cfg *config.RunCfg) (rewrite.Rewriter, *rewrite.Cache, error) {
	if !cfg.Rewrite.Enabled {
		return nil, nil, nil
	}
	apiKey := os.Getenv(cfg.Provider.APIKeyEnv)
	rewriter := rewrite.NewOpenAIRewriter("", apiKey, cfg.Rewrite.Model, cfg.Rewrite.System, cfg.Rewrite.MaxTokens)
	cache, err := rewrite.LoadCache(cfg.Rewrite.CacheFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load rewrite cache: %w", err)
	}
	return rewriter, cache, nil
}

// PostConfigFrom projects cfg.Post into a persistence.PostConfig.
func PostConfigFrom(cfg *config.RunCfg) persistence.PostConfig {
	return persistence.PostConfig{
		Thumbnail:       cfg.Post.Thumbnail,
		ThumbMax:        cfg.Post.ThumbMax,
		Fmt:             cfg.Post.Fmt,
		JPEGQuality:     cfg.Post.JPEGQuality,
		Width:           cfg.Post.Width,
		Height:          cfg.Post.Height,
		WatermarkText:   cfg.Post.WatermarkText,
		WatermarkFont:   cfg.Post.WatermarkFont,
		WatermarkPx:     cfg.Post.WatermarkPx,
		WatermarkMargin: cfg.Post.WatermarkMargin,
	}
}

// orchestratorConfigFrom projects cfg into an orchestrator.Config, leaving
// RunID/OutDir/Resume for the caller to set.
func orchestratorConfigFrom(cfg *config.RunCfg) orchestrator.Config {
	return orchestrator.Config{
		TargetImages:    cfg.Orchestrator.TargetImages,
		Concurrency:     cfg.Orchestrator.Concurrency,
		QueueCap:        cfg.Orchestrator.QueueCap,
		RatePerMin:      cfg.Orchestrator.RatePerMin,
		BackoffBaseMS:   cfg.Orchestrator.BackoffBaseMS,
		BackoffFactor:   cfg.Orchestrator.BackoffFactor,
		BackoffJitterMS: cfg.Orchestrator.BackoffJitterMS,
		MaxAttempts:     cfg.Orchestrator.MaxAttempts,
	}
}

// BuildOrchestrator wires a loaded RunCfg and TemplateYaml into a ready
// Orchestrator, bound to runID/outDir/resume and publishing to bus.
func BuildOrchestrator(cfg *config.RunCfg, tmpl *config.TemplateYaml, runID, outDir string, resume bool, bus *events.Bus, logger *logging.Logger) (*orchestrator.Orchestrator, error) {
	prov, err := CreateProvider(cfg)
	if err != nil {
		return nil, err
	}
	gen, err := CreateGenerator(cfg, tmpl)
	if err != nil {
		return nil, err
	}
	rewriter, cache, err := CreateRewriter(cfg)
	if err != nil {
		return nil, err
	}

	oc := orchestratorConfigFrom(cfg)
	oc.RunID = runID
	oc.OutDir = outDir
	oc.Resume = resume

	extras := orchestrator.Extras{
		Rewriter:     rewriter,
		RewriteCache: cache,
		Deduper:      CreateDeduper(cfg),
		Post:         PostConfigFrom(cfg),
	}

	return orchestrator.New(oc, prov, gen, CreateLimiter(cfg), bus, extras, logger), nil
}
