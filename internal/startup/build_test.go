package startup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurricanerix/imggen/internal/config"
	"github.com/hurricanerix/imggen/internal/events"
)

func baseCfg() *config.RunCfg {
	cfg := &config.RunCfg{
		Provider: config.ProviderCfg{Kind: "mock", Width: 8, Height: 8},
		Orchestrator: config.OrchestratorCfg{
			TargetImages: 2, Concurrency: 1, QueueCap: 2, RatePerMin: 6000,
			BackoffBaseMS: 1, BackoffFactor: 1, BackoffJitterMS: 0, MaxAttempts: 1,
		},
		OutDir: "./out",
		Seed:   1,
	}
	return cfg
}

func TestCreateProviderMock(t *testing.T) {
	prov, err := CreateProvider(baseCfg())
	require.NoError(t, err)
	assert.Equal(t, "mock", prov.Name())
}

func TestCreateProviderUnknownKind(t *testing.T) {
	cfg := baseCfg()
	cfg.Provider.Kind = "bogus"
	_, err := CreateProvider(cfg)
	assert.Error(t, err)
}

func TestCreateTemplateAdAndGeneral(t *testing.T) {
	ad, err := CreateTemplate(&config.TemplateYaml{Mode: "AdTemplate", Brand: "A", Product: "B", Styles: []string{"s"}})
	require.NoError(t, err)
	assert.NotNil(t, ad.Ad)

	gp, err := CreateTemplate(&config.TemplateYaml{Mode: "GeneralPrompt", Prompt: "x"})
	require.NoError(t, err)
	assert.NotNil(t, gp.General)
}

func TestCreateDeduperDisabledReturnsNil(t *testing.T) {
	cfg := baseCfg()
	cfg.Dedupe.Enabled = false
	assert.Nil(t, CreateDeduper(cfg))
}

func TestCreateDeduperEnabledReturnsInstance(t *testing.T) {
	cfg := baseCfg()
	cfg.Dedupe.Enabled = true
	cfg.Dedupe.PhashBits = 64
	cfg.Dedupe.PhashThresh = 4
	assert.NotNil(t, CreateDeduper(cfg))
}

func TestCreateRewriterDisabledReturnsNil(t *testing.T) {
	rewriter, cache, err := CreateRewriter(baseCfg())
	require.NoError(t, err)
	assert.Nil(t, rewriter)
	assert.Nil(t, cache)
}

func TestPostConfigFromCarriesAllFields(t *testing.T) {
	cfg := baseCfg()
	cfg.Post = config.PostCfg{
		Thumbnail:       true,
		ThumbMax:        128,
		Fmt:             "jpeg",
		JPEGQuality:     85,
		Width:           512,
		Height:          512,
		WatermarkText:   "draft",
		WatermarkFont:   "Inter-Bold.ttf",
		WatermarkPx:     20,
		WatermarkMargin: 10,
	}

	post := PostConfigFrom(cfg)
	assert.Equal(t, cfg.Post.Thumbnail, post.Thumbnail)
	assert.Equal(t, cfg.Post.ThumbMax, post.ThumbMax)
	assert.Equal(t, cfg.Post.Fmt, post.Fmt)
	assert.Equal(t, cfg.Post.JPEGQuality, post.JPEGQuality)
	assert.Equal(t, cfg.Post.Width, post.Width)
	assert.Equal(t, cfg.Post.Height, post.Height)
	assert.Equal(t, cfg.Post.WatermarkText, post.WatermarkText)
	assert.Equal(t, cfg.Post.WatermarkFont, post.WatermarkFont)
	assert.Equal(t, cfg.Post.WatermarkPx, post.WatermarkPx)
	assert.Equal(t, cfg.Post.WatermarkMargin, post.WatermarkMargin)
}

func TestBuildOrchestratorWithMockProviderRunsToCompletion(t *testing.T) {
	dir := t.TempDir()
	cfg := baseCfg()
	cfg.Orchestrator.TargetImages = 2
	tmpl := &config.TemplateYaml{Mode: "GeneralPrompt", Prompt: "x"}
	bus := events.NewBus(4)

	o, err := BuildOrchestrator(cfg, tmpl, "run1", dir, false, bus, nil)
	require.NoError(t, err)
	require.NotNil(t, o)
	require.NoError(t, o.Run(context.Background()))
}
