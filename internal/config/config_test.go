package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRunCfgAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", `
provider:
  kind: mock
orchestrator:
  target_images: 10
out_dir: ./out
seed: 1
`)
	cfg, err := LoadRunCfg(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConcurrency, cfg.Orchestrator.Concurrency)
	assert.Equal(t, defaultQueueCap, cfg.Orchestrator.QueueCap)
	assert.Equal(t, defaultRatePerMin, cfg.Orchestrator.RatePerMin)
	assert.Equal(t, int64(defaultBackoffBaseMS), cfg.Orchestrator.BackoffBaseMS)
	assert.Equal(t, defaultPhashBits, cfg.Dedupe.PhashBits)
	assert.Equal(t, defaultThumbMax, cfg.Post.ThumbMax)
	assert.Equal(t, defaultWidth, cfg.Provider.Width)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRunCfgRejectsUnknownProviderKind(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", `
provider:
  kind: bogus
out_dir: ./out
`)
	_, err := LoadRunCfg(path)
	assert.ErrorIs(t, err, ErrInvalidProviderKind)
}

func TestLoadRunCfgRejectsMissingOutDir(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", `
provider:
  kind: mock
`)
	_, err := LoadRunCfg(path)
	assert.ErrorIs(t, err, ErrMissingOutDir)
}

func TestLoadRunCfgRejectsOutOfRangeConcurrency(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", `
provider:
  kind: mock
orchestrator:
  concurrency: 9000
out_dir: ./out
`)
	_, err := LoadRunCfg(path)
	assert.ErrorIs(t, err, ErrInvalidConcurrency)
}

func TestLoadRunCfgNonMockRequiresAPIKeyEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", `
provider:
  kind: openai
out_dir: ./out
`)
	_, err := LoadRunCfg(path)
	assert.ErrorIs(t, err, ErrMissingAPIKeyEnv)
}

func TestLoadRunCfgNonMockAcceptsSetAPIKeyEnv(t *testing.T) {
	t.Setenv("MY_API_KEY", "sk-test")
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", `
provider:
  kind: openai
  api_key_env: MY_API_KEY
out_dir: ./out
`)
	cfg, err := LoadRunCfg(path)
	require.NoError(t, err)
	assert.Equal(t, "MY_API_KEY", cfg.Provider.APIKeyEnv)
}

func TestLoadTemplateYamlAdTemplate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "template.yaml", `
mode: AdTemplate
brand: Acme
product: Cola
styles: [studio, outdoor]
`)
	tmpl, err := LoadTemplateYaml(path)
	require.NoError(t, err)
	assert.Equal(t, "Acme", tmpl.Brand)
	assert.Equal(t, []string{"studio", "outdoor"}, tmpl.Styles)
}

func TestLoadTemplateYamlGeneralPrompt(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "template.yaml", `
mode: GeneralPrompt
prompt: a cat on a skateboard
`)
	tmpl, err := LoadTemplateYaml(path)
	require.NoError(t, err)
	assert.Equal(t, "a cat on a skateboard", tmpl.Prompt)
}

func TestLoadTemplateYamlRejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "template.yaml", `
mode: Bogus
`)
	_, err := LoadTemplateYaml(path)
	assert.ErrorIs(t, err, ErrInvalidTemplateMode)
}

func TestLoadTemplateYamlAdTemplateRequiresBrandAndProduct(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "template.yaml", `
mode: AdTemplate
brand: Acme
`)
	_, err := LoadTemplateYaml(path)
	assert.ErrorIs(t, err, ErrInvalidTemplateMode)
}

func TestParseFlagsOverrides(t *testing.T) {
	o, err := ParseFlags([]string{"--out-dir", "/tmp/x", "--target-images", "50", "--concurrency", "8"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", o.OutDir)
	assert.Equal(t, uint64(50), o.TargetImages)
	assert.Equal(t, 8, o.Concurrency)
}

func TestParseFlagsConfigTemplateAndAddr(t *testing.T) {
	o, err := ParseFlags([]string{"--config", "custom.yaml", "--template", "custom-template.yaml", "--addr", "0.0.0.0:9090"})
	require.NoError(t, err)
	assert.Equal(t, "custom.yaml", o.ConfigPath)
	assert.Equal(t, "custom-template.yaml", o.TemplatePath)
	assert.Equal(t, "0.0.0.0:9090", o.Addr)
}

func TestParseFlagsDefaultsConfigAndTemplatePaths(t *testing.T) {
	o, err := ParseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "run.yaml", o.ConfigPath)
	assert.Equal(t, "template.yaml", o.TemplatePath)
	assert.False(t, o.Resume)
}

func TestParseFlagsResume(t *testing.T) {
	o, err := ParseFlags([]string{"--resume"})
	require.NoError(t, err)
	assert.True(t, o.Resume)
}

func TestOverridesApplyOverwritesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", `
provider:
  kind: mock
orchestrator:
  target_images: 10
  concurrency: 2
out_dir: ./out
`)
	cfg, err := LoadRunCfg(path)
	require.NoError(t, err)

	o := &Overrides{Concurrency: 16}
	require.NoError(t, o.Apply(cfg))
	assert.Equal(t, 16, cfg.Orchestrator.Concurrency)
	assert.Equal(t, uint64(10), cfg.Orchestrator.TargetImages)
	assert.Equal(t, "./out", cfg.OutDir)
}

func TestOverridesApplyRejectsInvalidOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", `
provider:
  kind: mock
out_dir: ./out
`)
	cfg, err := LoadRunCfg(path)
	require.NoError(t, err)

	o := &Overrides{Concurrency: 99999}
	err = o.Apply(cfg)
	assert.ErrorIs(t, err, ErrInvalidConcurrency)
}

func TestLoadEnvMissingFileIsNotError(t *testing.T) {
	err := LoadEnv(filepath.Join(t.TempDir(), "nonexistent.env"))
	assert.NoError(t, err)
}

func TestLoadEnvLoadsVariables(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "IMGGEN_TEST_VAR=hello\n")
	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "hello", os.Getenv("IMGGEN_TEST_VAR"))
}
