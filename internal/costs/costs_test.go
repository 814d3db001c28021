package costs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSidecar(t *testing.T, dir, name string, runID, provider, model string, cost float64) {
	t.Helper()
	data, err := json.Marshal(sidecarData{RunID: runID, Provider: provider, Model: model, CostUSD: cost})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestComputeSummaryAggregatesAcrossRunsAndProviders(t *testing.T) {
	dir := t.TempDir()
	writeSidecar(t, dir, "1.json", "run-a", "openai", "gpt-image-1", 0.04)
	writeSidecar(t, dir, "2.json", "run-a", "openai", "gpt-image-1", 0.04)
	writeSidecar(t, dir, "3.json", "run-b", "mock", "mock-noise-v1", 0.0)

	summary, err := ComputeSummary(dir)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), summary.ImageCount)
	assert.InDelta(t, 0.08, summary.TotalCost, 1e-9)
	assert.Len(t, summary.Runs, 2)
	assert.Len(t, summary.ByProvider, 2)
}

func TestComputeSummarySkipsNonSidecarJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.jsonl"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.json"), []byte(`{"unrelated": true}`), 0o644))
	writeSidecar(t, dir, "1.json", "run-a", "openai", "gpt-image-1", 0.04)

	summary, err := ComputeSummary(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), summary.ImageCount)
}

func TestComputeSummaryEmptyDirYieldsZeroAverage(t *testing.T) {
	dir := t.TempDir()
	summary, err := ComputeSummary(dir)
	require.NoError(t, err)
	assert.Zero(t, summary.ImageCount)
	assert.Zero(t, summary.AvgCostPerImage)
}

func TestEstimateCost(t *testing.T) {
	assert.InDelta(t, 4.0, EstimateCost(100, 0.04), 1e-9)
}
