package web

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurricanerix/imggen/internal/config"
	"github.com/hurricanerix/imggen/internal/events"
)

func testCfg(t *testing.T, outDir string) *config.RunCfg {
	t.Helper()
	cfg := &config.RunCfg{
		Provider:     config.ProviderCfg{Kind: "mock", Width: 8, Height: 8},
		Orchestrator: config.OrchestratorCfg{TargetImages: 1, Concurrency: 1, QueueCap: 1, RatePerMin: 6000, BackoffBaseMS: 1, BackoffFactor: 1, BackoffJitterMS: 0, MaxAttempts: 1},
		OutDir:       outDir,
		Seed:         1,
		LogLevel:     "info",
	}
	return cfg
}

func testTmpl() *config.TemplateYaml {
	return &config.TemplateYaml{Mode: "GeneralPrompt", Prompt: "x"}
}

func TestHandleConfigGetAndPut(t *testing.T) {
	dir := t.TempDir()
	s := NewServer("", testCfg(t, dir), testTmpl(), nil)

	req := httptest.NewRequest("GET", "/config", nil)
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	var got config.RunCfg
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "mock", got.Provider.Kind)

	got.Orchestrator.Concurrency = 3
	body, err := json.Marshal(got)
	require.NoError(t, err)

	w2 := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w2, httptest.NewRequest("PUT", "/config", bytes.NewReader(body)))
	require.Equal(t, 200, w2.Code)

	w3 := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w3, httptest.NewRequest("GET", "/config", nil))
	var after config.RunCfg
	require.NoError(t, json.Unmarshal(w3.Body.Bytes(), &after))
	assert.Equal(t, 3, after.Orchestrator.Concurrency)
}

func TestHandleConfigPutRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	s := NewServer("", testCfg(t, dir), testTmpl(), nil)

	body := []byte(`{"provider":{"kind":"bogus"},"out_dir":"./out"}`)
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, httptest.NewRequest("PUT", "/config", bytes.NewReader(body)))
	assert.Equal(t, 400, w.Code)
}

func TestHandleTemplateGetAndPut(t *testing.T) {
	dir := t.TempDir()
	s := NewServer("", testCfg(t, dir), testTmpl(), nil)

	body := []byte(`{"mode":"AdTemplate","brand":"Acme","product":"Cola","styles":["studio"]}`)
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, httptest.NewRequest("PUT", "/template", bytes.NewReader(body)))
	require.Equal(t, 200, w.Code)

	w2 := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w2, httptest.NewRequest("GET", "/template", nil))
	var tmpl config.TemplateYaml
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &tmpl))
	assert.Equal(t, "Acme", tmpl.Brand)
}

// TestS6SecondRunConflicts matches scenario S6: two /run requests back to
// back, the second returns 409 naming the active run_id.
func TestS6SecondRunConflicts(t *testing.T) {
	dir := t.TempDir()
	cfg := testCfg(t, dir)
	cfg.Orchestrator.TargetImages = 1000 // keep the run alive long enough to observe the conflict
	cfg.Orchestrator.RatePerMin = 1      // slow it down
	s := NewServer("", cfg, testTmpl(), nil)

	w1 := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w1, httptest.NewRequest("POST", "/run", nil))
	require.Equal(t, 202, w1.Code)

	var first map[string]string
	require.NoError(t, json.Unmarshal(w1.Body.Bytes(), &first))
	require.NotEmpty(t, first["run_id"])

	w2 := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w2, httptest.NewRequest("POST", "/run", nil))
	assert.Equal(t, 409, w2.Code)

	var second map[string]string
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &second))
	assert.Contains(t, second["error"], first["run_id"])

	s.mu.Lock()
	if s.activeCancel != nil {
		s.activeCancel()
	}
	s.mu.Unlock()
}

func TestRunEventsStreamsStartedAndFinished(t *testing.T) {
	dir := t.TempDir()
	cfg := testCfg(t, dir)
	s := NewServer("", cfg, testTmpl(), nil)
	ch, cancelSub := s.bus.Subscribe()
	defer cancelSub()

	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, httptest.NewRequest("POST", "/run", nil))
	require.Equal(t, 202, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	runID := resp["run_id"]

	var sawStarted, sawFinished bool
	timeout := time.After(2 * time.Second)
	for !sawFinished {
		select {
		case ev := <-ch:
			if ev.RunID == runID && ev.Kind == events.KindStarted {
				sawStarted = true
			}
			if ev.RunID == runID && ev.Kind == events.KindFinished {
				sawFinished = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for the run's Finished event")
		}
	}
	assert.True(t, sawStarted)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		active := s.activeRunID
		s.mu.Unlock()
		if active == "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.NotEmpty(t, runID)
}
