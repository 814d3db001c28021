// Package rewrite implements the optional LLM prompt-rewrite stage and its
// content-addressed persistent cache.
package rewrite

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Rewriter transforms an original prompt into a rewritten one. Any error or
// empty-string result is treated by the caller as "use the original prompt".
type Rewriter interface {
	Rewrite(ctx context.Context, original string) (string, error)
	Name() string
	Model() string
	System() string
}

// CacheKey computes the content-addressed cache key for a rewrite:
// hex(sha256(name ∥ model ∥ system ∥ 0x1F ∥ original)).
func CacheKey(r Rewriter, original string) string {
	h := sha256.New()
	h.Write([]byte(r.Name()))
	h.Write([]byte(r.Model()))
	h.Write([]byte(r.System()))
	h.Write([]byte{0x1F})
	h.Write([]byte(original))
	return hex.EncodeToString(h.Sum(nil))
}

// OpenAIRewriter rewrites prompts via an OpenAI-shape chat completions
// endpoint.
type OpenAIRewriter struct {
	Endpoint  string
	APIKey    string
	ModelName string
	Sys       string
	MaxTokens int

	httpClient *http.Client
}

// NewOpenAIRewriter constructs an OpenAIRewriter.
func NewOpenAIRewriter(endpoint, apiKey, model, system string, maxTokens int) *OpenAIRewriter {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &OpenAIRewriter{
		Endpoint:  endpoint,
		APIKey:    apiKey,
		ModelName: model,
		Sys:       system,
		MaxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (r *OpenAIRewriter) Name() string   { return "openai-rewriter" }
func (r *OpenAIRewriter) Model() string  { return r.ModelName }
func (r *OpenAIRewriter) System() string { return r.Sys }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Rewrite calls the configured chat endpoint. On any failure it returns an
// error; the caller falls back to the original prompt per the spec's
// cache/rewriter error-recovery rule.
func (r *OpenAIRewriter) Rewrite(ctx context.Context, original string) (string, error) {
	reqBody := chatRequest{
		Model:     r.ModelName,
		MaxTokens: r.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: r.Sys},
			{Role: "user", Content: original},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode rewrite request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build rewrite request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("rewrite request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rewrite request status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode rewrite response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("rewrite response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Noop returns the original prompt unchanged. A disabled rewrite stage does
// not use it: startup.CreateRewriter returns a nil Rewriter instead.
type Noop struct{}

func (Noop) Name() string   { return "noop" }
func (Noop) Model() string  { return "" }
func (Noop) System() string { return "" }
func (Noop) Rewrite(_ context.Context, original string) (string, error) {
	return original, nil
}
