package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// dallePrefix marks model families that require response_format in the
// request body; other models (e.g. gpt-image-*) reject the field outright.
const dallePrefix = "dall-e-"

// maxBodySnippet bounds how much of an error response body is retained for
// diagnostics.
const maxBodySnippet = 1024

// HTTPJSON is an OpenAI-shape (and, via the same envelope, Gemini-shape)
// image generation adapter: POST prompt + model, expect
// data[0].b64_json or data[0].url in response.
type HTTPJSON struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	width      int
	height     int
	priceUSD   float64
	httpClient *http.Client
}

// HTTPJSONConfig configures an HTTPJSON adapter.
type HTTPJSONConfig struct {
	Name     string // "openai" or "gemini", used only for logging/filenames
	Endpoint string
	APIKey   string
	Model    string
	Width    int
	Height   int
	PriceUSD float64
	Timeout  time.Duration
}

// NewHTTPJSON constructs an HTTPJSON adapter from cfg.
func NewHTTPJSON(cfg HTTPJSONConfig) *HTTPJSON {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPJSON{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		width:    cfg.Width,
		height:   cfg.Height,
		priceUSD: cfg.PriceUSD,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPJSON) Name() string              { return p.name }
func (p *HTTPJSON) Model() string              { return p.model }
func (p *HTTPJSON) PriceUSDPerImage() float64 { return p.priceUSD }

type imageGenRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageGenResponse struct {
	Data []imageGenDatum `json:"data"`
}

type imageGenDatum struct {
	B64JSON string `json:"b64_json"`
	URL     string `json:"url"`
}

// Generate posts prompt to the configured endpoint and returns the decoded
// image bytes, classifying failures per the RateLimited/Transient/Fatal
// taxonomy so the orchestrator's retry loop can react appropriately.
func (p *HTTPJSON) Generate(ctx context.Context, prompt string) (Artifact, error) {
	reqBody := imageGenRequest{
		Model:  p.model,
		Prompt: prompt,
		N:      1,
	}
	if p.width > 0 && p.height > 0 {
		reqBody.Size = fmt.Sprintf("%dx%d", p.width, p.height)
	}
	if strings.HasPrefix(p.model, dallePrefix) {
		reqBody.ResponseFormat = "b64_json"
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Artifact{}, Fatal("encode request: " + err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Artifact{}, Fatal("build request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Artifact{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Artifact{}, RateLimited(resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		snippet, _ := readSnippet(resp.Body)
		return Artifact{}, Transient(resp.StatusCode, snippet)
	}
	if resp.StatusCode >= 400 {
		snippet, _ := readSnippet(resp.Body)
		return Artifact{}, Fatal(fmt.Sprintf("status %d: %s", resp.StatusCode, snippet))
	}

	var parsed imageGenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Artifact{}, Transient(resp.StatusCode, "decode error: "+err.Error())
	}
	if len(parsed.Data) == 0 {
		return Artifact{}, Fatal("response contained no image data")
	}

	datum := parsed.Data[0]
	var imgBytes []byte
	switch {
	case datum.B64JSON != "":
		imgBytes, err = base64.StdEncoding.DecodeString(datum.B64JSON)
		if err != nil {
			return Artifact{}, Fatal("invalid base64 image data: " + err.Error())
		}
	case datum.URL != "":
		imgBytes, err = p.fetchURL(ctx, datum.URL)
		if err != nil {
			return Artifact{}, err
		}
	default:
		return Artifact{}, Fatal("response data missing both b64_json and url")
	}

	return Artifact{
		Bytes:      imgBytes,
		Width:      uint32(p.width),
		Height:     uint32(p.height),
		PromptUsed: prompt,
		Model:      p.model,
	}, nil
}

func (p *HTTPJSON) fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Fatal("build fetch request: " + err.Error())
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		snippet, _ := readSnippet(resp.Body)
		return nil, Transient(resp.StatusCode, snippet)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := readSnippet(resp.Body)
		return nil, Fatal(fmt.Sprintf("fetch status %d: %s", resp.StatusCode, snippet))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(0, "read fetch body: "+err.Error())
	}
	return data, nil
}

func readSnippet(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBodySnippet))
	return string(data), err
}

// classifyTransportError maps network-level failures (connection refused,
// timeout, DNS failure, context cancellation) to Transient: none of these
// indicate a problem with the request itself, so a retry may succeed.
func classifyTransportError(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient(0, "timeout: "+err.Error())
	}
	return Transient(0, err.Error())
}
