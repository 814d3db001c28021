package provider

import "time"

// GeminiEndpoint is the default Gemini image-generation endpoint, reached
// through the same OpenAI-shape envelope (data[0].b64_json / data[0].url)
// per spec.
const GeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/images:generate"

// NewGemini constructs a Gemini-shape HTTP-JSON adapter. It is a thin
// convenience wrapper over NewHTTPJSON: Gemini's image endpoint is consumed
// through the same request/response envelope as OpenAI's.
func NewGemini(apiKey, model string, width, height int, priceUSD float64) *HTTPJSON {
	return NewHTTPJSON(HTTPJSONConfig{
		Name:     "gemini",
		Endpoint: GeminiEndpoint,
		APIKey:   apiKey,
		Model:    model,
		Width:    width,
		Height:   height,
		PriceUSD: priceUSD,
		Timeout:  60 * time.Second,
	})
}

// OpenAIEndpoint is the default OpenAI image-generation endpoint.
const OpenAIEndpoint = "https://api.openai.com/v1/images/generations"

// NewOpenAI constructs an OpenAI-shape HTTP-JSON adapter.
func NewOpenAI(apiKey, model string, width, height int, priceUSD float64) *HTTPJSON {
	return NewHTTPJSON(HTTPJSONConfig{
		Name:     "openai",
		Endpoint: OpenAIEndpoint,
		APIKey:   apiKey,
		Model:    model,
		Width:    width,
		Height:   height,
		PriceUSD: priceUSD,
		Timeout:  60 * time.Second,
	})
}
