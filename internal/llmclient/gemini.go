package llmclient

import (
	"context"
	"encoding/json"
	"strings"

	genai "google.golang.org/genai"

	"bookforge/internal/jsonx"
)

// GeminiClient is a thin wrapper around the official genai client. It only
// focuses on the API call itself; retries, rate limiting, logging and timing
// are middleware concerns.
type GeminiClient struct {
	cli      *genai.Client
	model    string
	tokenCap int
}

func NewGeminiClient(ctx context.Context, apiKey, model string, tokenCap int) (*GeminiClient, error) {
	// apiKey is currently unused here; the genai client reads it from env.
	// Keep the parameter for a consistent factory signature.
	_ = apiKey

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	if tokenCap <= 0 {
		tokenCap = 12000
	}
	return &GeminiClient{cli: cli, model: model, tokenCap: tokenCap}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }
func (g *GeminiClient) CountTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return CountTokens(text)
}
func (g *GeminiClient) TokenCapacity() int { return g.tokenCap }

// GenerateText concatenates prompt and input and returns plain prose.
func (g *GeminiClient) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "text/plain"}
	if t, ok := TemperatureFrom(ctx); ok {
		cfg.Temperature = genai.Ptr(t)
	}
	txt, err := g.generate(ctx, prompt, input, cfg)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(txt) == "" {
		return "", ErrEmptyCompletion
	}
	return txt, nil
}

// GenerateJSON asks for application/json and returns the model's JSON as-is.
func (g *GeminiClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if t, ok := TemperatureFrom(ctx); ok {
		cfg.Temperature = genai.Ptr(t)
	}
	txt, err := g.generate(ctx, prompt, input, cfg)
	if err != nil {
		return nil, err
	}
	obj, err := jsonx.ExtractObject(txt)
	if err != nil {
		return nil, ErrInvalidJSON
	}
	return obj, nil
}

func (g *GeminiClient) generate(ctx context.Context, prompt string, input any, cfg *genai.GenerateContentConfig) (string, error) {
	full := prompt
	if in := EncodeInput(input); in != "" {
		full += "\n\n[INPUT JSON]\n" + in
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		cfg,
	)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
