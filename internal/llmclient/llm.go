package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrInvalidJSON     = errors.New("invalid json from LLM")
	ErrEmptyCompletion = errors.New("empty completion from LLM")
)

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// LLMClient is the provider-facing completion interface. GenerateText returns
// free prose; GenerateJSON requests a strict JSON object. Cross-cutting
// concerns (rate limiting, retries, logging, timing) are applied via
// middleware, not here.
type LLMClient interface {
	Name() string
	GenerateText(ctx context.Context, prompt string, input any) (string, error)
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	CountTokens(text string) int
	TokenCapacity() int
	Close() error
}

type ClientFactory func(ctx context.Context, tokenCap int) (LLMClient, error)

type ctxKeyTemperature struct{}

// WithTemperature overrides the sampling temperature for calls made with the
// returned context. Clients that support per-call temperature read it via
// TemperatureFrom.
func WithTemperature(ctx context.Context, t float32) context.Context {
	return context.WithValue(ctx, ctxKeyTemperature{}, t)
}

// TemperatureFrom returns the per-call temperature override, if any.
func TemperatureFrom(ctx context.Context) (float32, bool) {
	v := ctx.Value(ctxKeyTemperature{})
	if v == nil {
		return 0, false
	}
	t, ok := v.(float32)
	return t, ok
}

// CountTokens provides a rough token count, good enough for capacity checks
// and ledger weighting. Whitespace-delimited words, character fallback.
func CountTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	words := strings.Fields(text)
	if len(words) > 0 {
		return len(words)
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// EncodeInput renders the auxiliary input block appended to prompts.
func EncodeInput(input any) string {
	if input == nil {
		return ""
	}
	b, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
