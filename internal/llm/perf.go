package llm

import (
	"context"
	"encoding/json"
	"time"

	llmclient "bookforge/internal/llmclient"
)

// PerfRecorder receives one record per completed generation call.
// *perf.Ledger satisfies it.
type PerfRecorder interface {
	Record(model, op string, d time.Duration, succeeded bool, outputLength int)
}

// WithPerf returns a middleware that times every call and reports it to the
// recorder, keyed by the underlying client name and the context phase.
func WithPerf(rec PerfRecorder) Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &perfTimed{next: next, rec: rec}
	}
}

type perfTimed struct {
	next llmclient.LLMClient
	rec  PerfRecorder
}

func (p *perfTimed) Name() string                { return p.next.Name() }
func (p *perfTimed) Close() error                { return p.next.Close() }
func (p *perfTimed) CountTokens(text string) int { return p.next.CountTokens(text) }
func (p *perfTimed) TokenCapacity() int          { return p.next.TokenCapacity() }

func (p *perfTimed) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	start := time.Now()
	out, err := p.next.GenerateText(ctx, prompt, input)
	if p.rec != nil {
		p.rec.Record(p.next.Name(), PhaseFrom(ctx), time.Since(start), err == nil, len(out))
	}
	return out, err
}

func (p *perfTimed) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := p.next.GenerateJSON(ctx, prompt, input)
	if p.rec != nil {
		p.rec.Record(p.next.Name(), PhaseFrom(ctx), time.Since(start), err == nil, len(raw))
	}
	return raw, err
}
