// Package research supplies topic background for a unit before drafting.
// The provider is an external collaborator: it must tolerate being
// unavailable, so failures degrade to an empty Result instead of aborting
// the pipeline.
package research

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"bookforge/internal/jsonx"
	"bookforge/internal/llm"
	"bookforge/internal/llmclient"
)

// Result is the research digest attached to a unit's generation prompts.
type Result struct {
	Summary    string   `json:"summary"`
	Statistics []string `json:"statistics,omitempty"`
	Trends     []string `json:"trends,omitempty"`
	Quotes     []string `json:"quotes,omitempty"`
	Citations  []string `json:"citations,omitempty"`
}

// Empty reports whether the result carries no usable content.
func (r Result) Empty() bool {
	return r.Summary == "" && len(r.Statistics) == 0 && len(r.Trends) == 0 &&
		len(r.Quotes) == 0 && len(r.Citations) == 0
}

type Provider interface {
	Research(ctx context.Context, topic, niche string) (Result, error)
}

const promptResearch = `You are a research assistant for a nonfiction author.
Collect background for the chapter topic in the input, scoped to the given niche.

Return STRICT JSON ONLY:
{
  "summary": "string",
  "statistics": ["string"],
  "trends": ["string"],
  "quotes": ["string"],
  "citations": ["string"]
}
Keep each list to at most 5 items. Unknown fields: empty array.`

// LLMProvider backs research with one structured generation call.
type LLMProvider struct {
	LLM llmclient.LLMClient
}

func (p *LLMProvider) Research(ctx context.Context, topic, niche string) (Result, error) {
	ctx = llm.WithPhase(ctx, "research")
	raw, err := p.LLM.GenerateJSON(ctx, promptResearch, map[string]any{
		"topic": topic,
		"niche": niche,
	})
	if err != nil {
		return Result{}, err
	}
	var out Result
	if err := jsonx.Unmarshal(raw, &out); err != nil {
		return Result{}, err
	}
	return out, nil
}

const cacheTTL = 24 * time.Hour

// Cached memoizes research per (topic, niche) for 24 hours. The cache is
// book-scoped because the pipeline constructs one per book run.
type Cached struct {
	next  Provider
	cache *expirable.LRU[string, Result]
}

func NewCached(next Provider) *Cached {
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, Result](256, nil, cacheTTL),
	}
}

func (c *Cached) Research(ctx context.Context, topic, niche string) (Result, error) {
	key := topic + "::" + niche
	if res, ok := c.cache.Get(key); ok {
		return res, nil
	}
	res, err := c.next.Research(ctx, topic, niche)
	if err != nil {
		return Result{}, err
	}
	c.cache.Add(key, res)
	return res, nil
}
