// Package quality scores a finished unit before commit. Deterministic
// gates run first and never depend on a model; the scored dimensions and
// the coverage check each cost one generation call and substitute neutral
// values when the model is unavailable.
package quality

import (
	"context"
	"fmt"
	"log"

	"bookforge/internal/jsonx"
	"bookforge/internal/llm"
	"bookforge/internal/llmclient"
	"bookforge/internal/textparse"
)

const (
	// Word-count band for a publishable unit. Short units block the
	// gate outright; long ones only raise a suggestion.
	MinWords = 600
	MaxWords = 2000

	// A unit reading like a slide deck fails the structure gate.
	maxBulletDensity = 0.05

	dimensionMax = 10
	passingDim   = 6
	neutralDim   = 5

	// Fraction of the maximum score required to pass overall.
	passRatio = 0.6
)

// Gate is one deterministic check.
type Gate struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Blocking bool   `json:"blocking"`
	Detail   string `json:"detail,omitempty"`
}

// Dimension is one model-scored axis on a 1..10 scale.
type Dimension struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func (d Dimension) Passed() bool { return d.Score >= passingDim }

// Assessment is the full gate report for a unit.
type Assessment struct {
	WordCount     int         `json:"wordCount"`
	Gates         []Gate      `json:"gates"`
	Dimensions    []Dimension `json:"dimensions"`
	Coverage      []bool      `json:"coverage,omitempty"`
	Suggestions   []string    `json:"suggestions,omitempty"`
	TotalScore    float64     `json:"totalScore"`
	MaxScore      float64     `json:"maxScore"`
	OverallPassed bool        `json:"overallPassed"`
}

func (a Assessment) blockingFailure() bool {
	for _, g := range a.Gates {
		if g.Blocking && !g.Passed {
			return true
		}
	}
	return false
}

// Checker runs the gate suite. LLM may be nil, in which case only the
// deterministic gates contribute and the dimensions stay neutral.
type Checker struct {
	LLM llmclient.LLMClient
}

const promptAnalysis = `You are a strict developmental editor.
Score the chapter text in the input on five axes, each an integer 1-10.

Return STRICT JSON ONLY:
{"coherence": n, "relevance": n, "clarity": n, "engagement": n, "completeness": n}`

const promptCoverage = `You are checking whether a chapter answers its readers' questions.
The input holds the chapter text and a list of questions.

Return STRICT JSON ONLY:
{"addressed": [true, false, ...]}
with exactly one boolean per question, in order.`

var dimensionNames = []string{"coherence", "relevance", "clarity", "engagement", "completeness"}

// Check assesses one unit. questions are the panel questions the unit was
// expected to address; pass nil to skip the coverage check.
func (c *Checker) Check(ctx context.Context, title, body string, questions []string) Assessment {
	var a Assessment
	a.WordCount = textparse.WordCount(body)

	a.Gates = append(a.Gates, Gate{
		Name:     "word_count_min",
		Passed:   a.WordCount >= MinWords,
		Blocking: true,
		Detail:   fmt.Sprintf("%d words, need at least %d", a.WordCount, MinWords),
	})
	if a.WordCount > MaxWords {
		a.Suggestions = append(a.Suggestions,
			fmt.Sprintf("unit runs %d words; consider trimming toward %d", a.WordCount, MaxWords))
	}
	a.Gates = append(a.Gates, Gate{
		Name:   "has_headings",
		Passed: textparse.HasHeadings(body),
		Detail: "expects at least one markdown heading",
	})
	density := textparse.BulletDensity(body)
	a.Gates = append(a.Gates, Gate{
		Name:   "bullet_density",
		Passed: density <= maxBulletDensity,
		Detail: fmt.Sprintf("%.1f%% of lines are bullets", density*100),
	})

	a.Dimensions = c.scoreDimensions(ctx, title, body)
	if len(questions) > 0 {
		a.Coverage = c.checkCoverage(ctx, body, questions)
	}

	for _, g := range a.Gates {
		a.MaxScore += dimensionMax
		if g.Passed {
			a.TotalScore += dimensionMax
		}
	}
	for _, d := range a.Dimensions {
		a.MaxScore += dimensionMax
		a.TotalScore += float64(d.Score)
	}
	for _, ok := range a.Coverage {
		a.MaxScore += dimensionMax
		if ok {
			a.TotalScore += dimensionMax
		}
	}

	a.OverallPassed = !a.blockingFailure() && a.TotalScore >= passRatio*a.MaxScore
	return a
}

func (c *Checker) scoreDimensions(ctx context.Context, title, body string) []Dimension {
	scores := neutralDimensions()
	if c.LLM == nil {
		return scores
	}
	ctx = llm.WithPhase(ctx, "analysis")
	raw, err := c.LLM.GenerateJSON(ctx, promptAnalysis, map[string]any{
		"title": title,
		"text":  body,
	})
	if err != nil {
		log.Printf("[quality] dimension scoring unavailable, using neutral scores: %v", err)
		return scores
	}
	var parsed map[string]int
	if err := jsonx.Unmarshal(raw, &parsed); err != nil {
		log.Printf("[quality] dimension scoring returned bad JSON, using neutral scores: %v", err)
		return scores
	}
	for i, name := range dimensionNames {
		if v, ok := parsed[name]; ok && v >= 1 && v <= dimensionMax {
			scores[i].Score = v
		}
	}
	return scores
}

func (c *Checker) checkCoverage(ctx context.Context, body string, questions []string) []bool {
	// Unknown coverage counts as addressed so an offline model never
	// blocks a commit.
	covered := make([]bool, len(questions))
	for i := range covered {
		covered[i] = true
	}
	if c.LLM == nil {
		return covered
	}
	ctx = llm.WithPhase(ctx, "coverage")
	raw, err := c.LLM.GenerateJSON(ctx, promptCoverage, map[string]any{
		"text":      body,
		"questions": questions,
	})
	if err != nil {
		log.Printf("[quality] coverage check unavailable: %v", err)
		return covered
	}
	var parsed struct {
		Addressed []bool `json:"addressed"`
	}
	if err := jsonx.Unmarshal(raw, &parsed); err != nil {
		log.Printf("[quality] coverage check returned bad JSON: %v", err)
		return covered
	}
	for i := range covered {
		if i < len(parsed.Addressed) {
			covered[i] = parsed.Addressed[i]
		}
	}
	return covered
}

func neutralDimensions() []Dimension {
	out := make([]Dimension, len(dimensionNames))
	for i, name := range dimensionNames {
		out[i] = Dimension{Name: name, Score: neutralDim}
	}
	return out
}
