package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FakeClient returns deterministic, minimal payloads per phase for
// offline runs and tests. Prose phases produce section-structured text long
// enough to clear the word-count gate.
type FakeClient struct {
	tokenCap int
}

func NewFakeClient(cap int) *FakeClient {
	if cap <= 0 {
		cap = 4096
	}
	return &FakeClient{tokenCap: cap}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }
func (f *FakeClient) CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return len(text) / 4
}
func (f *FakeClient) TokenCapacity() int { return f.tokenCap }

func (f *FakeClient) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	switch PhaseFrom(ctx) {
	case "skeleton":
		return "## Opening\n1. Frame the problem\n2. State the promise\n\n## Development\n1. First principle\n2. Worked example\n\n## Closing\n1. Recap\n2. Bridge to the next chapter\n", nil
	case "question":
		return "1. What evidence supports the central claim of this chapter?\n" +
			"2. How does this chapter connect to the promise made earlier?\n" +
			"3. Which concept deserves a concrete example here?\n" +
			"4. Where does the argument feel rushed?\n" +
			"5. What would a skeptical reader push back on first?\n", nil
	case "section", "revision", "redraft":
		return fakeProse(), nil
	default:
		return "fake completion for phase " + PhaseFrom(ctx), nil
	}
}

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	phase := PhaseFrom(ctx)
	var obj any
	switch phase {
	case "research":
		obj = map[string]any{
			"summary":    "fake research summary",
			"statistics": []string{"7 in 10 readers skim the first section"},
			"trends":     []string{"short chapters are gaining ground"},
			"quotes":     []string{"\"clarity beats cleverness\""},
			"citations":  []string{"fake-source-1"},
		}
	case "analysis":
		obj = map[string]any{
			"coherence":    8,
			"relevance":    8,
			"clarity":      7,
			"engagement":   7,
			"completeness": 8,
		}
	case "coverage":
		obj = map[string]any{
			"addressed": []bool{true, true, true},
		}
	case "metadata":
		obj = map[string]any{
			"summary":    "fake chapter summary",
			"key_points": []string{"first point", "second point"},
			"concepts": []map[string]string{
				{"name": "Flow State", "definition": "full immersion in a task"},
			},
			"decisions": []string{"keep the second-person voice"},
			"promises":  []string{},
			"entities":  []string{"Mihaly Csikszentmihalyi"},
		}
	default:
		obj = map[string]any{}
	}
	b, _ := json.Marshal(obj)
	return json.RawMessage(b), nil
}

func fakeProse() string {
	var b strings.Builder
	b.WriteString("## Why This Matters\n\n")
	for i := 0; i < 3; i++ {
		b.WriteString(fakeParagraph(i))
		b.WriteString("\n\n")
	}
	b.WriteString("## Putting It To Work\n\n")
	for i := 3; i < 6; i++ {
		b.WriteString(fakeParagraph(i))
		b.WriteString("\n\n")
	}
	b.WriteString("## What Comes Next\n\n")
	b.WriteString(fakeParagraph(6))
	b.WriteString("\n")
	return b.String()
}

func fakeParagraph(seed int) string {
	base := fmt.Sprintf("Paragraph %d develops the argument one careful step at a time. ", seed+1)
	filler := "The idea earns its place by connecting the reader's daily experience to the chapter's promise, and every sentence either advances the claim or grounds it in something concrete. A short example does more work than a page of abstraction, so the text keeps returning to specifics before widening the lens again. "
	return base + strings.Repeat(filler, 3)
}
