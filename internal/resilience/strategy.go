package resilience

import "strings"

// Strategy is the closed set of fallback behaviors. Each variant carries an
// explicit transformation of the attempt shape, so a fallback re-invocation
// genuinely differs from the failed one instead of repeating it verbatim.
type Strategy int

const (
	// StrategyRetry re-invokes the attempt unchanged after the backoff.
	StrategyRetry Strategy = iota
	// StrategyReduceLength halves the word budget.
	StrategyReduceLength
	// StrategySimplifyPrompt keeps only the prompt's leading paragraph and
	// drops the auxiliary input block.
	StrategySimplifyPrompt
	// StrategyLowerTemperature reduces sampling temperature by 0.3.
	StrategyLowerTemperature
	// StrategySplitTask asks for the most important half of the task in half
	// the budget.
	StrategySplitTask
	// StrategyMinimal combines every reduction: bare prompt, no input,
	// temperature 0, 300-word budget.
	StrategyMinimal
)

var strategyNames = map[Strategy]string{
	StrategyRetry:            "retry",
	StrategyReduceLength:     "reduce_length",
	StrategySimplifyPrompt:   "simplify_prompt",
	StrategyLowerTemperature: "lower_temp",
	StrategySplitTask:        "split_task",
	StrategyMinimal:          "minimal",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategy maps a config token to a Strategy.
func ParseStrategy(name string) (Strategy, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == name {
			return s, true
		}
	}
	return StrategyRetry, false
}

// ParseStrategies maps config tokens to strategies, dropping unknown names.
func ParseStrategies(names []string) []Strategy {
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		if s, ok := ParseStrategy(n); ok {
			out = append(out, s)
		}
	}
	return out
}

// Transform derives the fallback attempt from the primary attempt. The input
// is never mutated.
func (s Strategy) Transform(att Attempt) Attempt {
	switch s {
	case StrategyReduceLength:
		att.MaxWords = halfBudget(att.MaxWords)
	case StrategySimplifyPrompt:
		att.Prompt = firstParagraph(att.Prompt) + "\n\nRespond directly and plainly."
		att.Input = nil
		att.Simplified = true
	case StrategyLowerTemperature:
		att.Temperature -= 0.3
		if att.Temperature < 0 {
			att.Temperature = 0
		}
		att.HasTemperature = true
	case StrategySplitTask:
		att.Prompt += "\n\nCover only the most important half of the task and keep the result self-contained."
		att.MaxWords = halfBudget(att.MaxWords)
	case StrategyMinimal:
		att.Prompt = firstParagraph(att.Prompt)
		att.Input = nil
		att.Temperature = 0
		att.HasTemperature = true
		att.MaxWords = 300
		att.Simplified = true
	}
	return att
}

func halfBudget(words int) int {
	if words <= 0 {
		return 800
	}
	half := words / 2
	if half < 300 {
		half = 300
	}
	return half
}

func firstParagraph(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if i := strings.Index(prompt, "\n\n"); i > 0 {
		return prompt[:i]
	}
	return prompt
}
