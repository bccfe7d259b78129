package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(time.Duration) {}

func TestRunNeverReturnsError(t *testing.T) {
	c := NewControllerWithSleep(noSleep)
	calls := 0
	out := c.Run(context.Background(), "draft", Attempt{Prompt: "p"}, func(ctx context.Context, att Attempt) (string, error) {
		calls++
		return "", errors.New("provider down")
	}, Config{
		MaxRetries: 4,
		Strategies: []Strategy{StrategyRetry, StrategyReduceLength, StrategySimplifyPrompt, StrategyLowerTemperature},
	})

	if out.Succeeded {
		t.Fatalf("expected failure outcome")
	}
	if !out.Degraded {
		t.Fatalf("exhaustion must be flagged degraded")
	}
	if out.StrategyUsed != "none" {
		t.Fatalf("strategy %q, want none", out.StrategyUsed)
	}
	if out.AttemptsUsed != 4 || calls != 4 {
		t.Fatalf("attempts %d calls %d, want 4 and 4", out.AttemptsUsed, calls)
	}
	if out.ErrMessage == "" {
		t.Fatalf("exhaustion must carry the last error text")
	}
}

func TestRunPrimarySucceeds(t *testing.T) {
	c := NewControllerWithSleep(noSleep)
	out := c.Run(context.Background(), "draft", Attempt{Prompt: "p"}, func(ctx context.Context, att Attempt) (string, error) {
		return "body", nil
	}, Config{MaxRetries: 4, Strategies: []Strategy{StrategyRetry}})

	if !out.Succeeded || out.Payload != "body" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.StrategyUsed != "primary" || out.Degraded {
		t.Fatalf("primary success must not be degraded: %+v", out)
	}
}

func TestRunFallbackChainWalksInOrder(t *testing.T) {
	c := NewControllerWithSleep(noSleep)
	var prompts []string
	var shapes []Attempt
	out := c.Run(context.Background(), "draft", Attempt{Prompt: "lead\n\ndetail", Temperature: 0.7, HasTemperature: true},
		func(ctx context.Context, att Attempt) (string, error) {
			prompts = append(prompts, att.Prompt)
			shapes = append(shapes, att)
			if len(shapes) < 3 {
				return "", errors.New("boom")
			}
			return "ok", nil
		}, Config{
			MaxRetries: 4,
			Strategies: []Strategy{StrategyReduceLength, StrategySimplifyPrompt},
		})

	if !out.Succeeded || out.StrategyUsed != "simplify_prompt" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !out.Degraded {
		t.Fatalf("a fallback success is still degraded")
	}
	if out.AttemptsUsed != 3 {
		t.Fatalf("attempts %d, want 3", out.AttemptsUsed)
	}
	// Every fallback derives from the primary shape, not the previous
	// fallback's: reduce_length keeps the full prompt, simplify_prompt
	// drops everything after the lead paragraph.
	if shapes[1].MaxWords == 0 || shapes[1].Prompt != prompts[0] {
		t.Fatalf("reduce_length shape wrong: %+v", shapes[1])
	}
	if shapes[2].MaxWords != 0 || !shapes[2].Simplified {
		t.Fatalf("simplify_prompt must derive from the primary: %+v", shapes[2])
	}
}

func TestRunRespectsMaxRetries(t *testing.T) {
	c := NewControllerWithSleep(noSleep)
	calls := 0
	out := c.Run(context.Background(), "draft", Attempt{}, func(ctx context.Context, att Attempt) (string, error) {
		calls++
		return "", errors.New("boom")
	}, Config{
		MaxRetries: 2,
		Strategies: []Strategy{StrategyRetry, StrategyReduceLength, StrategyMinimal},
	})
	if calls != 2 || out.AttemptsUsed != 2 {
		t.Fatalf("calls %d attempts %d, want 2", calls, out.AttemptsUsed)
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	c := NewControllerWithSleep(noSleep)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	out := c.Run(ctx, "draft", Attempt{}, func(ctx context.Context, att Attempt) (string, error) {
		calls++
		cancel()
		return "", errors.New("boom")
	}, Config{MaxRetries: 5, Strategies: []Strategy{StrategyRetry, StrategyRetry}})
	if calls != 1 {
		t.Fatalf("canceled context must stop the chain, got %d calls", calls)
	}
	if out.Succeeded {
		t.Fatalf("expected failure outcome")
	}
}

func TestTransformShapes(t *testing.T) {
	base := Attempt{Prompt: "lead\n\nrest", Input: "in", Temperature: 0.2, HasTemperature: true, MaxWords: 1000}

	if got := StrategyRetry.Transform(base); got != base {
		t.Fatalf("retry must not change the attempt: %+v", got)
	}
	if got := StrategyReduceLength.Transform(base); got.MaxWords != 500 {
		t.Fatalf("reduce_length budget %d, want 500", got.MaxWords)
	}
	if got := StrategyReduceLength.Transform(Attempt{}); got.MaxWords != 800 {
		t.Fatalf("reduce_length default budget %d, want 800", got.MaxWords)
	}
	if got := StrategySimplifyPrompt.Transform(base); got.Input != nil || !got.Simplified {
		t.Fatalf("simplify_prompt shape: %+v", got)
	}
	got := StrategyLowerTemperature.Transform(base)
	if got.Temperature != 0 || !got.HasTemperature {
		t.Fatalf("lower_temp must floor at 0: %+v", got)
	}
	if got := StrategySplitTask.Transform(base); got.MaxWords != 500 || got.Prompt == base.Prompt {
		t.Fatalf("split_task shape: %+v", got)
	}
	m := StrategyMinimal.Transform(base)
	if m.Temperature != 0 || m.MaxWords != 300 || m.Input != nil || !m.Simplified {
		t.Fatalf("minimal shape: %+v", m)
	}
}

func TestParseStrategies(t *testing.T) {
	got := ParseStrategies([]string{"retry", " Reduce_Length ", "nope", "minimal"})
	want := []Strategy{StrategyRetry, StrategyReduceLength, StrategyMinimal}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestRunWithTimeoutSubstitutesFallback(t *testing.T) {
	out, err := RunWithTimeout(context.Background(), 20*time.Millisecond,
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		func() string { return "stand-in" })
	if err != nil {
		t.Fatalf("deadline must be absorbed: %v", err)
	}
	if out != "stand-in" {
		t.Fatalf("got %q", out)
	}
}

func TestRunWithTimeoutPassesOtherErrors(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := RunWithTimeout(context.Background(), time.Second,
		func(ctx context.Context) (string, error) { return "", wantErr },
		func() string { return "stand-in" })
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v want %v", err, wantErr)
	}
}
