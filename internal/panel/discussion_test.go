package panel

import (
	"context"
	"strings"
	"testing"
)

func TestSimulateDiscussion(t *testing.T) {
	client := &scriptedClient{textFn: func(prompt string, input any) (string, error) {
		if strings.Contains(prompt, "respond to this reader") {
			return "a short reply in voice", nil
		}
		return "1. first question?\n2. second question?", nil
	}}
	p := New(client, 11)

	d := p.SimulateDiscussion(context.Background(), "structure", "chapter text", AutoGenerationConfig{
		QuestionsPerPersona: 2,
		VotingRounds:        2,
		DebateDepth:         2,
	})

	if len(d.Questions) != 2*len(DefaultProfiles()) {
		t.Fatalf("got %d questions", len(d.Questions))
	}
	if len(d.Top) != 3 {
		t.Fatalf("top %d, want 3", len(d.Top))
	}
	total := 0
	for _, q := range d.Questions {
		total += q.Votes
	}
	if total == 0 {
		t.Fatalf("two voting rounds produced no votes")
	}
	if len(d.Transcript) == 0 {
		t.Fatalf("debate depth 2 must yield transcript entries")
	}
	for _, line := range d.Transcript {
		if !strings.Contains(line, ": ") {
			t.Fatalf("transcript line %q", line)
		}
	}
}

func TestSimulateDiscussionSkipsDebateWhenDisabled(t *testing.T) {
	client := &scriptedClient{textFn: func(prompt string, input any) (string, error) {
		return "1. only question?", nil
	}}
	p := New(client, 11)
	d := p.SimulateDiscussion(context.Background(), "", "text", AutoGenerationConfig{DebateDepth: 0})
	if len(d.Transcript) != 0 {
		t.Fatalf("unexpected transcript %v", d.Transcript)
	}
}
