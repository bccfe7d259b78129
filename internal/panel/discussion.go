package panel

import (
	"context"
	"fmt"

	"bookforge/internal/llm"
)

// AutoGenerationConfig shapes the standalone reader-discussion simulation.
type AutoGenerationConfig struct {
	QuestionsPerPersona int
	VotingRounds        int
	DebateDepth         int
}

func (c AutoGenerationConfig) withDefaults() AutoGenerationConfig {
	if c.QuestionsPerPersona <= 0 {
		c.QuestionsPerPersona = 2
	}
	if c.VotingRounds <= 0 {
		c.VotingRounds = 1
	}
	if c.DebateDepth < 0 {
		c.DebateDepth = 0
	}
	return c
}

// Discussion is the outcome of a simulated reader discussion.
type Discussion struct {
	Questions  []RankedQuestion // all questions with accumulated votes
	Top        []RankedQuestion // top-3 after ranking
	Transcript []string         // debate exchanges on the winning question
}

const promptDebate = `You are %s. In one short paragraph, respond to this reader
question about the text in the input, in your voice:

%s`

// SimulateDiscussion runs the lightweight reader-discussion mode: every
// profile contributes questions, votes are simulated stochastically over the
// configured rounds, and the winning question optionally gets a short debate
// transcript.
func (p *Panel) SimulateDiscussion(ctx context.Context, topic, text string, cfg AutoGenerationConfig) Discussion {
	cfg = cfg.withDefaults()
	profiles := SelectProfiles(p.rng, topic, 0)

	var questions []RankedQuestion
	for _, prof := range profiles {
		for _, q := range p.GenerateQuestions(ctx, prof, text, cfg.QuestionsPerPersona) {
			questions = append(questions, RankedQuestion{Text: q, SourceProfileID: prof.ID})
		}
	}
	for round := 0; round < cfg.VotingRounds; round++ {
		questions = p.SimulateVotes(profiles, questions)
	}

	d := Discussion{Questions: questions, Top: Rank(questions)}
	if len(d.Top) == 0 || cfg.DebateDepth == 0 {
		return d
	}

	winner := d.Top[0]
	ctx = llm.WithPhase(ctx, "answer")
	for i := 0; i < cfg.DebateDepth && i < len(profiles); i++ {
		prof := profiles[i]
		if prof.ID == winner.SourceProfileID {
			continue
		}
		reply, err := p.LLM.GenerateText(ctx, fmt.Sprintf(promptDebate, prof.Name, winner.Text), map[string]any{"text": text})
		if err != nil {
			continue // a missing voice does not stop the debate
		}
		d.Transcript = append(d.Transcript, fmt.Sprintf("%s: %s", prof.Name, reply))
	}
	return d
}
