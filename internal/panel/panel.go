// Package panel generates reviewer questions from distinct viewpoint
// profiles and ranks them by voting. It serves the per-unit critique pass
// and the standalone reader-discussion simulation.
package panel

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"

	"bookforge/internal/llm"
	"bookforge/internal/llmclient"
	"bookforge/internal/textparse"
)

// RankedQuestion is one critique question with its vote tally. Order of
// creation is preserved for tie-breaking.
type RankedQuestion struct {
	Text            string
	SourceProfileID string
	Votes           int
}

// fallbackQuestions keeps a critique round from ever coming back empty.
var fallbackQuestions = []string{
	"What is the single most important idea in this chapter, and is it stated clearly enough?",
	"Which claim in this chapter most needs supporting evidence or an example?",
	"Where would a reader lose momentum, and what would keep them engaged?",
}

type Panel struct {
	LLM llmclient.LLMClient
	rng *rand.Rand
}

// New creates a panel. The seed fixes profile selection and simulated
// voting, which keeps offline runs reproducible.
func New(client llmclient.LLMClient, seed int64) *Panel {
	return &Panel{LLM: client, rng: rand.New(rand.NewSource(seed))}
}

const promptQuestions = `You are %s, a book reviewer. Your focus: %s.
Your style: %s.

Read the chapter text in the input and write exactly %d probing review
questions about it, in your voice. Output ONLY a numbered list:
1. <question>
2. <question>
No preamble, no commentary after the list.`

const promptQuestionsBare = `Write %d review questions about the chapter text in the input.
Output only a bare numbered list, nothing else.`

// GenerateQuestions asks one profile for count questions about unitText.
// Unparseable output triggers one maximally simplified re-prompt; if that
// still yields nothing, a fixed generic set substitutes so the round never
// fails.
func (p *Panel) GenerateQuestions(ctx context.Context, profile Profile, unitText string, count int) []string {
	if count <= 0 {
		count = 3
	}
	ctx = llm.WithPhase(ctx, "question")
	input := map[string]any{"chapter_text": unitText}

	prompt := fmt.Sprintf(promptQuestions, profile.Name, strings.Join(profile.Focus, ", "), profile.QuestioningStyle, count)
	if qs := p.askForList(ctx, prompt, input, count); qs != nil {
		return qs
	}

	log.Printf("panel: %s produced no parseable questions, re-prompting simplified", profile.ID)
	bare := fmt.Sprintf(promptQuestionsBare, count)
	if qs := p.askForList(ctx, bare, input, count); qs != nil {
		return qs
	}

	log.Printf("panel: %s falling back to generic questions", profile.ID)
	return append([]string(nil), fallbackQuestions...)
}

func (p *Panel) askForList(ctx context.Context, prompt string, input any, count int) []string {
	out, err := p.LLM.GenerateText(ctx, prompt, input)
	if err != nil {
		return nil
	}
	qs := textparse.NumberedList(out)
	if len(qs) == 0 {
		return nil
	}
	if len(qs) > count {
		qs = qs[:count]
	}
	return qs
}

// SimulateVotes runs the stochastic heuristic vote: one independent
// Bernoulli trial per (profile, question) pair with probability
// min(engagement/15 + 0.3·interestMatch, 0.95). Profiles do not own
// questions in this mode, so there is no self-vote exclusion.
func (p *Panel) SimulateVotes(profiles []Profile, questions []RankedQuestion) []RankedQuestion {
	out := append([]RankedQuestion(nil), questions...)
	for i := range out {
		for _, prof := range profiles {
			if p.rng.Float64() < voteProbability(prof, out[i].Text) {
				out[i].Votes++
			}
		}
	}
	return out
}

func voteProbability(prof Profile, question string) float64 {
	prob := float64(prof.Engagement) / 15.0
	qLower := strings.ToLower(question)
	for _, interest := range prof.Interests {
		if strings.Contains(qLower, strings.ToLower(interest)) {
			prob += 0.3
			break
		}
	}
	if prob > 0.95 {
		prob = 0.95
	}
	return prob
}

const promptCrossVote = `A reviewer panel has each written one question about a chapter.
Simulate the panel voting on which questions matter most.

Panelists and their questions (1-based indices):
%s

Each panelist casts exactly 2 votes among the questions above and may NOT
vote for their own question. Output one line per panelist, nothing else:
<panelist name>: <index>, <index>`

// CrossVote runs the panel-mediated vote: one synthesis call in which every
// profile casts exactly 2 votes, self-votes disallowed. Malformed lines,
// out-of-range indices and self-votes are discarded without aborting the
// round.
func (p *Panel) CrossVote(ctx context.Context, profiles []Profile, questions []RankedQuestion) []RankedQuestion {
	out := append([]RankedQuestion(nil), questions...)
	if len(out) == 0 {
		return out
	}
	ctx = llm.WithPhase(ctx, "answer")

	var listing strings.Builder
	for i, q := range out {
		owner := profileName(profiles, q.SourceProfileID)
		fmt.Fprintf(&listing, "%d. [%s] %s\n", i+1, owner, q.Text)
	}
	raw, err := p.LLM.GenerateText(ctx, fmt.Sprintf(promptCrossVote, listing.String()), nil)
	if err != nil {
		log.Printf("panel: cross-vote call failed, keeping generation-order ranking: %v", err)
		return out
	}

	byName := make(map[string]Profile, len(profiles))
	for _, prof := range profiles {
		byName[strings.ToLower(prof.Name)] = prof
	}
	for _, vote := range textparse.VoteLines(raw) {
		voter, ok := byName[strings.ToLower(vote.Voter)]
		if !ok {
			continue
		}
		for _, idx := range vote.Indices {
			if idx < 1 || idx > len(out) {
				continue
			}
			if out[idx-1].SourceProfileID == voter.ID {
				continue // self-votes are disallowed
			}
			out[idx-1].Votes++
		}
	}
	return out
}

// Rank sorts by vote count descending, ties preserving original generation
// order, and returns the top 3 as forwarded feedback.
func Rank(questions []RankedQuestion) []RankedQuestion {
	out := append([]RankedQuestion(nil), questions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Votes > out[j].Votes })
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// Critique runs the full per-unit critique round: profile selection, one
// question per profile, panel-mediated cross-vote, top-3 ranking. The round
// always yields at least 3 questions.
func (p *Panel) Critique(ctx context.Context, topic, unitText string, profileCount int) []RankedQuestion {
	if profileCount <= 0 {
		profileCount = 5
	}
	profiles := SelectProfiles(p.rng, topic, profileCount)

	var questions []RankedQuestion
	for _, prof := range profiles {
		qs := p.GenerateQuestions(ctx, prof, unitText, 1)
		if len(qs) == 0 {
			continue
		}
		questions = append(questions, RankedQuestion{Text: qs[0], SourceProfileID: prof.ID})
	}
	for i := 0; len(questions) < 3 && i < len(fallbackQuestions); i++ {
		questions = append(questions, RankedQuestion{Text: fallbackQuestions[i], SourceProfileID: "fallback"})
	}

	return Rank(p.CrossVote(ctx, profiles, questions))
}

func profileName(profiles []Profile, id string) string {
	for _, p := range profiles {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}
