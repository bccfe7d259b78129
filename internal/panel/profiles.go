package panel

import (
	"math/rand"
	"strings"
)

// Profile is one reviewer viewpoint. Immutable once selected for a round.
type Profile struct {
	ID               string
	Name             string
	Focus            []string
	QuestioningStyle string
	Engagement       int // 0-10
	Interests        []string
}

// DefaultProfiles is the built-in reviewer panel. Niche-specific panels can
// be generated per book; these cover the common angles.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			ID:               "skeptic",
			Name:             "The Skeptic",
			Focus:            []string{"evidence", "logical gaps", "overclaiming"},
			QuestioningStyle: "challenges every unsupported claim",
			Engagement:       8,
			Interests:        []string{"evidence", "data", "proof", "study"},
		},
		{
			ID:               "practitioner",
			Name:             "The Practitioner",
			Focus:            []string{"actionability", "real-world fit"},
			QuestioningStyle: "asks how advice survives contact with reality",
			Engagement:       7,
			Interests:        []string{"example", "step", "apply", "practice"},
		},
		{
			ID:               "newcomer",
			Name:             "The Newcomer",
			Focus:            []string{"jargon", "assumed knowledge"},
			QuestioningStyle: "flags everything a first-time reader would trip on",
			Engagement:       6,
			Interests:        []string{"definition", "explain", "mean", "concept"},
		},
		{
			ID:               "editor",
			Name:             "The Structural Editor",
			Focus:            []string{"pacing", "transitions", "repetition"},
			QuestioningStyle: "probes the chapter's architecture",
			Engagement:       9,
			Interests:        []string{"structure", "section", "flow", "transition"},
		},
		{
			ID:               "scholar",
			Name:             "The Scholar",
			Focus:            []string{"sources", "context", "nuance"},
			QuestioningStyle: "wants the intellectual lineage of each idea",
			Engagement:       5,
			Interests:        []string{"research", "history", "source", "theory"},
		},
		{
			ID:               "storyteller",
			Name:             "The Storyteller",
			Focus:            []string{"narrative", "emotional arc"},
			QuestioningStyle: "asks where the human story went",
			Engagement:       7,
			Interests:        []string{"story", "anecdote", "character", "scene"},
		},
	}
}

// SelectProfiles picks count distinct profiles, weighting toward profiles
// whose interests overlap the topic. Never repeats a profile within a round.
func SelectProfiles(rng *rand.Rand, topic string, count int) []Profile {
	pool := DefaultProfiles()
	if count <= 0 || count > len(pool) {
		count = len(pool)
	}
	topicLower := strings.ToLower(topic)

	// Topic-relevant profiles first, in stable order, then shuffle the rest.
	var matched, rest []Profile
	for _, p := range pool {
		if profileMatchesTopic(p, topicLower) {
			matched = append(matched, p)
		} else {
			rest = append(rest, p)
		}
	}
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	ordered := append(matched, rest...)
	return ordered[:count]
}

func profileMatchesTopic(p Profile, topicLower string) bool {
	if topicLower == "" {
		return false
	}
	for _, interest := range p.Interests {
		if strings.Contains(topicLower, strings.ToLower(interest)) {
			return true
		}
	}
	return false
}
