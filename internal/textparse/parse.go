// Package textparse turns loosely structured model output into data.
// Every function is pure and total: malformed input yields an empty result,
// never an error, so callers can treat parsing as control flow without
// handling failures inline.
package textparse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberedRe = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.+)$`)
	voteRe     = regexp.MustCompile(`^\s*([^:]+):\s*(\d+)\s*,\s*(\d+)\s*$`)
)

// NumberedList extracts the items of a numbered list ("1. text" / "2) text").
// Lines that do not match are discarded.
func NumberedList(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		m := numberedRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(m[2])
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Vote is one parsed ballot line: a voter name and the 1-based question
// indices it voted for.
type Vote struct {
	Voter   string
	Indices []int
}

// VoteLines parses ballot lines of the form "<voter>: <idx>, <idx>".
// Lines that do not match the shape are discarded; index range checks are
// the caller's concern.
func VoteLines(text string) []Vote {
	var votes []Vote
	for _, line := range strings.Split(text, "\n") {
		m := voteRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		a, errA := strconv.Atoi(m[2])
		b, errB := strconv.Atoi(m[3])
		if errA != nil || errB != nil {
			continue
		}
		votes = append(votes, Vote{
			Voter:   strings.TrimSpace(m[1]),
			Indices: []int{a, b},
		})
	}
	return votes
}

// TruncateRunes caps s at n runes. Byte-index truncation would split
// multibyte characters.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// WordCount counts whitespace-delimited words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

var headingRe = regexp.MustCompile(`^#{1,6}\s+\S`)

// HasHeadings reports whether the text contains at least one markdown
// section heading.
func HasHeadings(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		if headingRe.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

// BulletDensity returns the fraction of non-empty lines that are bullet
// items. Zero for empty text.
func BulletDensity(s string) float64 {
	bullets, total := 0, 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		total++
		if isBulletLine(line) {
			bullets++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(bullets) / float64(total)
}

func isBulletLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") || strings.HasPrefix(t, "• ")
}
