package textparse

import (
	"strings"
	"testing"
)

func TestNumberedList(t *testing.T) {
	text := `Here are the questions:
1. First question?
2) Second question?
not a list line
  3.   Third, indented
4.
`
	got := NumberedList(text)
	want := []string{"First question?", "Second question?", "Third, indented"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("item %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestNumberedListEmptyInput(t *testing.T) {
	if got := NumberedList("no list here at all"); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestVoteLines(t *testing.T) {
	text := `The Skeptic: 2, 3
The Editor: 1,4
garbage line
Missing Second: 2
Also Garbage: one, two`
	got := VoteLines(text)
	if len(got) != 2 {
		t.Fatalf("got %d votes, want 2: %v", len(got), got)
	}
	if got[0].Voter != "The Skeptic" || got[0].Indices[0] != 2 || got[0].Indices[1] != 3 {
		t.Fatalf("first vote %+v", got[0])
	}
	if got[1].Voter != "The Editor" || got[1].Indices[1] != 4 {
		t.Fatalf("second vote %+v", got[1])
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("héllo wörld", 5); got != "héllo" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateRunes("short", 100); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateRunes("anything", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount("  one two\nthree\t four "); got != 4 {
		t.Fatalf("got %d", got)
	}
	if got := WordCount(""); got != 0 {
		t.Fatalf("got %d", got)
	}
}

func TestHasHeadings(t *testing.T) {
	if !HasHeadings("intro\n\n## Section One\n\nbody") {
		t.Fatalf("expected heading to be found")
	}
	if HasHeadings("no headings\n#hashtag without space\nplain") {
		t.Fatalf("hashtag is not a heading")
	}
}

func TestBulletDensity(t *testing.T) {
	text := `prose line
- bullet one
- bullet two
prose again`
	if got := BulletDensity(text); got != 0.5 {
		t.Fatalf("got %v want 0.5", got)
	}
	if got := BulletDensity(""); got != 0 {
		t.Fatalf("got %v want 0", got)
	}
}

func TestCleanupDraftDropsSeparatorsAndLoneBullets(t *testing.T) {
	text := `First paragraph.
---
- a stray bullet mid prose
More prose.

- real list item one
- real list item two
`
	got := CleanupDraft(text)
	if strings.Contains(got, "---") {
		t.Fatalf("separator survived: %q", got)
	}
	if strings.Contains(got, "- a stray bullet") {
		t.Fatalf("lone bullet kept its marker: %q", got)
	}
	if !strings.Contains(got, "a stray bullet mid prose") {
		t.Fatalf("lone bullet text lost: %q", got)
	}
	if !strings.Contains(got, "- real list item one\n- real list item two") {
		t.Fatalf("real list mangled: %q", got)
	}
}

func TestCleanupDraftHeadingSpacing(t *testing.T) {
	text := "intro\n##Crowded Heading\nbody right after"
	got := CleanupDraft(text)
	if !strings.Contains(got, "intro\n\n## Crowded Heading\n\nbody right after") {
		t.Fatalf("heading spacing wrong: %q", got)
	}
}

func TestCleanupDraftCollapsesBlankRuns(t *testing.T) {
	text := "para one\n\n\n\n\n\npara two"
	got := CleanupDraft(text)
	if strings.Contains(got, "\n\n\n\n") {
		t.Fatalf("blank run survived: %q", got)
	}
	if !strings.Contains(got, "para one\n\n\npara two") {
		t.Fatalf("run not collapsed to two blank lines: %q", got)
	}
}
