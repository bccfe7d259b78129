package textparse

import (
	"regexp"
	"strings"
)

var (
	separatorRe    = regexp.MustCompile(`^\s*([-=_*~•]){3,}\s*$`)
	headingMarksRe = regexp.MustCompile(`^(#{1,6})\s*(.*)$`)
)

// CleanupDraft normalizes raw model prose deterministically:
//   - strips stray bullet markers outside recognized lists (a recognized
//     list is two or more adjacent bullet lines),
//   - drops decorative separator lines,
//   - collapses runs of 4+ blank lines to 2,
//   - normalizes heading spacing (single space after the #s, blank line
//     before and after the heading).
func CleanupDraft(text string) string {
	lines := strings.Split(text, "\n")

	// Pass 1: drop separators, unwrap lone bullets, normalize heading marks.
	cleaned := make([]string, 0, len(lines))
	for i, line := range lines {
		if separatorRe.MatchString(line) {
			continue
		}
		if isBulletLine(line) && !partOfList(lines, i) {
			cleaned = append(cleaned, strings.TrimSpace(trimBulletMarker(line)))
			continue
		}
		if m := headingMarksRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil && strings.TrimSpace(m[2]) != "" {
			cleaned = append(cleaned, m[1]+" "+strings.TrimSpace(m[2]))
			continue
		}
		cleaned = append(cleaned, line)
	}

	// Pass 2: blank-line discipline around headings and blank-run collapse.
	var out []string
	blanks := 0
	for _, line := range cleaned {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blanks++
			continue
		}
		if headingMarksRe.MatchString(trimmed) {
			if len(out) > 0 {
				out = append(out, "")
			}
			out = append(out, trimmed, "")
			blanks = 0
			continue
		}
		if blanks > 0 && len(out) > 0 {
			if blanks >= 4 {
				out = append(out, "", "")
			} else {
				for i := 0; i < blanks && i < 3; i++ {
					out = append(out, "")
				}
			}
		}
		blanks = 0
		out = append(out, line)
	}

	result := strings.Join(out, "\n")
	// Heading normalization can double up blank lines; squeeze them.
	for strings.Contains(result, "\n\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n\n", "\n\n\n")
	}
	return strings.TrimSpace(result) + "\n"
}

func partOfList(lines []string, i int) bool {
	if i > 0 && isBulletLine(lines[i-1]) {
		return true
	}
	if i+1 < len(lines) && isBulletLine(lines[i+1]) {
		return true
	}
	return false
}

func trimBulletMarker(line string) string {
	t := strings.TrimSpace(line)
	for _, marker := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(t, marker) {
			return strings.TrimPrefix(t, marker)
		}
	}
	return t
}
