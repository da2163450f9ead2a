package council

import (
	"regexp"
	"strings"
)

// RankingMarker introduces the reviewer's final verdict. Matching is case-sensitive.
const RankingMarker = "FINAL RANKING:"

var (
	numberedLabelRe = regexp.MustCompile(`\d+\.\s*Response ([A-Z]+)`)
	bareLabelRe     = regexp.MustCompile(`Response ([A-Z]+)`)
)

// ParseRanking recovers the best-to-worst label order from a critique.
//
// After the marker, numbered items ("1. Response C") win. Without numbered
// items the bare labels of that section are used, and without the marker the
// bare labels of the whole text. Bare scans keep repeated mentions. The
// result is empty, never nil, when no label appears.
func ParseRanking(text string) []string {
	return parseRanking(text, 0)
}

// ParseRankingWithin is ParseRanking for a critique of the responses in
// labels: a label is read as at most as many letters as the longest assigned
// one, so "Response BUT" counts as "Response B" when only single letters
// were handed out.
func ParseRankingWithin(text string, labels LabelMap) []string {
	width := 0
	for label := range labels {
		width = max(width, len(strings.TrimPrefix(label, labelPrefix)))
	}
	return parseRanking(text, width)
}

// parseRanking clips label letters to width; zero means unbounded.
func parseRanking(text string, width int) []string {
	if section, ok := rankingSection(text); ok {
		if labels := findLabels(numberedLabelRe, section, width); len(labels) > 0 {
			return labels
		}
		return findLabels(bareLabelRe, section, width)
	}
	return findLabels(bareLabelRe, text, width)
}

// rankingSection returns the text between the first marker and the next one.
func rankingSection(text string) (string, bool) {
	_, after, found := strings.Cut(text, RankingMarker)
	if !found {
		return "", false
	}
	if section, _, more := strings.Cut(after, RankingMarker); more {
		return section, true
	}
	return after, true
}

func findLabels(re *regexp.Regexp, text string, width int) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	labels := make([]string, 0, len(matches))
	for _, m := range matches {
		letters := m[1]
		if width > 0 && len(letters) > width {
			letters = letters[:width]
		}
		labels = append(labels, labelPrefix+letters)
	}
	return labels
}
