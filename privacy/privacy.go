// Package privacy redacts personal names from report text before public
// display. It exposes two distinct tiers with different guarantees: strict
// redaction against a known-names list, which callers may rely on, and
// heuristic redaction based on capitalization, which is a weak secondary
// safeguard only.
package privacy

import (
	"regexp"
	"strings"
	"unicode"
)

// sentence-initial words and other capitalized tokens that are never names.
var stopwords = map[string]bool{
	"i": true, "a": true, "an": true, "the": true, "and": true, "but": true,
	"or": true, "so": true, "then": true, "they": true, "he": true,
	"she": true, "we": true, "it": true, "this": true, "that": true,
	"there": true, "when": true, "while": true, "after": true, "before": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
	"osha": true, "ppe": true,
}

var wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z'’-]*`)

// Placeholder returns the stable substitute for the i-th distinct name:
// "Individual A", "Individual B", ... then "Individual AA" and so on.
func Placeholder(i int) string {
	letters := ""
	n := i
	for {
		letters = string(rune('A'+n%26)) + letters
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return "Individual " + letters
}

// FilterKnownNames replaces every whole-word, case-insensitive occurrence of
// each known name with a stable placeholder assigned in the order the names
// appear in the list. This is the strict tier: only listed names are touched,
// and all of them are.
func FilterKnownNames(text string, names []string) string {
	out := text
	index := 0
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			continue
		}
		placeholder := Placeholder(index)
		index++
		out = re.ReplaceAllString(out, placeholder)
	}
	return out
}

// FilterHeuristicNames redacts tokens that look like personal names:
// capitalized, not sentence-initial, and not a known stopword. It both over-
// and under-redacts and must not be treated as a privacy guarantee; use
// FilterKnownNames whenever the involved parties are known.
func FilterHeuristicNames(text string) string {
	candidates := []string{}
	seen := map[string]bool{}

	for _, match := range wordRe.FindAllStringIndex(text, -1) {
		word := text[match[0]:match[1]]
		if !startsUpper(word) {
			continue
		}
		if stopwords[strings.ToLower(word)] {
			continue
		}
		if sentenceInitial(text, match[0]) {
			continue
		}
		key := strings.ToLower(word)
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, word)
	}

	return FilterKnownNames(text, candidates)
}

func startsUpper(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

// sentenceInitial reports whether the token starting at pos opens the text or
// follows a sentence terminator.
func sentenceInitial(text string, pos int) bool {
	for i := pos - 1; i >= 0; i-- {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '"' || c == '\'' || c == '(':
			continue
		case c == '.' || c == '!' || c == '?' || c == '\n':
			return true
		default:
			return false
		}
	}
	return true
}
