// Package query implements recall query normalization and intent
// classification: stop-word stripping with identifier preservation, mode
// classification, and budget suggestion (spec.md section 4.4).
package query

import (
	"regexp"
	"strings"
)

// frStopWords and enStopWords are curated stop-word lists (articles,
// prepositions) plus question words, combined into one case-insensitive
// strip set.
var (
	frStopWords = set(
		"le", "la", "les", "un", "une", "des", "du", "de", "et", "ou",
		"est", "sont", "dans", "sur", "avec", "pour", "par", "au", "aux",
		"ce", "cette", "ces", "il", "elle", "qui", "que", "quoi", "dont",
	)
	enStopWords = set(
		"the", "a", "an", "of", "in", "on", "at", "to", "for", "with",
		"by", "is", "are", "was", "were", "be", "been", "and", "or",
		"this", "that", "these", "those", "it", "its",
	)
	questionWords = set(
		"how", "where", "what", "when", "why", "who", "which",
		"comment", "où", "quoi", "quand", "pourquoi", "qui", "quel", "quelle",
	)
	allStopWords = union(frStopWords, enStopWords, questionWords)
)

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func union(sets ...map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for _, s := range sets {
		for k := range s {
			out[k] = true
		}
	}
	return out
}

var (
	camelRe = regexp.MustCompile(`^[a-z0-9]+[A-Z][a-zA-Z0-9]*$`)
	snakeRe = regexp.MustCompile(`_`)
	upperRe = regexp.MustCompile(`^[A-Z0-9]{2,}$`)
	dottedRe = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)+$`)
)

// isIdentifier reports whether word looks like a code identifier that
// should survive stop-word stripping verbatim: mixed-case with internal
// capitals, underscore-containing, all-upper (len>=2), or a dotted path.
func isIdentifier(word string) bool {
	if camelRe.MatchString(word) {
		return true
	}
	if snakeRe.MatchString(word) && word != "_" {
		return true
	}
	if upperRe.MatchString(word) {
		return true
	}
	if dottedRe.MatchString(word) {
		return true
	}
	return false
}

// Normalize strips stop words from raw while preserving identifier-shaped
// tokens verbatim. Diacritics are left intact; the FTS tokenizer handles
// folding. Never returns an empty string for non-empty input — if
// stripping would empty the query, the original is returned unstripped.
func Normalize(raw string) string {
	fields := strings.Fields(raw)
	kept := make([]string, 0, len(fields))
	for _, w := range fields {
		if isIdentifier(w) {
			kept = append(kept, w)
			continue
		}
		if allStopWords[strings.ToLower(w)] {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return raw
	}
	return strings.Join(kept, " ")
}

// Mode is the classified user intent.
type Mode string

const (
	ModeExploration Mode = "exploration"
	ModeModification Mode = "modification"
)

var (
	modificationVerbs = set(
		"add", "replace", "refactor", "fix", "create", "remove", "delete",
		"rename", "update", "change", "implement", "write", "modify",
		"ajouter", "remplacer", "corriger", "créer", "supprimer", "renommer",
		"modifier", "implémenter",
	)
	explorationWords = set(
		"how", "where", "what", "explain", "find", "show", "describe",
		"list", "why", "when", "who", "which",
		"comment", "où", "expliquer", "trouver", "montrer", "décrire",
	)
)

// ClassifyMode returns the first verb/word in prompt that matches either
// curated list; modification takes priority when both match the same
// leading token. Unmatched or tied cases resolve to exploration.
func ClassifyMode(prompt string) Mode {
	for _, w := range strings.Fields(strings.ToLower(prompt)) {
		w = strings.Trim(w, ".,!?;:")
		if modificationVerbs[w] {
			return ModeModification
		}
		if explorationWords[w] {
			return ModeExploration
		}
	}
	return ModeExploration
}

// SuggestBudget returns a piecewise-constant token budget based on the raw
// character length of the question, per spec.md section 4.4.
func SuggestBudget(questionChars int) int {
	switch {
	case questionChars < 80:
		return 600
	case questionChars < 200:
		return 800
	case questionChars < 400:
		return 1200
	default:
		return 1500
	}
}
