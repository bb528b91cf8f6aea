// Package similarity implements the two stdlib-adjacent text comparison
// measures the loop controller uses for convergence and cycle detection:
// normalized Jaccard over token sets, and a longest-common-subsequence
// ratio. The two scores are combined by simple (unweighted) average, per
// spec.md section 4.3.
package similarity

import (
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var wsRe = regexp.MustCompile(`\s+`)

// asciiPunctuation mirrors Python's string.punctuation.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// punctTable strips ASCII punctuation, mirroring the original's
// str.maketrans("", "", string.punctuation).
var punctTable = func() *strings.Replacer {
	pairs := make([]string, 0, len(asciiPunctuation)*2)
	for _, r := range asciiPunctuation {
		pairs = append(pairs, string(r), "")
	}
	return strings.NewReplacer(pairs...)
}()

// Normalize lowercases, strips punctuation, and collapses whitespace.
// Returns "" for empty/whitespace-only input.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = punctTable.Replace(s)
	s = wsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokenize splits already-normalized text into word tokens.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Fields(text)
}

// Jaccard computes token-level Jaccard similarity. Returns 1.0 if both
// inputs are empty (vacuous similarity), 0.0 if exactly one is empty.
func Jaccard(a, b string) float64 {
	setA := toSet(Tokenize(Normalize(a)))
	setB := toSet(Tokenize(Normalize(b)))

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	inter := 0
	for k := range setA {
		if setB[k] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func toSet(tokens []string) map[string]bool {
	m := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		m[t] = true
	}
	return m
}

// SequenceRatio computes a character-level similarity ratio in [0,1] via a
// longest-common-subsequence-based diff, the Go analogue of Python's
// difflib.SequenceMatcher.ratio() that the original implementation used.
// Returns 1.0 if both inputs are empty, 0.0 if exactly one is.
func SequenceRatio(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" && nb == "" {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(na, nb, false)

	matches := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			matches += len(d.Text)
		}
	}
	total := len(na) + len(nb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matches) / float64(total)
}

// Similarity is the simple average of Jaccard and SequenceRatio, per
// spec.md section 4.3 ("combined by simple average").
func Similarity(a, b string) float64 {
	return (Jaccard(a, b) + SequenceRatio(a, b)) / 2.0
}

// IsFixedPoint reports whether a and b are similar enough to declare
// convergence.
func IsFixedPoint(a, b string, threshold float64) bool {
	return Similarity(a, b) >= threshold
}

// IsQueryCycle detects whether query repeats, or is too similar to, a prior
// query in history. Empty/whitespace-only queries are always cycles.
func IsQueryCycle(query string, history []string, threshold float64) bool {
	if strings.TrimSpace(query) == "" {
		return true
	}
	normQuery := Normalize(query)
	if normQuery == "" {
		return true
	}
	for _, prev := range history {
		if Normalize(prev) == normQuery {
			return true
		}
	}
	if len(history) > 0 {
		if Similarity(query, history[len(history)-1]) >= threshold {
			return true
		}
	}
	return false
}
