package search

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// FuzzyScore rates how well a candidate phrase matches the query on a 0-100
// scale. It blends a whole-string edit ratio, a best-window partial ratio,
// and a token-sort ratio, so both transposed words and phrases embedded in
// longer queries score high.
func FuzzyScore(query, candidate string) float64 {
	q := normalizeText(query)
	c := normalizeText(candidate)
	if q == "" || c == "" {
		return 0
	}
	if q == c {
		return 100
	}

	score := levenshteinRatio(q, c)

	if partial := partialRatio(q, c); 0.9*partial > score {
		score = 0.9 * partial
	}

	qSorted := sortedTokenString(q)
	cSorted := sortedTokenString(c)
	if tokenSort := levenshteinRatio(qSorted, cSorted); tokenSort > score {
		score = tokenSort
	}

	return score
}

func normalizeText(s string) string {
	return strings.Join(tokenize(s), " ")
}

// tokenize lowercases and splits on word boundaries. Tokenization goes
// through prose; a document build failure falls back to whitespace fields.
func tokenize(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}

	doc, err := prose.NewDocument(s,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return strings.Fields(s)
	}

	var tokens []string
	for _, tok := range doc.Tokens() {
		if isWordToken(tok.Text) {
			tokens = append(tokens, tok.Text)
		}
	}
	if len(tokens) == 0 {
		return strings.Fields(s)
	}
	return tokens
}

func isWordToken(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127 {
			return true
		}
	}
	return false
}

func sortedTokenString(s string) string {
	tokens := strings.Fields(s)
	// Insertion sort keeps this allocation-light for the short phrases here.
	for i := 1; i < len(tokens); i++ {
		for j := i; j > 0 && tokens[j] < tokens[j-1]; j-- {
			tokens[j], tokens[j-1] = tokens[j-1], tokens[j]
		}
	}
	return strings.Join(tokens, " ")
}

// levenshteinRatio is 100 * (1 - distance/longerLength).
func levenshteinRatio(a, b string) float64 {
	if a == b {
		return 100
	}
	ra, rb := []rune(a), []rune(b)
	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	if longer == 0 {
		return 100
	}
	return 100 * (1 - float64(levenshtein(ra, rb))/float64(longer))
}

// partialRatio is the best edit ratio of the shorter string against any
// same-length window of the longer one.
func partialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return 0
	}
	if len(ra) == len(rb) {
		return levenshteinRatio(string(ra), string(rb))
	}

	best := 0.0
	for start := 0; start+len(ra) <= len(rb); start++ {
		window := rb[start : start+len(ra)]
		if r := 100 * (1 - float64(levenshtein(ra, window))/float64(len(ra))); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
