package memory

import (
	"math"
	"strings"
)

const (
	// ScanLimit bounds how many of the most recent conversations are scored.
	ScanLimit = 1000

	// TopK is the maximum number of context blocks returned.
	TopK = 5

	rawContentWeight = 5
	summaryWeight    = 3
)

// normalizeQuery lowercases and trims the query and splits it on single
// spaces. Empty tokens produced by repeated spaces are dropped; repeated
// words are kept and count once per occurrence.
func normalizeQuery(raw string) (string, []string) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", nil
	}

	parts := strings.Split(normalized, " ")
	tokens := parts[:0]
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return normalized, tokens
}

// keywordScore counts non-overlapping substring occurrences of every token,
// weighting hits in the raw content above hits in the summary.
func keywordScore(tokens []string, rawContent, summary string) int {
	raw := strings.ToLower(rawContent)
	sum := strings.ToLower(summary)

	var rawHits, summaryHits int
	for _, tok := range tokens {
		rawHits += strings.Count(raw, tok)
		if sum != "" {
			summaryHits += strings.Count(sum, tok)
		}
	}
	return rawContentWeight*rawHits + summaryWeight*summaryHits
}

// recencyBoost decays linearly with position in newest-first order.
func recencyBoost(index int) float64 {
	return math.Max(0, float64(ScanLimit-index)/ScanLimit)
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
