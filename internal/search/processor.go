package search

import "strings"

// DefaultTopK is used when a query asks for zero or fewer results.
const DefaultTopK = 5

// normalizeQuery collapses runs of whitespace and trims the query text.
func normalizeQuery(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// candidateDepth is how deep each ranker goes for a query returning topK results.
func candidateDepth(depth, topK int) int {
	if depth < topK {
		return topK
	}
	return depth
}
