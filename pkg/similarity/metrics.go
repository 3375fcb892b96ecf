package similarity

import "strings"

// Levenshtein returns the case-insensitive edit distance between a and b,
// counting insertions, deletions and substitutions of runes at unit cost.
func Levenshtein(a, b string) int {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Single-row DP
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// EditSimilarity converts the edit distance into a similarity in [0, 1].
// Two empty strings are identical.
func EditSimilarity(a, b string) float64 {
	la := len([]rune(strings.ToLower(a)))
	lb := len([]rune(strings.ToLower(b)))
	maxLen := max(la, lb)
	if maxLen == 0 {
		return 1.0
	}
	return float64(maxLen-Levenshtein(a, b)) / float64(maxLen)
}

// KeywordSimilarity is the Jaccard similarity of the keyword sets of a and b.
func KeywordSimilarity(a, b string, stop StopWords) float64 {
	return JaccardSimilarity(KeywordSet(a, stop), KeywordSet(b, stop))
}

// JaccardSimilarity calculates |A ∩ B| / |A ∪ B|.
// Returns 0 when the union is empty.
func JaccardSimilarity(set1, set2 map[string]bool) float64 {
	intersection := 0
	for term := range set1 {
		if set2[term] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// SharedKeywords lists the keywords present in both a and b, in order of first
// appearance in a.
func SharedKeywords(a, b string, stop StopWords) []string {
	other := KeywordSet(b, stop)
	seen := make(map[string]bool)
	var shared []string
	for _, tok := range Normalize(a, stop) {
		if other[tok] && !seen[tok] {
			seen[tok] = true
			shared = append(shared, tok)
		}
	}
	return shared
}
