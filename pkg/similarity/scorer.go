package similarity

import (
	"fmt"
	"strings"

	"github.com/thebtf/retroboard/pkg/models"
)

// Weights of the combined algorithm. Keyword overlap is favoured over surface
// character similarity.
const (
	EditWeight    = 0.4
	KeywordWeight = 0.6
)

// ParseAlgorithm validates an algorithm name. The empty string selects the default.
func ParseAlgorithm(s string) (models.SimilarityAlgorithm, error) {
	switch a := models.SimilarityAlgorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return models.AlgorithmCombined, nil
	case models.AlgorithmLevenshtein, models.AlgorithmJaccard, models.AlgorithmKeyword, models.AlgorithmCombined:
		return a, nil
	default:
		return "", fmt.Errorf("unknown similarity algorithm %q", s)
	}
}

// Score rates how similar two cards are, in [0, 1].
// A nil card is treated as empty content. Unknown algorithms fall back to combined.
// Columns are not considered; callers restrict comparisons to one column.
func Score(a, b *models.Card, algorithm models.SimilarityAlgorithm, stop StopWords) float64 {
	return ScoreText(content(a), content(b), algorithm, stop)
}

// ScoreText is Score over raw strings.
func ScoreText(a, b string, algorithm models.SimilarityAlgorithm, stop StopWords) float64 {
	var s float64
	switch algorithm {
	case models.AlgorithmLevenshtein:
		s = EditSimilarity(a, b)
	case models.AlgorithmJaccard, models.AlgorithmKeyword:
		s = KeywordSimilarity(a, b, stop)
	default:
		s = EditWeight*EditSimilarity(a, b) + KeywordWeight*KeywordSimilarity(a, b, stop)
	}
	return clamp01(s)
}

func content(c *models.Card) string {
	if c == nil {
		return ""
	}
	return c.Content
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
