package models

// SimilarityAlgorithm selects how two cards are scored against each other.
type SimilarityAlgorithm string

const (
	// AlgorithmLevenshtein scores by normalized edit distance only.
	AlgorithmLevenshtein SimilarityAlgorithm = "levenshtein"
	// AlgorithmJaccard scores by keyword-set overlap only.
	AlgorithmJaccard SimilarityAlgorithm = "jaccard"
	// AlgorithmKeyword is an alias of AlgorithmJaccard.
	AlgorithmKeyword SimilarityAlgorithm = "keyword"
	// AlgorithmCombined weighs edit distance and keyword overlap together.
	AlgorithmCombined SimilarityAlgorithm = "combined"
)

// GroupSuggestion is a proposed group of similar, currently ungrouped cards.
// It is produced on demand and never persisted.
type GroupSuggestion struct {
	ID         string              `json:"id"`
	Reason     string              `json:"reason"`
	Algorithm  SimilarityAlgorithm `json:"algorithm"`
	CardIDs    []string            `json:"card_ids"`
	Keywords   []string            `json:"keywords,omitempty"`
	Similarity float64             `json:"similarity"`
}

// HeadCardID is the card that becomes the group head when the suggestion is accepted.
func (s *GroupSuggestion) HeadCardID() string {
	if len(s.CardIDs) == 0 {
		return ""
	}
	return s.CardIDs[0]
}

// MemberCardIDs are the cards that become members when the suggestion is accepted.
func (s *GroupSuggestion) MemberCardIDs() []string {
	if len(s.CardIDs) < 2 {
		return nil
	}
	return append([]string(nil), s.CardIDs[1:]...)
}
