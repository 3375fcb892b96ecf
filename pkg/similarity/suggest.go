package similarity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/retroboard/pkg/models"
)

// Default suggestion parameters.
const (
	DefaultThreshold    = 0.6
	DefaultMinGroupSize = 2
	DefaultMaxGroupSize = 8

	// maxReasonKeywords caps the themes listed in a suggestion reason.
	maxReasonKeywords = 3
)

// Config controls FindSuggestions.
// A nil ExcludeKeywords selects DefaultStopWordList; a non-nil slice replaces it.
type Config struct {
	Algorithm       models.SimilarityAlgorithm `json:"algorithm" yaml:"algorithm"`
	Threshold       float64                    `json:"threshold" yaml:"threshold"`
	MinGroupSize    int                        `json:"min_group_size" yaml:"min_group_size"`
	MaxGroupSize    int                        `json:"max_group_size" yaml:"max_group_size"`
	ExcludeKeywords []string                   `json:"exclude_keywords,omitempty" yaml:"exclude_keywords,omitempty"`
}

// DefaultConfig returns the default suggestion configuration.
func DefaultConfig() Config {
	return Config{
		Algorithm:    models.AlgorithmCombined,
		Threshold:    DefaultThreshold,
		MinGroupSize: DefaultMinGroupSize,
		MaxGroupSize: DefaultMaxGroupSize,
	}
}

// Validate reports out-of-range values that FindSuggestions would otherwise normalize.
func (c Config) Validate() error {
	var errs []error
	if c.Algorithm != "" {
		if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %v out of range [0,1]", c.Threshold))
	}
	if c.MinGroupSize < 2 {
		errs = append(errs, fmt.Errorf("min group size %d must be at least 2", c.MinGroupSize))
	}
	if c.MaxGroupSize < c.MinGroupSize {
		errs = append(errs, fmt.Errorf("max group size %d smaller than min group size %d", c.MaxGroupSize, c.MinGroupSize))
	}
	return errors.Join(errs...)
}

// normalized returns a copy with every field in range.
func (c Config) normalized() Config {
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil || c.Algorithm == "" {
		c.Algorithm = models.AlgorithmCombined
	}
	c.Threshold = clamp01(c.Threshold)
	if c.MinGroupSize < 2 {
		c.MinGroupSize = 2
	}
	if c.MaxGroupSize < c.MinGroupSize {
		c.MaxGroupSize = c.MinGroupSize
	}
	return c
}

// StopWords returns the exclusion set the config selects.
func (c Config) StopWords() StopWords {
	if c.ExcludeKeywords == nil {
		return DefaultStopWords()
	}
	return NewStopWords(c.ExcludeKeywords...)
}

// cluster is a suggestion together with the arena index of its anchor.
type cluster struct {
	anchor     int
	suggestion *models.GroupSuggestion
}

// FindSuggestions proposes groups of similar, ungrouped cards.
//
// Cards are ordered by creation time. Each anchor collects later cards of the same
// column whose score reaches the threshold, up to MaxGroupSize. Clusters reaching
// MinGroupSize are emitted and their cards are not considered again in this run.
// The result is sorted by similarity, highest first, ties kept in discovery order.
// The input slice is not modified.
func FindSuggestions(cards []*models.Card, cfg Config) []*models.GroupSuggestion {
	cfg = cfg.normalized()
	stop := cfg.StopWords()

	arena := make([]*models.Card, 0, len(cards))
	for _, c := range cards {
		if c != nil {
			arena = append(arena, c)
		}
	}
	sort.SliceStable(arena, func(i, j int) bool {
		return arena[i].CreatedAtEpoch < arena[j].CreatedAtEpoch
	})

	// Columns never mix, so each one is clustered on its own.
	byColumn := make(map[models.Column][]int)
	var columns []models.Column
	for i, c := range arena {
		if c.IsGrouped() {
			continue
		}
		if _, ok := byColumn[c.Column]; !ok {
			columns = append(columns, c.Column)
		}
		byColumn[c.Column] = append(byColumn[c.Column], i)
	}

	results := make([][]cluster, len(columns))
	var g errgroup.Group
	for ci, col := range columns {
		g.Go(func() error {
			results[ci] = clusterColumn(arena, byColumn[col], cfg, stop)
			return nil
		})
	}
	_ = g.Wait()

	var merged []cluster
	for _, r := range results {
		merged = append(merged, r...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].anchor < merged[j].anchor
	})

	suggestions := make([]*models.GroupSuggestion, len(merged))
	for i, m := range merged {
		suggestions[i] = m.suggestion
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Similarity > suggestions[j].Similarity
	})
	return suggestions
}

// clusterColumn runs the greedy forward scan over the arena indexes of one column.
func clusterColumn(arena []*models.Card, idx []int, cfg Config, stop StopWords) []cluster {
	processed := make([]bool, len(idx))
	var out []cluster

	for i := range idx {
		if processed[i] {
			continue
		}
		anchor := arena[idx[i]]
		members := []int{i}

		for j := i + 1; j < len(idx) && len(members) < cfg.MaxGroupSize; j++ {
			if processed[j] {
				continue
			}
			if Score(anchor, arena[idx[j]], cfg.Algorithm, stop) >= cfg.Threshold {
				members = append(members, j)
			}
		}

		if len(members) < cfg.MinGroupSize {
			continue
		}

		group := make([]*models.Card, len(members))
		for k, m := range members {
			processed[m] = true
			group[k] = arena[idx[m]]
		}
		out = append(out, cluster{
			anchor:     idx[i],
			suggestion: buildSuggestion(group, cfg.Algorithm, stop),
		})
	}
	return out
}

func buildSuggestion(group []*models.Card, algorithm models.SimilarityAlgorithm, stop StopWords) *models.GroupSuggestion {
	ids := make([]string, len(group))
	for i, c := range group {
		ids[i] = c.ID
	}

	s := &models.GroupSuggestion{
		ID:         "suggestion-" + ulid.MustNew(ulid.Now(), rand.Reader).String(),
		Algorithm:  algorithm,
		CardIDs:    ids,
		Similarity: meanPairwise(group, algorithm, stop),
	}

	shared := SharedKeywords(group[0].Content, group[1].Content, stop)
	if len(shared) > 0 {
		s.Keywords = shared
		s.Reason = "Common themes: " + strings.Join(shared[:min(len(shared), maxReasonKeywords)], ", ")
	} else {
		s.Reason = "Similar content detected"
	}
	return s
}

// meanPairwise averages the score over every unordered pair in the group.
func meanPairwise(group []*models.Card, algorithm models.SimilarityAlgorithm, stop StopWords) float64 {
	var sum float64
	pairs := 0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			sum += Score(group[i], group[j], algorithm, stop)
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}
