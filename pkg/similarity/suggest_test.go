package similarity

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/retroboard/pkg/models"
)

func card(id, content string, column models.Column, epoch int64) *models.Card {
	return &models.Card{
		ID:             id,
		Content:        content,
		Column:         column,
		CreatedAtEpoch: epoch,
	}
}

func suggestionsCfg(threshold float64) Config {
	cfg := DefaultConfig()
	cfg.Threshold = threshold
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, models.AlgorithmCombined, cfg.Algorithm)
	assert.Equal(t, 0.6, cfg.Threshold)
	assert.Equal(t, 2, cfg.MinGroupSize)
	assert.Equal(t, 8, cfg.MaxGroupSize)
	assert.Nil(t, cfg.ExcludeKeywords)
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.StopWords()["the"])
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Algorithm: "cosine", Threshold: 1.5, MinGroupSize: 1, MaxGroupSize: 0}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cosine")
	assert.Contains(t, err.Error(), "threshold")
	assert.Contains(t, err.Error(), "min group size")
	assert.Contains(t, err.Error(), "max group size")

	n := cfg.normalized()
	assert.Equal(t, models.AlgorithmCombined, n.Algorithm)
	assert.Equal(t, 1.0, n.Threshold)
	assert.Equal(t, 2, n.MinGroupSize)
	assert.Equal(t, 2, n.MaxGroupSize)
}

func TestConfig_ExcludeKeywordsReplacesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludeKeywords = []string{"Sprint"}
	stop := cfg.StopWords()
	assert.True(t, stop["sprint"])
	assert.False(t, stop["the"])

	cfg.ExcludeKeywords = []string{}
	assert.Empty(t, cfg.StopWords())
}

// Scores for this pair are 0.4*8/19 + 0.6*1/5 ≈ 0.288, so the scenario is exercised below the
// default threshold.
func TestFindSuggestions_NeedBetterTesting(t *testing.T) {
	cards := []*models.Card{
		card("a", "Need better testing", models.ColumnImprove, 1),
		card("b", "We need more tests", models.ColumnImprove, 2),
		card("c", "Good teamwork", models.ColumnImprove, 3),
	}

	got := FindSuggestions(cards, suggestionsCfg(0.25))
	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, []string{"a", "b"}, s.CardIDs)
	assert.Equal(t, models.AlgorithmCombined, s.Algorithm)
	assert.Equal(t, "Common themes: need", s.Reason)
	assert.Equal(t, []string{"need"}, s.Keywords)
	assert.InDelta(t, 0.4*8.0/19.0+0.6*0.2, s.Similarity, 0.0001)
	assert.True(t, strings.HasPrefix(s.ID, "suggestion-"))

	assert.Empty(t, FindSuggestions(cards, DefaultConfig()))
}

func TestFindSuggestions_IdenticalContent(t *testing.T) {
	cards := []*models.Card{
		card("a", "Standups run long", models.ColumnHindered, 1),
		card("b", "Standups run long", models.ColumnHindered, 2),
	}

	got := FindSuggestions(cards, suggestionsCfg(0.99))
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-9)
	assert.Equal(t, []string{"a", "b"}, got[0].CardIDs)
}

func TestFindSuggestions_DifferentColumns(t *testing.T) {
	cards := []*models.Card{
		card("a", "Standups run long", models.ColumnHindered, 1),
		card("b", "Standups run long", models.ColumnImprove, 2),
	}

	assert.Empty(t, FindSuggestions(cards, suggestionsCfg(0.1)))
}

func TestFindSuggestions_SkipsGroupedCards(t *testing.T) {
	grouped := card("b", "Standups run long", models.ColumnHindered, 2)
	grouped.GroupID = sql.NullString{String: "g1", Valid: true}
	cards := []*models.Card{
		card("a", "Standups run long", models.ColumnHindered, 1),
		grouped,
	}

	assert.Empty(t, FindSuggestions(cards, suggestionsCfg(0.5)))
}

func TestFindSuggestions_AnchorOnlyComparison(t *testing.T) {
	// b and c score only ≈0.50 against each other but both clear 0.6 against the anchor.
	cards := []*models.Card{
		card("a", "Slow CI pipeline builds", models.ColumnImprove, 1),
		card("b", "Slow CI pipeline builds again", models.ColumnImprove, 2),
		card("c", "Flaky CI pipeline builds", models.ColumnImprove, 3),
	}

	got := FindSuggestions(cards, suggestionsCfg(0.6))
	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, []string{"a", "b", "c"}, s.CardIDs)
	assert.Equal(t, "Common themes: slow, pipeline, builds", s.Reason)
	assert.Equal(t, []string{"slow", "pipeline", "builds"}, s.Keywords)

	stop := DefaultStopWords()
	want := (ScoreText(cards[0].Content, cards[1].Content, models.AlgorithmCombined, stop) +
		ScoreText(cards[0].Content, cards[2].Content, models.AlgorithmCombined, stop) +
		ScoreText(cards[1].Content, cards[2].Content, models.AlgorithmCombined, stop)) / 3
	assert.InDelta(t, want, s.Similarity, 1e-9)
}

func TestFindSuggestions_ForwardOnly(t *testing.T) {
	// The oldest card matches nothing; the later pair still forms a cluster anchored on b.
	cards := []*models.Card{
		card("c", "Great pairing sessions this sprint", models.ColumnHelped, 30),
		card("a", "Slow CI pipeline builds", models.ColumnHelped, 10),
		card("b", "Great pairing sessions", models.ColumnHelped, 20),
	}

	got := FindSuggestions(cards, suggestionsCfg(0.6))
	require.Len(t, got, 1)
	assert.Equal(t, []string{"b", "c"}, got[0].CardIDs)
	// Input order is untouched.
	assert.Equal(t, "c", cards[0].ID)
}

func TestFindSuggestions_MaxGroupSize(t *testing.T) {
	var cards []*models.Card
	for i := range 5 {
		cards = append(cards, card(fmt.Sprintf("c%d", i), "Retro actions never get done", models.ColumnImprove, int64(i)))
	}

	cfg := suggestionsCfg(0.9)
	cfg.MaxGroupSize = 2
	got := FindSuggestions(cards, cfg)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"c0", "c1"}, got[0].CardIDs)
	assert.Equal(t, []string{"c2", "c3"}, got[1].CardIDs)
}

func TestFindSuggestions_MinGroupSize(t *testing.T) {
	cards := []*models.Card{
		card("a", "Standups run long", models.ColumnHindered, 1),
		card("b", "Standups run long", models.ColumnHindered, 2),
	}

	cfg := suggestionsCfg(0.9)
	cfg.MinGroupSize = 3
	cfg.MaxGroupSize = 8
	assert.Empty(t, FindSuggestions(cards, cfg))
}

func TestFindSuggestions_NoSharedKeywords(t *testing.T) {
	cards := []*models.Card{
		card("a", "kitten", models.ColumnHelped, 1),
		card("b", "sitting", models.ColumnHelped, 2),
	}

	cfg := suggestionsCfg(0.5)
	cfg.Algorithm = models.AlgorithmLevenshtein
	got := FindSuggestions(cards, cfg)
	require.Len(t, got, 1)
	assert.Equal(t, "Similar content detected", got[0].Reason)
	assert.Nil(t, got[0].Keywords)
	assert.Equal(t, models.AlgorithmLevenshtein, got[0].Algorithm)
}

func TestFindSuggestions_EmptyInput(t *testing.T) {
	assert.Empty(t, FindSuggestions(nil, DefaultConfig()))
	assert.Empty(t, FindSuggestions([]*models.Card{nil}, DefaultConfig()))
}

func boardCorpus() []*models.Card {
	return []*models.Card{
		card("1", "Slow CI pipeline builds", models.ColumnImprove, 1),
		card("2", "Great pairing sessions", models.ColumnHelped, 2),
		card("3", "Slow CI pipeline builds again", models.ColumnImprove, 3),
		card("4", "Flaky CI pipeline builds", models.ColumnImprove, 4),
		card("5", "Great pairing sessions this sprint", models.ColumnHelped, 5),
		card("6", "Deploys are too slow", models.ColumnHindered, 6),
		card("7", "Deploys are too slow lately", models.ColumnHindered, 7),
		card("8", "Standups run long", models.ColumnHindered, 8),
		card("9", "Need better testing", models.ColumnImprove, 9),
		card("10", "We need more tests", models.ColumnImprove, 10),
		card("11", "Good teamwork", models.ColumnHelped, 11),
	}
}

func TestFindSuggestions_SortedBySimilarity(t *testing.T) {
	got := FindSuggestions(boardCorpus(), suggestionsCfg(0.6))
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
	}
	// Deploys pair ≈0.776 beats the CI cluster ≈0.634 and the pairing pair ≈0.619.
	assert.Equal(t, []string{"6", "7"}, got[0].CardIDs)
	assert.Equal(t, []string{"1", "3", "4"}, got[1].CardIDs)
	assert.Equal(t, []string{"2", "5"}, got[2].CardIDs)
}

func TestFindSuggestions_ColumnIsolationAndDisjointness(t *testing.T) {
	cards := boardCorpus()
	byID := make(map[string]*models.Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}

	for _, threshold := range []float64{0, 0.1, 0.3, 0.6, 0.9} {
		seen := make(map[string]bool)
		for _, s := range FindSuggestions(cards, suggestionsCfg(threshold)) {
			column := byID[s.CardIDs[0]].Column
			for _, id := range s.CardIDs {
				assert.Equal(t, column, byID[id].Column, "threshold %v", threshold)
				assert.False(t, seen[id], "card %s suggested twice at threshold %v", id, threshold)
				seen[id] = true
			}
		}
	}
}

func TestFindSuggestions_ThresholdMonotonicity(t *testing.T) {
	cards := boardCorpus()
	prevCount, prevMax := -1, -1
	for _, threshold := range []float64{0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0} {
		got := FindSuggestions(cards, suggestionsCfg(threshold))
		largest := 0
		for _, s := range got {
			largest = max(largest, len(s.CardIDs))
		}
		if prevCount >= 0 {
			assert.LessOrEqual(t, len(got), prevCount, "threshold %v", threshold)
			assert.LessOrEqual(t, largest, prevMax, "threshold %v", threshold)
		}
		prevCount, prevMax = len(got), largest
	}
}

func TestFindSuggestions_Deterministic(t *testing.T) {
	first := FindSuggestions(boardCorpus(), suggestionsCfg(0.3))
	for range 10 {
		again := FindSuggestions(boardCorpus(), suggestionsCfg(0.3))
		require.Len(t, again, len(first))
		for i := range first {
			assert.Equal(t, first[i].CardIDs, again[i].CardIDs)
			assert.Equal(t, first[i].Similarity, again[i].Similarity)
		}
	}
}

func TestGroupSuggestion_HeadAndMembers(t *testing.T) {
	s := &models.GroupSuggestion{CardIDs: []string{"a", "b", "c"}}
	assert.Equal(t, "a", s.HeadCardID())
	assert.Equal(t, []string{"b", "c"}, s.MemberCardIDs())
}
