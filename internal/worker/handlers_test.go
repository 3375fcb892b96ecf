package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/retroboard/internal/config"
	"github.com/thebtf/retroboard/internal/events"
	"github.com/thebtf/retroboard/pkg/models"
	"github.com/thebtf/retroboard/pkg/similarity"
)

func TestHealthAndReady(t *testing.T) {
	svc := testService(t)

	rr := do(t, svc, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var health map[string]interface{}
	decode(t, rr, &health)
	assert.Equal(t, "ready", health["status"])
	assert.Equal(t, "test", health["version"])
	assert.Contains(t, health, "database")

	rr = do(t, svc, http.MethodGet, "/api/ready", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, svc, http.MethodGet, "/api/version", nil, "")
	assert.JSONEq(t, `{"version":"test"}`, rr.Body.String())
}

func TestRequireReady_InitFailure(t *testing.T) {
	t.Setenv(config.KeyDataDir, t.TempDir())
	svc := NewService("test", &config.Config{Suggest: similarity.DefaultConfig()})
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	require.Error(t, svc.WaitReady(t.Context()))

	rr := do(t, svc, http.MethodGet, "/api/retrospectives", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "initialization failed")

	rr = do(t, svc, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"error"`)
}

func TestBoardsAndCards(t *testing.T) {
	svc := testService(t)
	log := recordEvents(svc)

	retroID := createBoard(t, svc, "Sprint 42")

	rr := do(t, svc, http.MethodGet, "/api/retrospectives", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var boards []models.Retrospective
	decode(t, rr, &boards)
	require.Len(t, boards, 1)
	assert.Equal(t, "Sprint 42", boards[0].Title)
	assert.Equal(t, "alice", boards[0].CreatedBy)

	card := createCard(t, svc, retroID, "helped", "  Pairing sessions  ")
	assert.Equal(t, "Pairing sessions", card.Content)
	assert.Equal(t, "alice", card.AuthorID)
	assert.Nil(t, card.GroupID)

	t.Run("edit", func(t *testing.T) {
		rr := do(t, svc, http.MethodPatch, "/api/cards/"+card.ID, map[string]string{"content": "Pair programming"}, "alice")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var got cardView
		decode(t, rr, &got)
		assert.Equal(t, "Pair programming", got.Content)
	})

	t.Run("vote", func(t *testing.T) {
		rr := do(t, svc, http.MethodPost, "/api/cards/"+card.ID+"/vote", map[string]int{"delta": 3}, "bob")
		require.Equal(t, http.StatusOK, rr.Code)
		var got cardView
		decode(t, rr, &got)
		assert.Equal(t, 3, got.Votes)

		rr = do(t, svc, http.MethodPost, "/api/cards/"+card.ID+"/vote", map[string]int{"delta": 0}, "bob")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("like toggles", func(t *testing.T) {
		var resp struct {
			Card  cardView `json:"card"`
			Liked bool     `json:"liked"`
		}
		rr := do(t, svc, http.MethodPost, "/api/cards/"+card.ID+"/like", nil, "bob")
		require.Equal(t, http.StatusOK, rr.Code)
		decode(t, rr, &resp)
		assert.True(t, resp.Liked)
		require.Len(t, resp.Card.Likes, 1)
		assert.Equal(t, "bob", resp.Card.Likes[0].UserID)

		rr = do(t, svc, http.MethodPost, "/api/cards/"+card.ID+"/like", nil, "bob")
		decode(t, rr, &resp)
		assert.False(t, resp.Liked)
		assert.Empty(t, resp.Card.Likes)
	})

	t.Run("reaction", func(t *testing.T) {
		rr := do(t, svc, http.MethodPut, "/api/cards/"+card.ID+"/reaction", map[string]string{"emoji": "🎉"}, "bob")
		require.Equal(t, http.StatusOK, rr.Code)
		rr = do(t, svc, http.MethodPut, "/api/cards/"+card.ID+"/reaction", map[string]string{"emoji": "👍"}, "bob")
		var got cardView
		decode(t, rr, &got)
		require.Len(t, got.Reactions, 1)
		assert.Equal(t, "👍", got.Reactions[0].Emoji)

		rr = do(t, svc, http.MethodDelete, "/api/cards/"+card.ID+"/reaction", nil, "bob")
		require.Equal(t, http.StatusOK, rr.Code)
		rr = do(t, svc, http.MethodDelete, "/api/cards/"+card.ID+"/reaction", nil, "bob")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("list filters", func(t *testing.T) {
		createCard(t, svc, retroID, "improve", "Shorter standups")

		rr := do(t, svc, http.MethodGet, "/api/retrospectives/"+retroID+"/cards?column=improve", nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var cards []cardView
		decode(t, rr, &cards)
		require.Len(t, cards, 1)
		assert.Equal(t, "Shorter standups", cards[0].Content)

		rr = do(t, svc, http.MethodGet, "/api/retrospectives/"+retroID+"/cards?column=sideways", nil, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rr := do(t, svc, http.MethodDelete, "/api/cards/"+card.ID, nil, "alice")
		assert.Equal(t, http.StatusNoContent, rr.Code)
		rr = do(t, svc, http.MethodDelete, "/api/cards/"+card.ID, nil, "alice")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	types := log.types()
	assert.Equal(t, events.BoardCreated, types[0])
	assert.Contains(t, types, events.CardCreated)
	assert.Contains(t, types, events.CardUpdated)
	assert.Contains(t, types, events.CardDeleted)
}

func TestErrorStatuses(t *testing.T) {
	svc := testService(t)
	retroID := createBoard(t, svc, "Errors")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"unknown board", http.MethodGet, "/api/retrospectives/missing", nil, http.StatusNotFound},
		{"card on unknown board", http.MethodPost, "/api/retrospectives/missing/cards", map[string]string{"column": "helped", "content": "x"}, http.StatusNotFound},
		{"unknown column", http.MethodPost, "/api/retrospectives/" + retroID + "/cards", map[string]string{"column": "sideways", "content": "x"}, http.StatusBadRequest},
		{"empty content", http.MethodPost, "/api/retrospectives/" + retroID + "/cards", map[string]string{"column": "helped", "content": "  "}, http.StatusBadRequest},
		{"malformed JSON", http.MethodPost, "/api/retrospectives/" + retroID + "/cards", "{not json", http.StatusBadRequest},
		{"unknown card", http.MethodPatch, "/api/cards/missing", map[string]string{"content": "x"}, http.StatusNotFound},
		{"unknown card leaves group", http.MethodDelete, "/api/cards/missing/group", nil, http.StatusNotFound},
		{"unknown group", http.MethodGet, "/api/groups/missing", nil, http.StatusNotFound},
		{"group without members", http.MethodPost, "/api/retrospectives/" + retroID + "/groups", map[string]interface{}{"head_card_id": "a"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, svc, tt.method, tt.path, tt.body, "alice")
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())

			var resp ErrorResponse
			decode(t, rr, &resp)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestGroupLifecycle(t *testing.T) {
	svc := testService(t)
	log := recordEvents(svc)

	retroID := createBoard(t, svc, "Groups")
	a := createCard(t, svc, retroID, "improve", "Card A")
	b := createCard(t, svc, retroID, "improve", "Card B")
	c := createCard(t, svc, retroID, "improve", "Card C")
	other := createCard(t, svc, retroID, "helped", "Elsewhere")

	rr := do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/groups", map[string]interface{}{
		"head_card_id":    a.ID,
		"member_card_ids": []string{b.ID},
	}, "carol")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var group groupView
	decode(t, rr, &group)
	assert.Equal(t, a.ID, group.HeadCardID)
	assert.Equal(t, []string{b.ID}, group.MemberCardIDs)
	assert.Equal(t, "carol", group.CreatedBy)
	assert.Equal(t, "Group of 2 cards", group.DisplayTitle)

	// A grouped card cannot join a second group or be deleted.
	rr = do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/groups", map[string]interface{}{
		"head_card_id":    c.ID,
		"member_card_ids": []string{b.ID},
	}, "carol")
	assert.Equal(t, http.StatusConflict, rr.Code)
	rr = do(t, svc, http.MethodDelete, "/api/cards/"+b.ID, nil, "carol")
	assert.Equal(t, http.StatusConflict, rr.Code)

	// Cards from another column are refused.
	rr = do(t, svc, http.MethodPost, "/api/groups/"+group.ID+"/cards", map[string]string{"card_id": other.ID}, "carol")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, svc, http.MethodPost, "/api/groups/"+group.ID+"/cards", map[string]string{"card_id": c.ID}, "carol")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decode(t, rr, &group)
	assert.Equal(t, []string{b.ID, c.ID}, group.MemberCardIDs)

	rr = do(t, svc, http.MethodPut, "/api/groups/"+group.ID+"/title", map[string]string{"title": "Testing"}, "carol")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &group)
	assert.Equal(t, "Testing", group.DisplayTitle)

	rr = do(t, svc, http.MethodPost, "/api/groups/"+group.ID+"/collapse", nil, "carol")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &group)
	assert.True(t, group.IsCollapsed)

	do(t, svc, http.MethodPost, "/api/cards/"+a.ID+"/vote", map[string]int{"delta": 2}, "carol")
	do(t, svc, http.MethodPost, "/api/cards/"+c.ID+"/vote", map[string]int{"delta": 1}, "carol")
	do(t, svc, http.MethodPost, "/api/cards/"+b.ID+"/like", nil, "carol")

	rr = do(t, svc, http.MethodGet, "/api/groups/"+group.ID, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var totals totalsView
	decode(t, rr, &totals)
	assert.Equal(t, 3, totals.TotalVotes)
	assert.Equal(t, 1, totals.TotalLikes)
	require.Len(t, totals.Cards, 3)
	assert.Equal(t, a.ID, totals.Cards[0].ID)

	t.Run("head removal promotes first member", func(t *testing.T) {
		rr := do(t, svc, http.MethodDelete, "/api/cards/"+a.ID+"/group", nil, "carol")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var resp struct {
			Card  cardView   `json:"card"`
			Group *groupView `json:"group"`
		}
		decode(t, rr, &resp)
		assert.Nil(t, resp.Card.GroupID)
		require.NotNil(t, resp.Group)
		assert.Equal(t, b.ID, resp.Group.HeadCardID)
		assert.Equal(t, []string{c.ID}, resp.Group.MemberCardIDs)
	})

	t.Run("board snapshot", func(t *testing.T) {
		watcher, err := svc.sseBroadcaster.AddClient(httptest.NewRecorder(), retroID)
		require.NoError(t, err)
		other, err := svc.sseBroadcaster.AddClient(httptest.NewRecorder(), "another-board")
		require.NoError(t, err)
		defer svc.sseBroadcaster.RemoveClient(other)

		rr := do(t, svc, http.MethodGet, "/api/retrospectives/"+retroID, nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var board struct {
			Retrospective models.Retrospective `json:"retrospective"`
			Columns       []models.Column      `json:"columns"`
			Cards         []cardView           `json:"cards"`
			Groups        []totalsView         `json:"groups"`
			Watchers      int                  `json:"watchers"`
		}
		decode(t, rr, &board)
		assert.Equal(t, retroID, board.Retrospective.ID)
		assert.Equal(t, []models.Column{models.ColumnHelped, models.ColumnHindered, models.ColumnImprove}, board.Columns)
		assert.Len(t, board.Cards, 4)
		require.Len(t, board.Groups, 1)
		assert.Equal(t, 1, board.Groups[0].TotalVotes)
		assert.Equal(t, 1, board.Watchers)

		svc.sseBroadcaster.RemoveClient(watcher)
		rr = do(t, svc, http.MethodGet, "/api/retrospectives/"+retroID, nil, "")
		decode(t, rr, &board)
		assert.Zero(t, board.Watchers)

		rr = do(t, svc, http.MethodGet, "/api/retrospectives/"+retroID+"/cards?ungrouped=true&column=improve", nil, "")
		var ungrouped []cardView
		decode(t, rr, &ungrouped)
		require.Len(t, ungrouped, 1)
		assert.Equal(t, a.ID, ungrouped[0].ID)
	})

	t.Run("disband", func(t *testing.T) {
		rr := do(t, svc, http.MethodDelete, "/api/groups/"+group.ID, nil, "carol")
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = do(t, svc, http.MethodGet, "/api/groups/"+group.ID, nil, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = do(t, svc, http.MethodGet, "/api/retrospectives/"+retroID+"/groups", nil, "")
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	types := log.types()
	assert.Contains(t, types, events.GroupCreated)
	assert.Contains(t, types, events.GroupUpdated)
	assert.Contains(t, types, events.GroupDeleted)
}

func TestSuggestions(t *testing.T) {
	svc := testService(t)
	log := recordEvents(svc)

	retroID := createBoard(t, svc, "Suggestions")
	a := createCard(t, svc, retroID, "hindered", "Standups run long")
	b := createCard(t, svc, retroID, "hindered", "Standups run long")
	createCard(t, svc, retroID, "hindered", "Flaky CI pipeline")
	createCard(t, svc, retroID, "improve", "Standups run long")

	rr := do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/suggestions", nil, "dave")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Suggestions []models.GroupSuggestion `json:"suggestions"`
		Count       int                      `json:"count"`
		Config      similarity.Config        `json:"config"`
	}
	decode(t, rr, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, []string{a.ID, b.ID}, resp.Suggestions[0].CardIDs)
	assert.InDelta(t, 1.0, resp.Suggestions[0].Similarity, 1e-9)
	assert.Equal(t, similarity.DefaultConfig().Threshold, resp.Config.Threshold)

	t.Run("body overrides defaults", func(t *testing.T) {
		rr := do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/suggestions",
			map[string]interface{}{"algorithm": "keyword", "threshold": 0.9}, "dave")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		decode(t, rr, &resp)
		assert.Equal(t, models.AlgorithmKeyword, resp.Config.Algorithm)
		assert.Equal(t, 0.9, resp.Config.Threshold)
		assert.Equal(t, similarity.DefaultConfig().MaxGroupSize, resp.Config.MaxGroupSize)
	})

	t.Run("invalid config", func(t *testing.T) {
		rr := do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/suggestions",
			map[string]interface{}{"threshold": 1.5}, "erin")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown board", func(t *testing.T) {
		rr := do(t, svc, http.MethodPost, "/api/retrospectives/missing/suggestions", nil, "erin")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("accept", func(t *testing.T) {
		rr := do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/suggestions/accept",
			map[string]interface{}{"card_ids": []string{a.ID, b.ID}, "title": "Standups"}, "dave")
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var group groupView
		decode(t, rr, &group)
		assert.Equal(t, a.ID, group.HeadCardID)
		assert.Equal(t, []string{b.ID}, group.MemberCardIDs)
		assert.Equal(t, "Standups", group.Title)

		// Grouped cards are no longer candidates.
		rr = do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/suggestions", nil, "dave")
		decode(t, rr, &resp)
		assert.Zero(t, resp.Count)
		assert.NotNil(t, resp.Suggestions)

		rr = do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/suggestions/accept",
			map[string]interface{}{"card_ids": []string{a.ID}}, "dave")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	assert.Contains(t, log.types(), events.SuggestionsFound)
}

func TestSuggestions_Defaults(t *testing.T) {
	svc := testService(t)
	retroID := createBoard(t, svc, "Defaults")
	createCard(t, svc, retroID, "improve", "Need better testing")
	createCard(t, svc, retroID, "improve", "We need more tests")

	rr := do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/suggestions", nil, "erin")
	assert.Contains(t, rr.Body.String(), `"count":0`)

	cfg := similarity.DefaultConfig()
	cfg.Threshold = 0.25
	require.NoError(t, svc.SetSuggestDefaults(cfg))

	rr = do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/suggestions", nil, "erin")
	assert.Contains(t, rr.Body.String(), `"count":1`)

	cfg.MinGroupSize = 1
	assert.Error(t, svc.SetSuggestDefaults(cfg))
	assert.Equal(t, 0.25, svc.SuggestDefaults().Threshold)
}

func TestSuggestions_RateLimited(t *testing.T) {
	svc := testService(t)
	retroID := createBoard(t, svc, "Limits")
	path := "/api/retrospectives/" + retroID + "/suggestions"

	for i := 0; i < SuggestBurst; i++ {
		rr := do(t, svc, http.MethodPost, path, nil, "frank")
		require.Equal(t, http.StatusOK, rr.Code, fmt.Sprintf("request %d", i))
	}

	rr := do(t, svc, http.MethodPost, path, nil, "frank")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	// Buckets are per user.
	rr = do(t, svc, http.MethodPost, path, nil, "grace")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuth_TokenRequired(t *testing.T) {
	svc := testService(t, func(cfg *config.Config) {
		cfg.AuthSecret = "test-secret"
	})

	rr := do(t, svc, http.MethodGet, "/api/retrospectives", nil, "alice")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, svc, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
