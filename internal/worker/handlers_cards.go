package worker

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/thebtf/retroboard/internal/events"
	"github.com/thebtf/retroboard/internal/grouping"
	"github.com/thebtf/retroboard/pkg/models"
)

// CreateCardRequest is the request body for adding a card.
type CreateCardRequest struct {
	Column  string `json:"column"`
	Content string `json:"content"`
}

// UpdateCardRequest is the request body for editing a card.
type UpdateCardRequest struct {
	Content string `json:"content"`
}

// VoteRequest is the request body for voting on a card. Delta may be negative.
type VoteRequest struct {
	Delta int `json:"delta"`
}

// ReactionRequest is the request body for reacting to a card.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// LikeResponse is returned by the like toggle.
type LikeResponse struct {
	Card  *models.Card `json:"card"`
	Liked bool         `json:"liked"`
}

// RemoveFromGroupResponse is returned when a card leaves its group.
// Group is nil when the group was deleted.
type RemoveFromGroupResponse struct {
	Card  *models.Card  `json:"card"`
	Group *models.Group `json:"group"`
}

// handleCreateCard adds a card authored by the caller at the end of its column.
func (s *Service) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	user := currentUser(r)
	card, err := s.cards.CreateCard(r.Context(), models.CardDraft{
		RetrospectiveID: chi.URLParam(r, "id"),
		Column:          models.Column(req.Column),
		Content:         req.Content,
		AuthorID:        user.ID,
		AuthorName:      user.Name,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.publish(r.Context(), events.CardCreated, card.RetrospectiveID, card.ID, "", card)
	writeJSONStatus(w, http.StatusCreated, card)
}

// handleListCards lists the cards of a board.
// Query: column filters by column, ungrouped=true keeps only cards outside groups.
func (s *Service) handleListCards(w http.ResponseWriter, r *http.Request) {
	retro, ok := s.requireRetrospective(w, r)
	if !ok {
		return
	}

	var column models.Column
	if c := r.URL.Query().Get("column"); c != "" {
		parsed, err := models.ParseColumn(c)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", grouping.ErrInvalidArgument, err))
			return
		}
		column = parsed
	}
	ungrouped, _ := strconv.ParseBool(r.URL.Query().Get("ungrouped"))

	var (
		cards []*models.Card
		err   error
	)
	if ungrouped {
		cards, err = s.cards.GetUngroupedCards(r.Context(), retro.ID, column)
	} else {
		cards, err = s.cards.GetCardsByRetrospective(r.Context(), retro.ID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]*models.Card, 0, len(cards))
	for _, c := range cards {
		if column == "" || c.Column == column {
			out = append(out, c)
		}
	}
	writeJSON(w, out)
}

// handleUpdateCard replaces the content of a card.
func (s *Service) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req UpdateCardRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	card, err := s.cards.UpdateContent(r.Context(), chi.URLParam(r, "id"), req.Content)
	s.replyCard(w, r, card, err)
}

// handleDeleteCard deletes an ungrouped card.
func (s *Service) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.cards.DeleteCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(r.Context(), events.CardDeleted, card.RetrospectiveID, card.ID, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleVote adjusts the vote count of a card.
func (s *Service) handleVote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Delta == 0 {
		writeError(w, r, fmt.Errorf("%w: delta must not be zero", grouping.ErrInvalidArgument))
		return
	}
	card, err := s.cards.Vote(r.Context(), chi.URLParam(r, "id"), req.Delta)
	s.replyCard(w, r, card, err)
}

// handleToggleLike adds or removes the caller's like.
func (s *Service) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	card, liked, err := s.cards.ToggleLike(r.Context(), chi.URLParam(r, "id"), user.ID, user.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(r.Context(), events.CardUpdated, card.RetrospectiveID, card.ID, "", card)
	writeJSON(w, LikeResponse{Card: card, Liked: liked})
}

// handleSetReaction sets the caller's reaction, replacing an earlier one.
func (s *Service) handleSetReaction(w http.ResponseWriter, r *http.Request) {
	var req ReactionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	user := currentUser(r)
	card, err := s.cards.SetReaction(r.Context(), chi.URLParam(r, "id"), user.ID, user.Name, req.Emoji)
	s.replyCard(w, r, card, err)
}

// handleRemoveReaction clears the caller's reaction.
func (s *Service) handleRemoveReaction(w http.ResponseWriter, r *http.Request) {
	card, err := s.cards.RemoveReaction(r.Context(), chi.URLParam(r, "id"), currentUser(r).ID)
	s.replyCard(w, r, card, err)
}

// handleRemoveFromGroup takes a card out of its group.
func (s *Service) handleRemoveFromGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	before, err := s.cards.GetCard(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if before == nil {
		writeError(w, r, fmt.Errorf("%w: card %s", grouping.ErrNotFound, id))
		return
	}

	group, err := s.groups.RemoveFromGroup(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	card, err := s.cards.GetCard(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if group == nil {
		s.publish(r.Context(), events.GroupDeleted, before.RetrospectiveID, id, before.GroupID.String, nil)
	} else {
		s.publish(r.Context(), events.GroupUpdated, before.RetrospectiveID, id, group.ID, group)
	}
	writeJSON(w, RemoveFromGroupResponse{Card: card, Group: group})
}

// replyCard answers a single-card mutation and announces the change.
func (s *Service) replyCard(w http.ResponseWriter, r *http.Request, card *models.Card, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(r.Context(), events.CardUpdated, card.RetrospectiveID, card.ID, "", card)
	writeJSON(w, card)
}
