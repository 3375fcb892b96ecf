package worker

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thebtf/retroboard/internal/db/gorm"
	"github.com/thebtf/retroboard/internal/events"
	"github.com/thebtf/retroboard/internal/grouping"
	"github.com/thebtf/retroboard/pkg/models"
)

// CreateRetrospectiveRequest is the request body for creating a board.
type CreateRetrospectiveRequest struct {
	Title string `json:"title"`
}

// handleCreateRetrospective creates a board owned by the caller.
func (s *Service) handleCreateRetrospective(w http.ResponseWriter, r *http.Request) {
	var req CreateRetrospectiveRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	retro, err := s.retros.CreateRetrospective(r.Context(), req.Title, currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.publish(r.Context(), events.BoardCreated, retro.ID, "", "", retro)
	writeJSONStatus(w, http.StatusCreated, retro)
}

// handleListRetrospectives lists boards, newest first.
func (s *Service) handleListRetrospectives(w http.ResponseWriter, r *http.Request) {
	limit := gorm.ParseLimitParamWithMax(r, DefaultBoardsLimit, 0)
	offset := gorm.ParseOffsetParam(r)

	retros, err := s.retros.ListRetrospectives(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if retros == nil {
		retros = []*models.Retrospective{}
	}
	writeJSON(w, retros)
}

// handleGetBoard returns a full board snapshot: cards, groups with totals and the
// number of clients streaming the board's events.
func (s *Service) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	retro, ok := s.requireRetrospective(w, r)
	if !ok {
		return
	}

	cards, err := s.cards.GetCardsByRetrospective(r.Context(), retro.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	groups, err := s.groups.BoardGroups(r.Context(), retro.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cards == nil {
		cards = []*models.Card{}
	}

	writeJSON(w, models.Board{
		Retrospective: retro,
		Columns:       models.Columns,
		Cards:         cards,
		Groups:        groups,
		Watchers:      s.sseBroadcaster.BoardClientCount(retro.ID),
	})
}

// requireRetrospective loads the board named in the URL, replying 404 when it does not exist.
func (s *Service) requireRetrospective(w http.ResponseWriter, r *http.Request) (*models.Retrospective, bool) {
	id := chi.URLParam(r, "id")
	retro, err := s.retros.GetRetrospective(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if retro == nil {
		writeError(w, r, fmt.Errorf("%w: retrospective %s", grouping.ErrNotFound, id))
		return nil, false
	}
	return retro, true
}
