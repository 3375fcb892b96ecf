package worker

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thebtf/retroboard/internal/events"
	"github.com/thebtf/retroboard/internal/grouping"
	"github.com/thebtf/retroboard/pkg/models"
)

// CreateGroupRequest is the request body for grouping cards by hand.
type CreateGroupRequest struct {
	HeadCardID    string   `json:"head_card_id"`
	MemberCardIDs []string `json:"member_card_ids"`
	Title         string   `json:"title,omitempty"`
}

// AddToGroupRequest is the request body for adding a card to a group.
type AddToGroupRequest struct {
	CardID string `json:"card_id"`
}

// RenameGroupRequest is the request body for renaming a group. An empty title clears it.
type RenameGroupRequest struct {
	Title string `json:"title"`
}

// handleCreateGroup groups a head card and its members.
func (s *Service) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	group, err := s.groups.CreateGroup(r.Context(), grouping.CreateGroupRequest{
		RetrospectiveID: chi.URLParam(r, "id"),
		HeadCardID:      req.HeadCardID,
		MemberCardIDs:   req.MemberCardIDs,
		CreatedBy:       currentUser(r).ID,
		Title:           req.Title,
	})
	s.replyGroupCreated(w, r, group, err)
}

// handleBoardGroups lists the groups of a board with totals.
func (s *Service) handleBoardGroups(w http.ResponseWriter, r *http.Request) {
	retro, ok := s.requireRetrospective(w, r)
	if !ok {
		return
	}
	groups, err := s.groups.BoardGroups(r.Context(), retro.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, groups)
}

// handleGetGroup returns a group with its cards and totals.
func (s *Service) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.groups.GetGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, group)
}

// handleDisbandGroup ungroups every card of a group and deletes it.
func (s *Service) handleDisbandGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.groups.GetGroup(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.groups.DisbandGroup(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(r.Context(), events.GroupDeleted, existing.Group.RetrospectiveID, "", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleAddToGroup appends a card to a group.
func (s *Service) handleAddToGroup(w http.ResponseWriter, r *http.Request) {
	var req AddToGroupRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	group, err := s.groups.AddToGroup(r.Context(), chi.URLParam(r, "id"), req.CardID)
	s.replyGroupUpdated(w, r, req.CardID, group, err)
}

// handleToggleCollapse flips the collapsed flag of a group.
func (s *Service) handleToggleCollapse(w http.ResponseWriter, r *http.Request) {
	group, err := s.groups.ToggleCollapse(r.Context(), chi.URLParam(r, "id"))
	s.replyGroupUpdated(w, r, "", group, err)
}

// handleRenameGroup sets or clears the custom title of a group.
func (s *Service) handleRenameGroup(w http.ResponseWriter, r *http.Request) {
	var req RenameGroupRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	group, err := s.groups.RenameGroup(r.Context(), chi.URLParam(r, "id"), req.Title)
	s.replyGroupUpdated(w, r, "", group, err)
}

func (s *Service) replyGroupCreated(w http.ResponseWriter, r *http.Request, group *models.Group, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(r.Context(), events.GroupCreated, group.RetrospectiveID, group.HeadCardID, group.ID, group)
	writeJSONStatus(w, http.StatusCreated, group)
}

func (s *Service) replyGroupUpdated(w http.ResponseWriter, r *http.Request, cardID string, group *models.Group, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(r.Context(), events.GroupUpdated, group.RetrospectiveID, cardID, group.ID, group)
	writeJSON(w, group)
}
