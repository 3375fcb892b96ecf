// Package grouping implements the card group lifecycle and group aggregation.
package grouping

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/retroboard/pkg/models"
)

// Transition names, used for logging and metrics.
const (
	OpCreate   = "create"
	OpAdd      = "add"
	OpRemove   = "remove"
	OpDisband  = "disband"
	OpCollapse = "collapse"
	OpRename   = "rename"
)

// CreateGroupRequest describes a new group.
type CreateGroupRequest struct {
	RetrospectiveID string   `json:"retrospective_id"`
	HeadCardID      string   `json:"head_card_id"`
	MemberCardIDs   []string `json:"member_card_ids"`
	CreatedBy       string   `json:"created_by"`
	Title           string   `json:"title,omitempty"`
}

// Service runs group lifecycle transitions. Every transition is atomic.
type Service struct {
	store       Store
	now         func() time.Time
	newID       func() string
	transitions metric.Int64Counter
}

// NewService creates a lifecycle service on top of store.
func NewService(store Store) *Service {
	counter, err := otel.Meter("github.com/thebtf/retroboard/internal/grouping").Int64Counter(
		"retroboard.grouping.transitions",
		metric.WithDescription("Group lifecycle transitions by operation and outcome"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create grouping metrics counter")
	}
	return &Service{
		store:       store,
		now:         time.Now,
		newID:       uuid.NewString,
		transitions: counter,
	}
}

// CreateGroup turns a head card and at least one member into a new group.
// Every card must exist on the board, be ungrouped and share the head's column.
func (s *Service) CreateGroup(ctx context.Context, req CreateGroupRequest) (*models.Group, error) {
	if req.RetrospectiveID == "" || req.HeadCardID == "" {
		return nil, invalidf("retrospective and head card are required")
	}
	if len(req.MemberCardIDs) == 0 {
		return nil, invalidf("a group needs at least one member")
	}
	seen := map[string]bool{req.HeadCardID: true}
	for _, id := range req.MemberCardIDs {
		if id == "" {
			return nil, invalidf("empty member card id")
		}
		if seen[id] {
			return nil, invalidf("card %s listed more than once", id)
		}
		seen[id] = true
	}

	var group *models.Group
	err := s.inTx(ctx, OpCreate, func(tx Tx) error {
		head, err := boardCard(tx, req.RetrospectiveID, req.HeadCardID)
		if err != nil {
			return err
		}
		if head.IsGrouped() {
			return preconditionf("card %s is already in group %s", head.ID, head.GroupID.String)
		}

		members := make([]*models.Card, 0, len(req.MemberCardIDs))
		for _, id := range req.MemberCardIDs {
			c, err := boardCard(tx, req.RetrospectiveID, id)
			if err != nil {
				return err
			}
			if c.IsGrouped() {
				return preconditionf("card %s is already in group %s", c.ID, c.GroupID.String)
			}
			if c.Column != head.Column {
				return preconditionf("card %s is in column %s, head is in %s", c.ID, c.Column, head.Column)
			}
			members = append(members, c)
		}

		now := s.now()
		group = &models.Group{
			ID:              s.newID(),
			RetrospectiveID: req.RetrospectiveID,
			Column:          head.Column,
			HeadCardID:      head.ID,
			MemberCardIDs:   append(models.JSONStringArray(nil), req.MemberCardIDs...),
			CreatedAt:       now.Format(time.RFC3339),
			CreatedAtEpoch:  now.UnixMilli(),
			CreatedBy:       req.CreatedBy,
			Order:           head.Order,
		}
		if title := strings.TrimSpace(req.Title); title != "" {
			group.Title = sql.NullString{String: title, Valid: true}
		}
		if err := tx.CreateGroup(group); err != nil {
			return err
		}

		head.MarkHead(group.ID)
		if err := tx.SaveCard(head); err != nil {
			return err
		}
		for i, c := range members {
			c.MarkMember(group.ID, i)
			if err := tx.SaveCard(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("group_id", group.ID).
		Str("retrospective_id", group.RetrospectiveID).
		Int("size", group.Size()).
		Msg("Group created")
	return group, nil
}

// AcceptSuggestion materializes a suggestion as a group: the first card becomes the
// head and the rest members. Cards are not re-scored.
func (s *Service) AcceptSuggestion(ctx context.Context, retrospectiveID string, suggestion *models.GroupSuggestion, createdBy, title string) (*models.Group, error) {
	if suggestion == nil || len(suggestion.CardIDs) < 2 {
		return nil, invalidf("a suggestion needs at least two cards")
	}
	return s.CreateGroup(ctx, CreateGroupRequest{
		RetrospectiveID: retrospectiveID,
		HeadCardID:      suggestion.HeadCardID(),
		MemberCardIDs:   suggestion.MemberCardIDs(),
		CreatedBy:       createdBy,
		Title:           title,
	})
}

// AddToGroup appends an ungrouped card of the same board and column to a group.
func (s *Service) AddToGroup(ctx context.Context, groupID, cardID string) (*models.Group, error) {
	if groupID == "" || cardID == "" {
		return nil, invalidf("group and card are required")
	}

	var group *models.Group
	err := s.inTx(ctx, OpAdd, func(tx Tx) error {
		g, err := existingGroup(tx, groupID)
		if err != nil {
			return err
		}
		c, err := boardCard(tx, g.RetrospectiveID, cardID)
		if err != nil {
			return err
		}
		if c.IsGrouped() {
			return preconditionf("card %s is already in group %s", c.ID, c.GroupID.String)
		}
		if c.Column != g.Column {
			return preconditionf("card %s is in column %s, group is in %s", c.ID, c.Column, g.Column)
		}

		g.MemberCardIDs = append(g.MemberCardIDs, c.ID)
		if err := tx.SaveGroup(g); err != nil {
			return err
		}
		c.MarkMember(g.ID, len(g.MemberCardIDs)-1)
		if err := tx.SaveCard(c); err != nil {
			return err
		}
		group = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("group_id", groupID).Str("card_id", cardID).Msg("Card added to group")
	return group, nil
}

// RemoveFromGroup takes a card out of its group.
//
// Removing a member renumbers the remaining members. Removing the head promotes the
// first member; if there are no members the group is deleted. Returns the surviving
// group, or nil when the group was deleted.
func (s *Service) RemoveFromGroup(ctx context.Context, cardID string) (*models.Group, error) {
	if cardID == "" {
		return nil, invalidf("card is required")
	}

	var group *models.Group
	err := s.inTx(ctx, OpRemove, func(tx Tx) error {
		c, err := tx.GetCard(cardID)
		if err != nil {
			return err
		}
		if c == nil {
			return notFoundf("card %s", cardID)
		}
		if !c.IsGrouped() {
			return preconditionf("card %s is not in a group", cardID)
		}
		g, err := existingGroup(tx, c.GroupID.String)
		if err != nil {
			return err
		}

		var remaining []string
		switch {
		case g.HeadCardID == c.ID && len(g.MemberCardIDs) == 0:
			if err := tx.DeleteGroup(g.ID); err != nil {
				return err
			}
			c.Ungroup()
			return tx.SaveCard(c)

		case g.HeadCardID == c.ID:
			promoted, err := tx.GetCard(g.MemberCardIDs[0])
			if err != nil {
				return err
			}
			if promoted == nil {
				return notFoundf("card %s", g.MemberCardIDs[0])
			}
			promoted.MarkHead(g.ID)
			if err := tx.SaveCard(promoted); err != nil {
				return err
			}
			g.HeadCardID = promoted.ID
			remaining = g.MemberCardIDs[1:]

		default:
			if !g.HasMember(c.ID) {
				return preconditionf("card %s is not listed in group %s", c.ID, g.ID)
			}
			for _, id := range g.MemberCardIDs {
				if id != c.ID {
					remaining = append(remaining, id)
				}
			}
		}

		g.MemberCardIDs = append(models.JSONStringArray{}, remaining...)
		if err := renumber(tx, g); err != nil {
			return err
		}
		if err := tx.SaveGroup(g); err != nil {
			return err
		}
		c.Ungroup()
		if err := tx.SaveCard(c); err != nil {
			return err
		}
		group = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := log.Debug().Str("card_id", cardID)
	if group == nil {
		ev.Msg("Card removed, group deleted")
	} else {
		ev.Str("group_id", group.ID).Str("head_card_id", group.HeadCardID).Msg("Card removed from group")
	}
	return group, nil
}

// DisbandGroup ungroups every card of a group and deletes it.
func (s *Service) DisbandGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return invalidf("group is required")
	}

	err := s.inTx(ctx, OpDisband, func(tx Tx) error {
		g, err := existingGroup(tx, groupID)
		if err != nil {
			return err
		}
		for _, id := range g.CardIDs() {
			c, err := tx.GetCard(id)
			if err != nil {
				return err
			}
			// Skip ids whose card was already relinked or removed.
			if c == nil || c.GroupID.String != g.ID {
				continue
			}
			c.Ungroup()
			if err := tx.SaveCard(c); err != nil {
				return err
			}
		}
		return tx.DeleteGroup(g.ID)
	})
	if err != nil {
		return err
	}

	log.Info().Str("group_id", groupID).Msg("Group disbanded")
	return nil
}

// ToggleCollapse flips the collapsed display flag of a group.
func (s *Service) ToggleCollapse(ctx context.Context, groupID string) (*models.Group, error) {
	return s.updateGroup(ctx, OpCollapse, groupID, func(g *models.Group) {
		g.IsCollapsed = !g.IsCollapsed
	})
}

// RenameGroup sets the custom title of a group. An empty title clears it.
func (s *Service) RenameGroup(ctx context.Context, groupID, title string) (*models.Group, error) {
	title = strings.TrimSpace(title)
	return s.updateGroup(ctx, OpRename, groupID, func(g *models.Group) {
		g.Title = sql.NullString{String: title, Valid: title != ""}
	})
}

// GetGroup returns a group with its cards and totals.
func (s *Service) GetGroup(ctx context.Context, groupID string) (*models.GroupWithTotals, error) {
	if groupID == "" {
		return nil, invalidf("group is required")
	}

	var out *models.GroupWithTotals
	err := classify(s.store.InTx(ctx, func(tx Tx) error {
		g, err := existingGroup(tx, groupID)
		if err != nil {
			return err
		}
		cards := make([]*models.Card, 0, g.Size())
		for _, id := range g.CardIDs() {
			c, err := tx.GetCard(id)
			if err != nil {
				return err
			}
			if c != nil {
				cards = append(cards, c)
			}
		}
		out = Aggregate(g, cards)
		return nil
	}))
	return out, err
}

// BoardGroups returns every group of a board with totals, in display order.
func (s *Service) BoardGroups(ctx context.Context, retrospectiveID string) ([]*models.GroupWithTotals, error) {
	if retrospectiveID == "" {
		return nil, invalidf("retrospective is required")
	}

	var out []*models.GroupWithTotals
	err := classify(s.store.InTx(ctx, func(tx Tx) error {
		groups, err := tx.ListGroups(retrospectiveID)
		if err != nil {
			return err
		}
		cards, err := tx.ListCards(retrospectiveID)
		if err != nil {
			return err
		}
		out = BoardTotals(groups, cards)
		return nil
	}))
	return out, err
}

// BoardTotals aggregates every group over one board's cards, ordered by group order.
func BoardTotals(groups []*models.Group, cards []*models.Card) []*models.GroupWithTotals {
	sorted := append([]*models.Group(nil), groups...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	out := make([]*models.GroupWithTotals, 0, len(sorted))
	for _, g := range sorted {
		out = append(out, Aggregate(g, cards))
	}
	return out
}

func (s *Service) updateGroup(ctx context.Context, op, groupID string, mutate func(*models.Group)) (*models.Group, error) {
	if groupID == "" {
		return nil, invalidf("group is required")
	}

	var group *models.Group
	err := s.inTx(ctx, op, func(tx Tx) error {
		g, err := existingGroup(tx, groupID)
		if err != nil {
			return err
		}
		mutate(g)
		if err := tx.SaveGroup(g); err != nil {
			return err
		}
		group = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// inTx runs a transition, classifies its error and records the outcome.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx Tx) error) error {
	err := classify(s.store.InTx(ctx, fn))
	s.record(ctx, op, err)
	if err != nil {
		log.Debug().Err(err).Str("op", op).Msg("Group transition failed")
	}
	return err
}

func (s *Service) record(ctx context.Context, op string, err error) {
	if s.transitions == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case IsDomainError(err):
		outcome = "rejected"
	default:
		outcome = "failed"
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// boardCard loads a card and checks it belongs to retrospectiveID.
func boardCard(tx Tx, retrospectiveID, cardID string) (*models.Card, error) {
	c, err := tx.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.RetrospectiveID != retrospectiveID {
		return nil, notFoundf("card %s on retrospective %s", cardID, retrospectiveID)
	}
	return c, nil
}

func existingGroup(tx Tx, groupID string) (*models.Group, error) {
	g, err := tx.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, notFoundf("group %s", groupID)
	}
	return g, nil
}

// renumber rewrites GroupOrder of every member so positions are contiguous from 0.
func renumber(tx Tx, g *models.Group) error {
	for i, id := range g.MemberCardIDs {
		c, err := tx.GetCard(id)
		if err != nil {
			return err
		}
		if c == nil {
			return notFoundf("card %s", id)
		}
		if c.GroupOrder.Valid && c.GroupOrder.Int64 == int64(i) && !c.IsGroupHead && c.GroupID.String == g.ID {
			continue
		}
		c.MarkMember(g.ID, i)
		if err := tx.SaveCard(c); err != nil {
			return err
		}
	}
	return nil
}
