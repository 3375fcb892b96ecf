package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
)

// Group is a materialized cluster of cards: one head plus an ordered member list.
type Group struct {
	ID              string          `db:"id" json:"id"`
	RetrospectiveID string          `db:"retrospective_id" json:"retrospective_id"`
	Column          Column          `db:"board_column" json:"column"`
	HeadCardID      string          `db:"head_card_id" json:"head_card_id"`
	MemberCardIDs   JSONStringArray `db:"member_card_ids" json:"member_card_ids"`
	Title           sql.NullString  `db:"title" json:"title"`
	CreatedAt       string          `db:"created_at" json:"created_at"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	CreatedAtEpoch  int64           `db:"created_at_epoch" json:"created_at_epoch"`
	Order           int             `db:"group_order" json:"order"`
	IsCollapsed     bool            `db:"is_collapsed" json:"is_collapsed"`
}

// Size is the number of cards in the group, head included.
func (g *Group) Size() int {
	return len(g.MemberCardIDs) + 1
}

// DisplayTitle returns the custom title or a label derived from the card count.
func (g *Group) DisplayTitle() string {
	if g.Title.Valid && g.Title.String != "" {
		return g.Title.String
	}
	return fmt.Sprintf("Group of %d cards", g.Size())
}

// HasMember reports whether cardID is a non-head member.
func (g *Group) HasMember(cardID string) bool {
	return slices.Contains(g.MemberCardIDs, cardID)
}

// CardIDs returns the head followed by the members in display order.
func (g *Group) CardIDs() []string {
	ids := make([]string, 0, g.Size())
	ids = append(ids, g.HeadCardID)
	return append(ids, g.MemberCardIDs...)
}

// GroupJSON is a JSON-friendly representation of Group.
type GroupJSON struct {
	ID              string   `json:"id"`
	RetrospectiveID string   `json:"retrospective_id"`
	Column          Column   `json:"column"`
	HeadCardID      string   `json:"head_card_id"`
	MemberCardIDs   []string `json:"member_card_ids"`
	IsCollapsed     bool     `json:"is_collapsed"`
	Title           string   `json:"title,omitempty"`
	DisplayTitle    string   `json:"display_title"`
	CreatedAt       string   `json:"created_at"`
	CreatedAtEpoch  int64    `json:"created_at_epoch"`
	CreatedBy       string   `json:"created_by"`
	Order           int      `json:"order"`
}

// MarshalJSON implements json.Marshaler for Group.
func (g *Group) MarshalJSON() ([]byte, error) {
	j := GroupJSON{
		ID:              g.ID,
		RetrospectiveID: g.RetrospectiveID,
		Column:          g.Column,
		HeadCardID:      g.HeadCardID,
		MemberCardIDs:   g.MemberCardIDs,
		IsCollapsed:     g.IsCollapsed,
		DisplayTitle:    g.DisplayTitle(),
		CreatedAt:       g.CreatedAt,
		CreatedAtEpoch:  g.CreatedAtEpoch,
		CreatedBy:       g.CreatedBy,
		Order:           g.Order,
	}
	if j.MemberCardIDs == nil {
		j.MemberCardIDs = []string{}
	}
	if g.Title.Valid {
		j.Title = g.Title.String
	}
	return json.Marshal(j)
}

// GroupWithTotals is a group together with totals derived from its cards.
// The totals are a read-side projection and are never stored.
type GroupWithTotals struct {
	Group        *Group     `json:"group"`
	Cards        []*Card    `json:"cards"`
	AllReactions []Reaction `json:"all_reactions"`
	TotalVotes   int        `json:"total_votes"`
	TotalLikes   int        `json:"total_likes"`
}
