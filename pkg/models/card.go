// Package models contains domain models for retroboard.
package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Column is one of the fixed retrospective columns a card lives in.
// Cards are only ever compared or grouped within a single column.
type Column string

const (
	// ColumnHelped holds things that helped the team.
	ColumnHelped Column = "helped"
	// ColumnHindered holds things that slowed the team down.
	ColumnHindered Column = "hindered"
	// ColumnImprove holds improvement ideas.
	ColumnImprove Column = "improve"
)

// Columns is the canonical column order of a board.
var Columns = []Column{ColumnHelped, ColumnHindered, ColumnImprove}

// Valid reports whether c is one of the known columns.
func (c Column) Valid() bool {
	switch c {
	case ColumnHelped, ColumnHindered, ColumnImprove:
		return true
	}
	return false
}

// ParseColumn converts a string into a Column.
func ParseColumn(s string) (Column, error) {
	c := Column(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown column %q", s)
	}
	return c, nil
}

// GroupState is the grouping state of a card.
type GroupState int

const (
	// StateUngrouped means the card belongs to no group.
	StateUngrouped GroupState = iota
	// StateGroupHead means the card is the representative of its group.
	StateGroupHead
	// StateGroupMember means the card is a non-head member of its group.
	StateGroupMember
)

func (s GroupState) String() string {
	switch s {
	case StateGroupHead:
		return "head"
	case StateGroupMember:
		return "member"
	default:
		return "ungrouped"
	}
}

// Card is a sticky note on a retrospective board.
type Card struct {
	ID              string         `db:"id" json:"id"`
	RetrospectiveID string         `db:"retrospective_id" json:"retrospective_id"`
	Content         string         `db:"content" json:"content"`
	Column          Column         `db:"board_column" json:"column"`
	AuthorID        string         `db:"author_id" json:"author_id"`
	AuthorName      string         `db:"author_name" json:"author_name"`
	CreatedAt       string         `db:"created_at" json:"created_at"`
	Likes           JSONLikes      `db:"likes" json:"likes"`
	Reactions       JSONReactions  `db:"reactions" json:"reactions"`
	GroupID         sql.NullString `db:"group_id" json:"group_id"`
	GroupOrder      sql.NullInt64  `db:"group_order" json:"group_order"`
	CreatedAtEpoch  int64          `db:"created_at_epoch" json:"created_at_epoch"`
	Votes           int            `db:"votes" json:"votes"`
	Order           int            `db:"card_order" json:"order"`
	IsGroupHead     bool           `db:"is_group_head" json:"is_group_head"`
}

// GroupState derives the card's grouping state from its linkage fields.
func (c *Card) GroupState() GroupState {
	if c == nil || !c.GroupID.Valid {
		return StateUngrouped
	}
	if c.IsGroupHead {
		return StateGroupHead
	}
	return StateGroupMember
}

// IsGrouped reports whether the card is a head or member of any group.
func (c *Card) IsGrouped() bool {
	return c.GroupState() != StateUngrouped
}

// MarkHead links the card to groupID as its head.
func (c *Card) MarkHead(groupID string) {
	c.GroupID = sql.NullString{String: groupID, Valid: true}
	c.IsGroupHead = true
	c.GroupOrder = sql.NullInt64{}
}

// MarkMember links the card to groupID as a member at the given position.
func (c *Card) MarkMember(groupID string, order int) {
	c.GroupID = sql.NullString{String: groupID, Valid: true}
	c.IsGroupHead = false
	c.GroupOrder = sql.NullInt64{Int64: int64(order), Valid: true}
}

// Ungroup clears every grouping field.
func (c *Card) Ungroup() {
	c.GroupID = sql.NullString{}
	c.IsGroupHead = false
	c.GroupOrder = sql.NullInt64{}
}

// ToggleLike adds a like for like.UserID or removes the existing one.
// Returns true when the like was added.
func (c *Card) ToggleLike(like Like) bool {
	for i, l := range c.Likes {
		if l.UserID == like.UserID {
			c.Likes = append(c.Likes[:i:i], c.Likes[i+1:]...)
			return false
		}
	}
	c.Likes = append(c.Likes, like)
	return true
}

// SetReaction stores r, replacing any earlier reaction by the same user.
func (c *Card) SetReaction(r Reaction) {
	for i, existing := range c.Reactions {
		if existing.UserID == r.UserID {
			c.Reactions[i] = r
			return
		}
	}
	c.Reactions = append(c.Reactions, r)
}

// RemoveReaction drops the reaction of userID. Returns false if there was none.
func (c *Card) RemoveReaction(userID string) bool {
	for i, existing := range c.Reactions {
		if existing.UserID == userID {
			c.Reactions = append(c.Reactions[:i:i], c.Reactions[i+1:]...)
			return true
		}
	}
	return false
}

// CardJSON is a JSON-friendly representation of Card.
type CardJSON struct {
	ID              string     `json:"id"`
	RetrospectiveID string     `json:"retrospective_id"`
	Content         string     `json:"content"`
	Column          Column     `json:"column"`
	AuthorID        string     `json:"author_id,omitempty"`
	AuthorName      string     `json:"author_name,omitempty"`
	CreatedAt       string     `json:"created_at"`
	CreatedAtEpoch  int64      `json:"created_at_epoch"`
	Votes           int        `json:"votes"`
	Likes           []Like     `json:"likes"`
	Reactions       []Reaction `json:"reactions"`
	GroupID         *string    `json:"group_id"`
	IsGroupHead     bool       `json:"is_group_head"`
	GroupOrder      *int64     `json:"group_order,omitempty"`
	Order           int        `json:"order"`
}

// MarshalJSON implements json.Marshaler for Card.
func (c *Card) MarshalJSON() ([]byte, error) {
	j := CardJSON{
		ID:              c.ID,
		RetrospectiveID: c.RetrospectiveID,
		Content:         c.Content,
		Column:          c.Column,
		AuthorID:        c.AuthorID,
		AuthorName:      c.AuthorName,
		CreatedAt:       c.CreatedAt,
		CreatedAtEpoch:  c.CreatedAtEpoch,
		Votes:           c.Votes,
		Likes:           c.Likes,
		Reactions:       c.Reactions,
		IsGroupHead:     c.IsGroupHead,
		Order:           c.Order,
	}
	if j.Likes == nil {
		j.Likes = []Like{}
	}
	if j.Reactions == nil {
		j.Reactions = []Reaction{}
	}
	if c.GroupID.Valid {
		id := c.GroupID.String
		j.GroupID = &id
	}
	if c.GroupOrder.Valid {
		order := c.GroupOrder.Int64
		j.GroupOrder = &order
	}
	return json.Marshal(j)
}

// CardDraft holds the caller-supplied fields of a new card.
type CardDraft struct {
	RetrospectiveID string `json:"retrospective_id"`
	Column          Column `json:"column"`
	Content         string `json:"content"`
	AuthorID        string `json:"author_id"`
	AuthorName      string `json:"author_name"`
}
