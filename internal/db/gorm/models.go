package gorm

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/retroboard/pkg/models"
)

// GORM Models

// JSON column types (JSONStringArray, JSONLikes, JSONReactions) come from pkg/models
// and implement sql.Scanner and driver.Valuer.

// Retrospective is a board row.
type Retrospective struct {
	ID             string `gorm:"primaryKey;type:varchar(64)"`
	Title          string `gorm:"type:text;not null"`
	CreatedBy      string `gorm:"type:varchar(128)"`
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_retrospectives_created,sort:desc;not null"`
}

func (Retrospective) TableName() string { return "retrospectives" }

// BeforeCreate hook to ensure the id and timestamps are set.
func (r *Retrospective) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAtEpoch == 0 {
		r.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// Card is a card row. Group linkage lives on the card so one query loads a board.
// Field order optimized for memory alignment (fieldalignment).
type Card struct {
	ID              string               `gorm:"primaryKey;type:varchar(64)"`
	RetrospectiveID string               `gorm:"type:varchar(64);index:idx_cards_retro_column,priority:1;not null"`
	Column          models.Column        `gorm:"column:board_column;type:varchar(16);check:board_column IN ('helped', 'hindered', 'improve');index:idx_cards_retro_column,priority:2;not null"`
	Content         string               `gorm:"type:text;not null"`
	AuthorID        string               `gorm:"type:varchar(128)"`
	AuthorName      string               `gorm:"type:varchar(256)"`
	CreatedAt       string               `gorm:"not null"`
	Likes           models.JSONLikes     `gorm:"type:text"`
	Reactions       models.JSONReactions `gorm:"type:text"`
	GroupID         sql.NullString       `gorm:"type:varchar(64)"`
	GroupOrder      sql.NullInt64
	CreatedAtEpoch  int64 `gorm:"index:idx_cards_created;not null"`
	Votes           int   `gorm:"not null"`
	Order           int   `gorm:"column:card_order;not null"`
	IsGroupHead     bool  `gorm:"not null"`
}

func (Card) TableName() string { return "cards" }

// BeforeCreate hook to ensure the id and timestamps are set.
func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// CardGroup is a group row. "groups" is reserved in several SQL dialects.
type CardGroup struct {
	ID              string                 `gorm:"primaryKey;type:varchar(64)"`
	RetrospectiveID string                 `gorm:"type:varchar(64);index:idx_card_groups_retro;not null"`
	Column          models.Column          `gorm:"column:board_column;type:varchar(16);not null"`
	HeadCardID      string                 `gorm:"type:varchar(64);uniqueIndex;not null"`
	MemberCardIDs   models.JSONStringArray `gorm:"type:text"`
	Title           sql.NullString         `gorm:"type:text"`
	CreatedAt       string                 `gorm:"not null"`
	CreatedBy       string                 `gorm:"type:varchar(128)"`
	CreatedAtEpoch  int64                  `gorm:"not null"`
	Order           int                    `gorm:"column:group_order;not null"`
	IsCollapsed     bool                   `gorm:"not null"`
}

func (CardGroup) TableName() string { return "card_groups" }

func toModelRetrospective(r *Retrospective) *models.Retrospective {
	return &models.Retrospective{
		ID:             r.ID,
		Title:          r.Title,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt,
		CreatedAtEpoch: r.CreatedAtEpoch,
	}
}

func toModelRetrospectives(rows []Retrospective) []*models.Retrospective {
	out := make([]*models.Retrospective, len(rows))
	for i := range rows {
		out[i] = toModelRetrospective(&rows[i])
	}
	return out
}

func toModelCard(c *Card) *models.Card {
	return &models.Card{
		ID:              c.ID,
		RetrospectiveID: c.RetrospectiveID,
		Content:         c.Content,
		Column:          c.Column,
		AuthorID:        c.AuthorID,
		AuthorName:      c.AuthorName,
		CreatedAt:       c.CreatedAt,
		Likes:           c.Likes,
		Reactions:       c.Reactions,
		GroupID:         c.GroupID,
		GroupOrder:      c.GroupOrder,
		CreatedAtEpoch:  c.CreatedAtEpoch,
		Votes:           c.Votes,
		Order:           c.Order,
		IsGroupHead:     c.IsGroupHead,
	}
}

func toModelCards(rows []Card) []*models.Card {
	out := make([]*models.Card, len(rows))
	for i := range rows {
		out[i] = toModelCard(&rows[i])
	}
	return out
}

func fromModelCard(c *models.Card) *Card {
	return &Card{
		ID:              c.ID,
		RetrospectiveID: c.RetrospectiveID,
		Column:          c.Column,
		Content:         c.Content,
		AuthorID:        c.AuthorID,
		AuthorName:      c.AuthorName,
		CreatedAt:       c.CreatedAt,
		Likes:           c.Likes,
		Reactions:       c.Reactions,
		GroupID:         c.GroupID,
		GroupOrder:      c.GroupOrder,
		CreatedAtEpoch:  c.CreatedAtEpoch,
		Votes:           c.Votes,
		Order:           c.Order,
		IsGroupHead:     c.IsGroupHead,
	}
}

func toModelGroup(g *CardGroup) *models.Group {
	return &models.Group{
		ID:              g.ID,
		RetrospectiveID: g.RetrospectiveID,
		Column:          g.Column,
		HeadCardID:      g.HeadCardID,
		MemberCardIDs:   g.MemberCardIDs,
		Title:           g.Title,
		CreatedAt:       g.CreatedAt,
		CreatedBy:       g.CreatedBy,
		CreatedAtEpoch:  g.CreatedAtEpoch,
		Order:           g.Order,
		IsCollapsed:     g.IsCollapsed,
	}
}

func toModelGroups(rows []CardGroup) []*models.Group {
	out := make([]*models.Group, len(rows))
	for i := range rows {
		out[i] = toModelGroup(&rows[i])
	}
	return out
}

func fromModelGroup(g *models.Group) *CardGroup {
	return &CardGroup{
		ID:              g.ID,
		RetrospectiveID: g.RetrospectiveID,
		Column:          g.Column,
		HeadCardID:      g.HeadCardID,
		MemberCardIDs:   g.MemberCardIDs,
		Title:           g.Title,
		CreatedAt:       g.CreatedAt,
		CreatedBy:       g.CreatedBy,
		CreatedAtEpoch:  g.CreatedAtEpoch,
		Order:           g.Order,
		IsCollapsed:     g.IsCollapsed,
	}
}
