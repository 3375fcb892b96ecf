package gorm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/retroboard/internal/grouping"
	"github.com/thebtf/retroboard/pkg/models"
)

// MaxContentLength caps card content, in bytes.
const MaxContentLength = 2000

// CardStore provides card database operations using GORM.
type CardStore struct {
	db *gorm.DB
}

// NewCardStore creates a new card store.
func NewCardStore(store *Store) *CardStore {
	return &CardStore{db: store.DB}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content is required", grouping.ErrInvalidArgument)
	}
	if len(content) > MaxContentLength {
		return "", fmt.Errorf("%w: content exceeds %d bytes", grouping.ErrInvalidArgument, MaxContentLength)
	}
	return content, nil
}

// CreateCard adds a card at the end of its column.
func (s *CardStore) CreateCard(ctx context.Context, draft models.CardDraft) (*models.Card, error) {
	if !draft.Column.Valid() {
		return nil, fmt.Errorf("%w: unknown column %q", grouping.ErrInvalidArgument, draft.Column)
	}
	content, err := validateContent(draft.Content)
	if err != nil {
		return nil, err
	}

	row := &Card{
		RetrospectiveID: draft.RetrospectiveID,
		Column:          draft.Column,
		Content:         content,
		AuthorID:        draft.AuthorID,
		AuthorName:      draft.AuthorName,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var retro Retrospective
		found, err := first(tx, &retro, draft.RetrospectiveID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: retrospective %s", grouping.ErrNotFound, draft.RetrospectiveID)
		}

		var next struct{ Next int }
		err = tx.Model(&Card{}).
			Select("COALESCE(MAX(card_order) + 1, 0) AS next").
			Where("retrospective_id = ? AND board_column = ?", draft.RetrospectiveID, draft.Column).
			Scan(&next).Error
		if err != nil {
			return err
		}
		row.Order = next.Next

		return tx.Create(row).Error
	})
	if err != nil {
		return nil, err
	}
	return toModelCard(row), nil
}

// GetCard retrieves a card by ID. Returns nil if it does not exist.
func (s *CardStore) GetCard(ctx context.Context, id string) (*models.Card, error) {
	var row Card
	found, err := first(s.db.WithContext(ctx), &row, id)
	if err != nil || !found {
		return nil, err
	}
	return toModelCard(&row), nil
}

// GetCardsByRetrospective returns every card of a board in creation order.
func (s *CardStore) GetCardsByRetrospective(ctx context.Context, retrospectiveID string) ([]*models.Card, error) {
	var rows []Card
	err := s.db.WithContext(ctx).
		Where("retrospective_id = ?", retrospectiveID).
		Order("created_at_epoch ASC, card_order ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelCards(rows), nil
}

// GetUngroupedCards returns the cards of a board that belong to no group.
// An empty column selects every column.
func (s *CardStore) GetUngroupedCards(ctx context.Context, retrospectiveID string, column models.Column) ([]*models.Card, error) {
	query := s.db.WithContext(ctx).
		Where("retrospective_id = ? AND group_id IS NULL", retrospectiveID)
	if column != "" {
		query = query.Where("board_column = ?", column)
	}

	var rows []Card
	if err := query.Order("created_at_epoch ASC, card_order ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toModelCards(rows), nil
}

// UpdateContent replaces the text of a card.
func (s *CardStore) UpdateContent(ctx context.Context, id, content string) (*models.Card, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(c *models.Card) error {
		c.Content = content
		return nil
	})
}

// Vote adds delta to the vote count of a card. The count never drops below zero.
func (s *CardStore) Vote(ctx context.Context, id string, delta int) (*models.Card, error) {
	return s.mutate(ctx, id, func(c *models.Card) error {
		c.Votes = max(c.Votes+delta, 0)
		return nil
	})
}

// ToggleLike adds or removes the like of a user. Returns whether the card is now liked by them.
func (s *CardStore) ToggleLike(ctx context.Context, id, userID, username string) (*models.Card, bool, error) {
	var liked bool
	card, err := s.mutate(ctx, id, func(c *models.Card) error {
		liked = c.ToggleLike(models.Like{
			UserID:    userID,
			Username:  username,
			Timestamp: time.Now().UnixMilli(),
		})
		return nil
	})
	return card, liked, err
}

// SetReaction stores the reaction of a user, replacing an earlier one.
func (s *CardStore) SetReaction(ctx context.Context, id, userID, username, emoji string) (*models.Card, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji is required", grouping.ErrInvalidArgument)
	}
	return s.mutate(ctx, id, func(c *models.Card) error {
		c.SetReaction(models.Reaction{
			UserID:    userID,
			Username:  username,
			Emoji:     emoji,
			Timestamp: time.Now().UnixMilli(),
		})
		return nil
	})
}

// RemoveReaction clears the reaction of a user.
func (s *CardStore) RemoveReaction(ctx context.Context, id, userID string) (*models.Card, error) {
	return s.mutate(ctx, id, func(c *models.Card) error {
		if !c.RemoveReaction(userID) {
			return fmt.Errorf("%w: no reaction from %s", grouping.ErrNotFound, userID)
		}
		return nil
	})
}

// DeleteCard removes an ungrouped card. Grouped cards must leave their group first.
func (s *CardStore) DeleteCard(ctx context.Context, id string) (*models.Card, error) {
	var deleted *models.Card
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Card
		found, err := first(forUpdate(tx), &row, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: card %s", grouping.ErrNotFound, id)
		}
		if row.GroupID.Valid {
			return fmt.Errorf("%w: card %s is in group %s", grouping.ErrPrecondition, id, row.GroupID.String)
		}
		if err := tx.Delete(&Card{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = toModelCard(&row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// mutate runs a read-modify-write on one card inside a transaction.
func (s *CardStore) mutate(ctx context.Context, id string, fn func(c *models.Card) error) (*models.Card, error) {
	var out *models.Card
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Card
		found, err := first(forUpdate(tx), &row, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: card %s", grouping.ErrNotFound, id)
		}

		card := toModelCard(&row)
		if err := fn(card); err != nil {
			return err
		}
		if err := tx.Save(fromModelCard(card)).Error; err != nil {
			return err
		}
		out = card
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
