package gorm

import (
	"context"

	"gorm.io/gorm"

	"github.com/thebtf/retroboard/internal/grouping"
	"github.com/thebtf/retroboard/pkg/models"
)

// GroupStore is the transactional backend of the group lifecycle.
type GroupStore struct {
	db *gorm.DB
}

var _ grouping.Store = (*GroupStore)(nil)

// NewGroupStore creates a new group store.
func NewGroupStore(store *Store) *GroupStore {
	return &GroupStore{db: store.DB}
}

// InTx runs fn in one database transaction. Any error rolls back every staged write.
func (s *GroupStore) InTx(ctx context.Context, fn func(tx grouping.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&groupTx{db: tx})
	})
}

// ListGroups returns the groups of a board in display order, outside any transaction.
func (s *GroupStore) ListGroups(ctx context.Context, retrospectiveID string) ([]*models.Group, error) {
	return (&groupTx{db: s.db.WithContext(ctx)}).ListGroups(retrospectiveID)
}

// groupTx implements grouping.Tx on a GORM transaction.
type groupTx struct {
	db *gorm.DB
}

func (t *groupTx) GetCard(id string) (*models.Card, error) {
	var row Card
	found, err := first(forUpdate(t.db), &row, id)
	if err != nil || !found {
		return nil, err
	}
	return toModelCard(&row), nil
}

func (t *groupTx) GetGroup(id string) (*models.Group, error) {
	var row CardGroup
	found, err := first(forUpdate(t.db), &row, id)
	if err != nil || !found {
		return nil, err
	}
	return toModelGroup(&row), nil
}

func (t *groupTx) ListCards(retrospectiveID string) ([]*models.Card, error) {
	var rows []Card
	err := t.db.
		Where("retrospective_id = ?", retrospectiveID).
		Order("created_at_epoch ASC, card_order ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelCards(rows), nil
}

func (t *groupTx) ListGroups(retrospectiveID string) ([]*models.Group, error) {
	var rows []CardGroup
	err := t.db.
		Where("retrospective_id = ?", retrospectiveID).
		Order("group_order ASC, created_at_epoch ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelGroups(rows), nil
}

func (t *groupTx) SaveCard(card *models.Card) error {
	return t.db.Save(fromModelCard(card)).Error
}

func (t *groupTx) CreateGroup(group *models.Group) error {
	return t.db.Create(fromModelGroup(group)).Error
}

func (t *groupTx) SaveGroup(group *models.Group) error {
	return t.db.Save(fromModelGroup(group)).Error
}

func (t *groupTx) DeleteGroup(id string) error {
	return t.db.Delete(&CardGroup{}, "id = ?", id).Error
}
