package gorm

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/thebtf/retroboard/internal/grouping"
	"github.com/thebtf/retroboard/pkg/models"
)

// RetrospectiveStore provides board database operations using GORM.
type RetrospectiveStore struct {
	db *gorm.DB
}

// NewRetrospectiveStore creates a new retrospective store.
func NewRetrospectiveStore(store *Store) *RetrospectiveStore {
	return &RetrospectiveStore{db: store.DB}
}

// CreateRetrospective creates an empty board.
func (s *RetrospectiveStore) CreateRetrospective(ctx context.Context, title, createdBy string) (*models.Retrospective, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", grouping.ErrInvalidArgument)
	}

	row := &Retrospective{
		Title:     title,
		CreatedBy: createdBy,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return toModelRetrospective(row), nil
}

// GetRetrospective retrieves a board by ID. Returns nil if it does not exist.
func (s *RetrospectiveStore) GetRetrospective(ctx context.Context, id string) (*models.Retrospective, error) {
	var row Retrospective
	found, err := first(s.db.WithContext(ctx), &row, id)
	if err != nil || !found {
		return nil, err
	}
	return toModelRetrospective(&row), nil
}

// ListRetrospectives returns boards, newest first.
func (s *RetrospectiveStore) ListRetrospectives(ctx context.Context, limit, offset int) ([]*models.Retrospective, error) {
	if limit <= 0 || limit > MaxPaginationLimit {
		limit = MaxPaginationLimit
	}

	var rows []Retrospective
	err := s.db.WithContext(ctx).
		Order("created_at_epoch DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelRetrospectives(rows), nil
}
