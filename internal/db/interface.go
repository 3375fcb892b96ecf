// Package db defines database interfaces for the retroboard stores.
package db

import (
	"context"

	"github.com/thebtf/retroboard/pkg/models"
)

// RetrospectiveStore defines board operations.
type RetrospectiveStore interface {
	CreateRetrospective(ctx context.Context, title, createdBy string) (*models.Retrospective, error)
	GetRetrospective(ctx context.Context, id string) (*models.Retrospective, error)
	ListRetrospectives(ctx context.Context, limit, offset int) ([]*models.Retrospective, error)
}

// CardReader defines read operations for cards.
type CardReader interface {
	GetCard(ctx context.Context, id string) (*models.Card, error)
	GetCardsByRetrospective(ctx context.Context, retrospectiveID string) ([]*models.Card, error)
	GetUngroupedCards(ctx context.Context, retrospectiveID string, column models.Column) ([]*models.Card, error)
}

// CardWriter defines write operations for cards.
type CardWriter interface {
	CreateCard(ctx context.Context, draft models.CardDraft) (*models.Card, error)
	UpdateContent(ctx context.Context, id, content string) (*models.Card, error)
	Vote(ctx context.Context, id string, delta int) (*models.Card, error)
	ToggleLike(ctx context.Context, id, userID, username string) (*models.Card, bool, error)
	SetReaction(ctx context.Context, id, userID, username, emoji string) (*models.Card, error)
	RemoveReaction(ctx context.Context, id, userID string) (*models.Card, error)
	DeleteCard(ctx context.Context, id string) (*models.Card, error)
}

// CardStore combines read and write operations for cards.
type CardStore interface {
	CardReader
	CardWriter
}
