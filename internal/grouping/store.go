package grouping

import (
	"context"

	"github.com/thebtf/retroboard/pkg/models"
)

// Store is the transaction boundary lifecycle operations run against.
//
// InTx runs fn inside one transaction. If fn returns an error, or the commit fails,
// none of the writes staged through tx are visible afterwards.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and staged writes available inside a transaction.
// Getters return (nil, nil) when the row does not exist.
type Tx interface {
	GetCard(id string) (*models.Card, error)
	GetGroup(id string) (*models.Group, error)
	ListCards(retrospectiveID string) ([]*models.Card, error)
	ListGroups(retrospectiveID string) ([]*models.Group, error)

	SaveCard(card *models.Card) error
	CreateGroup(group *models.Group) error
	SaveGroup(group *models.Group) error
	DeleteGroup(id string) error
}
