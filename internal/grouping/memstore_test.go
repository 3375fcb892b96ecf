package grouping

import (
	"context"
	"errors"
	"sort"

	"github.com/thebtf/retroboard/pkg/models"
)

var errInjected = errors.New("injected write failure")

// memStore is an in-memory Store. Writes are staged per transaction and applied on commit.
// failAfter > 0 makes the failAfter-th write of the next transaction fail.
type memStore struct {
	cards     map[string]*models.Card
	groups    map[string]*models.Group
	failAfter int
}

func newMemStore(cards ...*models.Card) *memStore {
	s := &memStore{
		cards:  make(map[string]*models.Card),
		groups: make(map[string]*models.Group),
	}
	for _, c := range cards {
		s.cards[c.ID] = cloneCard(c)
	}
	return s
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		store:     s,
		cards:     make(map[string]*models.Card),
		groups:    make(map[string]*models.Group),
		deleted:   make(map[string]bool),
		failAfter: s.failAfter,
	}
	s.failAfter = 0
	if err := fn(tx); err != nil {
		return err
	}
	for id, c := range tx.cards {
		s.cards[id] = c
	}
	for id, g := range tx.groups {
		s.groups[id] = g
	}
	for id := range tx.deleted {
		delete(s.groups, id)
	}
	return nil
}

func (s *memStore) card(id string) *models.Card {
	if c, ok := s.cards[id]; ok {
		return cloneCard(c)
	}
	return nil
}

func (s *memStore) group(id string) *models.Group {
	if g, ok := s.groups[id]; ok {
		return cloneGroup(g)
	}
	return nil
}

type memTx struct {
	store     *memStore
	cards     map[string]*models.Card
	groups    map[string]*models.Group
	deleted   map[string]bool
	writes    int
	failAfter int
}

func (t *memTx) write() error {
	t.writes++
	if t.failAfter > 0 && t.writes >= t.failAfter {
		return errInjected
	}
	return nil
}

func (t *memTx) GetCard(id string) (*models.Card, error) {
	if c, ok := t.cards[id]; ok {
		return cloneCard(c), nil
	}
	return t.store.card(id), nil
}

func (t *memTx) GetGroup(id string) (*models.Group, error) {
	if t.deleted[id] {
		return nil, nil
	}
	if g, ok := t.groups[id]; ok {
		return cloneGroup(g), nil
	}
	return t.store.group(id), nil
}

func (t *memTx) ListCards(retrospectiveID string) ([]*models.Card, error) {
	var out []*models.Card
	for id := range t.store.cards {
		c, _ := t.GetCard(id)
		if c.RetrospectiveID == retrospectiveID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtEpoch < out[j].CreatedAtEpoch })
	return out, nil
}

func (t *memTx) ListGroups(retrospectiveID string) ([]*models.Group, error) {
	ids := make(map[string]bool)
	for id := range t.store.groups {
		ids[id] = true
	}
	for id := range t.groups {
		ids[id] = true
	}
	var out []*models.Group
	for id := range ids {
		g, _ := t.GetGroup(id)
		if g != nil && g.RetrospectiveID == retrospectiveID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (t *memTx) SaveCard(card *models.Card) error {
	if err := t.write(); err != nil {
		return err
	}
	t.cards[card.ID] = cloneCard(card)
	return nil
}

func (t *memTx) CreateGroup(group *models.Group) error {
	if err := t.write(); err != nil {
		return err
	}
	t.groups[group.ID] = cloneGroup(group)
	return nil
}

func (t *memTx) SaveGroup(group *models.Group) error {
	if err := t.write(); err != nil {
		return err
	}
	t.groups[group.ID] = cloneGroup(group)
	return nil
}

func (t *memTx) DeleteGroup(id string) error {
	if err := t.write(); err != nil {
		return err
	}
	delete(t.groups, id)
	t.deleted[id] = true
	return nil
}

func cloneCard(c *models.Card) *models.Card {
	cp := *c
	cp.Likes = append(models.JSONLikes(nil), c.Likes...)
	cp.Reactions = append(models.JSONReactions(nil), c.Reactions...)
	return &cp
}

func cloneGroup(g *models.Group) *models.Group {
	cp := *g
	cp.MemberCardIDs = append(models.JSONStringArray{}, g.MemberCardIDs...)
	return &cp
}
