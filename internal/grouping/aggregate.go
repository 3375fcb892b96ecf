package grouping

import "github.com/thebtf/retroboard/pkg/models"

// Aggregate projects a group's totals over the given cards.
//
// Only the head and members of group are counted, head first then member order; other
// cards in the input are ignored, as are member ids with no matching card. The result
// depends only on its inputs.
func Aggregate(group *models.Group, cards []*models.Card) *models.GroupWithTotals {
	out := &models.GroupWithTotals{
		Group:        group,
		Cards:        []*models.Card{},
		AllReactions: []models.Reaction{},
	}
	if group == nil {
		return out
	}

	byID := make(map[string]*models.Card, len(cards))
	for _, c := range cards {
		if c != nil {
			byID[c.ID] = c
		}
	}

	for _, id := range group.CardIDs() {
		c, ok := byID[id]
		if !ok {
			continue
		}
		out.Cards = append(out.Cards, c)
		out.TotalVotes += c.Votes
		out.TotalLikes += len(c.Likes)
		out.AllReactions = append(out.AllReactions, c.Reactions...)
	}
	return out
}
