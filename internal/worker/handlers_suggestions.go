package worker

import (
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/retroboard/internal/db/gorm"
	"github.com/thebtf/retroboard/internal/events"
	"github.com/thebtf/retroboard/internal/grouping"
	"github.com/thebtf/retroboard/pkg/models"
	"github.com/thebtf/retroboard/pkg/similarity"
)

// SuggestionsResponse is returned by a suggestion run.
type SuggestionsResponse struct {
	Suggestions []*models.GroupSuggestion `json:"suggestions"`
	Count       int                       `json:"count"`
	Config      similarity.Config         `json:"config"`
}

// AcceptSuggestionRequest is the request body for turning a suggestion into a group.
// The first card becomes the head.
type AcceptSuggestionRequest struct {
	CardIDs []string `json:"card_ids"`
	Title   string   `json:"title,omitempty"`
}

// handleFindSuggestions proposes groups of similar ungrouped cards.
// The optional body overrides any field of the current suggestion defaults.
func (s *Service) handleFindSuggestions(w http.ResponseWriter, r *http.Request) {
	cfg := s.SuggestDefaults()
	if err := decodeJSON(r, &cfg, true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", grouping.ErrInvalidArgument, err))
		return
	}

	retro, ok := s.requireRetrospective(w, r)
	if !ok {
		return
	}

	// Identical concurrent runs on one board share a single scan.
	key, err := json.Marshal(cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err, shared := s.suggestGroup.Do(retro.ID+"|"+string(key), func() (interface{}, error) {
		ctx, cancel := s.store.WithTimeout(r.Context(), gorm.DefaultQueryTimeout, "load_ungrouped_cards")
		defer cancel()

		cards, err := s.cards.GetUngroupedCards(ctx, retro.ID, "")
		if err != nil {
			return nil, err
		}
		if s.suggestRuns != nil {
			s.suggestRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("algorithm", string(cfg.Algorithm))))
		}
		return similarity.FindSuggestions(cards, cfg), nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	suggestions := result.([]*models.GroupSuggestion)
	if suggestions == nil {
		suggestions = []*models.GroupSuggestion{}
	}
	log.Debug().
		Str("retrospective_id", retro.ID).
		Int("count", len(suggestions)).
		Bool("shared", shared).
		Msg("Suggestions computed")

	s.publish(r.Context(), events.SuggestionsFound, retro.ID, "", "", map[string]int{"count": len(suggestions)})
	writeJSON(w, SuggestionsResponse{
		Suggestions: suggestions,
		Count:       len(suggestions),
		Config:      cfg,
	})
}

// handleAcceptSuggestion materializes a suggestion as a group.
func (s *Service) handleAcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	var req AcceptSuggestionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	group, err := s.groups.AcceptSuggestion(
		r.Context(),
		chi.URLParam(r, "id"),
		&models.GroupSuggestion{CardIDs: req.CardIDs},
		currentUser(r).ID,
		req.Title,
	)
	s.replyGroupCreated(w, r, group, err)
}
