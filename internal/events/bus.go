// Package events carries board change notifications between workers and SSE clients.
package events

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Event types.
const (
	BoardCreated     = "board.created"
	CardCreated      = "card.created"
	CardUpdated      = "card.updated"
	CardDeleted      = "card.deleted"
	GroupCreated     = "group.created"
	GroupUpdated     = "group.updated"
	GroupDeleted     = "group.deleted"
	SuggestionsFound = "suggestions.found"
)

// Event is one change on a board.
type Event struct {
	Type            string          `json:"type"`
	RetrospectiveID string          `json:"retrospective_id"`
	CardID          string          `json:"card_id,omitempty"`
	GroupID         string          `json:"group_id,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	Timestamp       int64           `json:"timestamp"`
}

// New builds an event, encoding data as its payload. A nil data leaves the payload empty.
func New(eventType, retrospectiveID string, data any) (Event, error) {
	ev := Event{
		Type:            eventType,
		RetrospectiveID: retrospectiveID,
		Timestamp:       time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return ev, err
		}
		ev.Data = raw
	}
	return ev, nil
}

// Handler receives delivered events.
type Handler func(Event)

// Bus publishes events and delivers them to subscribed handlers.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(h Handler)
	Close() error
}

// handlers is the subscriber list shared by the bus implementations.
type handlers struct {
	mu   sync.RWMutex
	list []Handler
}

func (h *handlers) add(fn Handler) {
	h.mu.Lock()
	h.list = append(h.list, fn)
	h.mu.Unlock()
}

func (h *handlers) deliver(ev Event) {
	h.mu.RLock()
	list := h.list
	h.mu.RUnlock()
	for _, fn := range list {
		fn(ev)
	}
}

// LocalBus delivers events in-process, synchronously.
type LocalBus struct {
	handlers handlers
}

// NewLocalBus creates an in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// Publish delivers ev to every handler before returning.
func (b *LocalBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.handlers.deliver(ev)
	return nil
}

// Subscribe registers h for every later event.
func (b *LocalBus) Subscribe(h Handler) {
	b.handlers.add(h)
}

// Close is a no-op.
func (b *LocalBus) Close() error {
	return nil
}
