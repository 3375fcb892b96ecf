// Package sse streams board events to connected browsers as Server-Sent Events.
package sse

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/retroboard/internal/events"
)

// KeepAliveInterval is how often an idle stream receives a comment line.
var KeepAliveInterval = 25 * time.Second

// Client represents a connected SSE client watching one board.
type Client struct {
	ID              string
	RetrospectiveID string
	Writer          http.ResponseWriter
	Flusher         http.Flusher
	Done            chan struct{}

	// mu serializes writes from broadcasts and keep-alives, and guards closing Done.
	mu sync.Mutex
}

// errClientClosed is returned by write once the client has been removed.
var errClientClosed = errors.New("sse client closed")

// write sends one message unless the client is already closed. Done is closed under
// mu, so no write reaches Writer after RemoveClient returns.
func (c *Client) write(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.Done:
		return errClientClosed
	default:
	}
	if _, err := c.Writer.Write([]byte(message)); err != nil {
		return err
	}
	c.Flusher.Flush()
	return nil
}

// Broadcaster manages SSE client connections and per-board message delivery.
type Broadcaster struct {
	clients map[string]*Client
	mu      sync.RWMutex
	nextID  int
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
	}
}

// AddClient adds a new SSE client connection for a board.
func (b *Broadcaster) AddClient(w http.ResponseWriter, retrospectiveID string) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("client-%d", b.nextID)
	client := &Client{
		ID:              id,
		RetrospectiveID: retrospectiveID,
		Writer:          w,
		Flusher:         flusher,
		Done:            make(chan struct{}),
	}
	b.clients[id] = client
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("client_id", id).
		Str("retrospective_id", retrospectiveID).
		Int("total_clients", clientCount).
		Msg("SSE client connected")

	return client, nil
}

// RemoveClient removes a client connection. Safe to call more than once.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	_, exists := b.clients[client.ID]
	delete(b.clients, client.ID)
	clientCount := len(b.clients)
	b.mu.Unlock()

	if !exists {
		return
	}
	client.mu.Lock()
	close(client.Done)
	client.mu.Unlock()

	log.Debug().
		Str("client_id", client.ID).
		Int("total_clients", clientCount).
		Msg("SSE client disconnected")
}

// Broadcast sends an event to every client watching its board.
func (b *Broadcaster) Broadcast(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE event")
		return
	}
	message := fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data)

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		if client.RetrospectiveID == ev.RetrospectiveID {
			clients = append(clients, client)
		}
	}
	b.mu.RUnlock()

	var deadClients []*Client
	for _, client := range clients {
		err := client.write(message)
		if errors.Is(err, errClientClosed) {
			continue
		}
		if err != nil {
			log.Debug().
				Str("client_id", client.ID).
				Err(err).
				Msg("Failed to write to SSE client, marking for removal")
			deadClients = append(deadClients, client)
		}
	}

	for _, client := range deadClients {
		b.RemoveClient(client)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// BoardClientCount returns the number of clients watching one board.
func (b *Broadcaster) BoardClientCount(retrospectiveID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, client := range b.clients {
		if client.RetrospectiveID == retrospectiveID {
			n++
		}
	}
	return n
}

// HandleSSE streams the events of the board named by the "retrospective" query parameter.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	retrospectiveID := r.URL.Query().Get("retrospective")
	if retrospectiveID == "" {
		http.Error(w, "retrospective is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client, err := b.AddClient(w, retrospectiveID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.RemoveClient(client)

	hello := fmt.Sprintf("event: connected\ndata: {\"client_id\":%q,\"retrospective_id\":%q}\n\n", client.ID, retrospectiveID)
	if err := client.write(hello); err != nil {
		return
	}

	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case <-ticker.C:
			if err := client.write(": keep-alive\n\n"); err != nil {
				return
			}
		}
	}
}
