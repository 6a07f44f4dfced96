package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType represents the type of ledger event
type EventType string

const (
	EventAccountRegistered EventType = "account_registered"
	EventTokenDebited      EventType = "token_debited"
	EventTokensGranted     EventType = "tokens_granted"
	EventHeartbeat         EventType = "heartbeat"
)

// Event represents an event to be sent to subscribed clients
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Client represents a subscribed client. Messages carries JSON-encoded
// events; the SSE handler adds its own framing, the websocket feed
// sends them as text frames.
type Client struct {
	ID       string
	Messages chan []byte
}

// Broker manages client subscriptions and event broadcasting
type Broker struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	done       chan struct{}
	mu         sync.RWMutex
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	b := &Broker{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 100),
		done:       make(chan struct{}),
	}
	go b.run()
	return b
}

// run handles client registration and event broadcasting
func (b *Broker) run() {
	heartbeatTicker := time.NewTicker(30 * time.Second)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-b.done:
			// Graceful shutdown - close all client channels
			b.mu.Lock()
			for _, client := range b.clients {
				close(client.Messages)
			}
			b.clients = make(map[string]*Client)
			b.mu.Unlock()
			log.Debug().Msg("Event broker stopped")
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client.ID] = client
			b.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Int("total_clients", len(b.clients)).Msg("Event client subscribed")

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client.ID]; ok {
				delete(b.clients, client.ID)
				close(client.Messages)
			}
			b.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Int("total_clients", len(b.clients)).Msg("Event client unsubscribed")

		case event := <-b.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("Failed to marshal event")
				continue
			}

			b.mu.RLock()
			for _, client := range b.clients {
				select {
				case client.Messages <- data:
				default:
					// Client buffer full, skip this message
					log.Warn().Str("client_id", client.ID).Msg("Event client buffer full, dropping message")
				}
			}
			b.mu.RUnlock()

		case <-heartbeatTicker.C:
			b.Publish(Event{Type: EventHeartbeat, Data: map[string]any{"time": time.Now().Unix()}})
		}
	}
}

// Publish sends an event to all subscribed clients
func (b *Broker) Publish(event Event) {
	select {
	case b.broadcast <- event:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("Broadcast channel full, dropping event")
	}
}

// Subscribe registers a new client with the broker
func (b *Broker) Subscribe() *Client {
	client := &Client{
		ID:       uuid.NewString(),
		Messages: make(chan []byte, 32),
	}
	select {
	case b.register <- client:
	case <-b.done:
		close(client.Messages)
	}
	return client
}

// Unsubscribe removes a client. Safe to call during shutdown.
func (b *Broker) Unsubscribe(client *Client) {
	select {
	case b.unregister <- client:
	case <-b.done:
	}
}

// Stop gracefully shuts down the broker
func (b *Broker) Stop() {
	close(b.done)
}

// ServeHTTP handles SSE connections
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	client := b.Subscribe()
	defer b.Unsubscribe(client)

	// Send initial connection event
	initial, _ := json.Marshal(Event{
		Type: "connected",
		Data: map[string]any{
			"client_id": client.ID,
			"time":      time.Now().Unix(),
		},
	})
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", initial)
	flusher.Flush()

	// Stream events to client
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-client.Messages:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of subscribed clients
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
