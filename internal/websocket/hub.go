package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sprintboard/internal/domain"
)

// Message types
const (
	MessageTypeBoardUpdate = "board_update"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

// globalTopic is the subscription key for the worldwide board
const globalTopic = "global"

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Country   string      `json:"country,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// BoardUpdate carries a refreshed board slice for broadcast
type BoardUpdate struct {
	Country string       `json:"country"`
	Rows    []domain.Row `json:"rows"`
}

// Hub maintains the set of active clients and broadcasts board updates.
// Clients subscribe per country code; the worldwide board uses "global".
type Hub struct {
	// Registered clients by country subscription
	subscribers map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu sync.RWMutex

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client  *Client
	country string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		subscribers: make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for country, clients := range h.subscribers {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.subscribers, country)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.subscribers[req.country]; !ok {
				h.subscribers[req.country] = make(map[*Client]bool)
			}
			h.subscribers[req.country][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "country", req.country)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.subscribers[req.country]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.subscribers, req.country)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "country", req.country)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the subscribers of its country
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	if clients, ok := h.subscribers[message.Country]; ok {
		for client := range clients {
			select {
			case client.send <- data:
			default:
				// Client's buffer is full, skip
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// BroadcastBoard pushes a refreshed board slice to subscribers of the
// country. An empty country addresses the worldwide board.
func (h *Hub) BroadcastBoard(country string, rows []domain.Row) {
	topic := country
	if topic == "" {
		topic = globalTopic
	}
	message := &Message{
		Type:    MessageTypeBoardUpdate,
		Country: topic,
		Data: BoardUpdate{
			Country: topic,
			Rows:    rows,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a country's board subscription
func (h *Hub) Subscribe(client *Client, country string) {
	h.subscribe <- &subscriptionRequest{
		client:  client,
		country: country,
	}
}

// Unsubscribe removes a client from a country's board subscription
func (h *Hub) Unsubscribe(client *Client, country string) {
	h.unsubscribe <- &subscriptionRequest{
		client:  client,
		country: country,
	}
}

// GetSubscriberCount returns the number of subscribers for a country
func (h *Hub) GetSubscriberCount(country string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.subscribers[country]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
