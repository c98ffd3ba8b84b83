package events

import (
	"context"
	"sync"
	"time"

	"referlut-marketplace/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventPageLoaded is emitted when a listing page finishes loading
	EventPageLoaded EventType = "page.loaded"
	// EventTitleEnriched is emitted when an offer's title enrichment completes
	EventTitleEnriched EventType = "offer.title_enriched"
	// EventTotalEnriched is emitted when an offer's slot-count enrichment completes
	EventTotalEnriched EventType = "offer.total_enriched"
	// EventOfferCreated is emitted when a user creates an offer
	EventOfferCreated EventType = "offer.created"
	// EventMessageSent is emitted when a conversation message is recorded
	EventMessageSent EventType = "conversation.message_sent"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// PageLoadedData contains data for page loaded events.
type PageLoadedData struct {
	Page   int
	Count  int
	Status models.PageStatus
}

// OfferEnrichedData contains data for title/total enrichment events.
// Consumers subscribe to these instead of polling offer loading flags.
type OfferEnrichedData struct {
	OfferID  string
	Page     int
	Title    string
	Total    int
	Featured bool
	Fallback bool // true when the enrichment degraded to a fallback value
}

// OfferCreatedData contains data for offer created events.
type OfferCreatedData struct {
	Offer models.Offer
}

// MessageSentData contains data for message sent events.
type MessageSentData struct {
	ConversationID string
	OfferID        string
	SenderID       string
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Handlers run asynchronously so enrichment goroutines never block on a
	// slow subscriber.
	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				_ = err
			}
		}(handler)
	}
}

// PublishPageLoaded publishes a page loaded event.
func (m *Manager) PublishPageLoaded(ctx context.Context, page, count int, status models.PageStatus) {
	m.Publish(ctx, EventPageLoaded, PageLoadedData{Page: page, Count: count, Status: status})
}

// PublishTitleEnriched publishes a title enrichment completion event.
func (m *Manager) PublishTitleEnriched(ctx context.Context, data OfferEnrichedData) {
	m.Publish(ctx, EventTitleEnriched, data)
}

// PublishTotalEnriched publishes a slot-count enrichment completion event.
func (m *Manager) PublishTotalEnriched(ctx context.Context, data OfferEnrichedData) {
	m.Publish(ctx, EventTotalEnriched, data)
}

// PublishOfferCreated publishes an offer created event.
func (m *Manager) PublishOfferCreated(ctx context.Context, offer models.Offer) {
	m.Publish(ctx, EventOfferCreated, OfferCreatedData{Offer: offer})
}

// PublishMessageSent publishes a message sent event.
func (m *Manager) PublishMessageSent(ctx context.Context, conversationID, offerID, senderID string) {
	m.Publish(ctx, EventMessageSent, MessageSentData{
		ConversationID: conversationID,
		OfferID:        offerID,
		SenderID:       senderID,
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
