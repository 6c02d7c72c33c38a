// Package events carries process-wide notifications such as sync completion
// and connectivity changes to whoever is listening: the agent's UI socket,
// the CLI, tests.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Topics group related event types for subscribers.
const (
	TopicSync         = "sync"
	TopicConnectivity = "connectivity"
)

// Event types.
const (
	SyncCompleted       = "sync.completed"
	SyncAuthRequired    = "sync.auth_required"
	ConnectivityOnline  = "connectivity.online"
	ConnectivityOffline = "connectivity.offline"
)

// Event is one notification. Data is the JSON encoding of the typed
// payload for the event type.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncCompletedData is the payload of a sync.completed event.
type SyncCompletedData struct {
	Uploaded     int `json:"uploaded"`
	Failed       int `json:"failed"`
	TotalPending int `json:"totalPending"`
}

// AuthRequiredData is the payload of a sync.auth_required event, published
// when a pass stops because the session holds no upload credential.
type AuthRequiredData struct {
	Reason string `json:"reason"`
}

// ConnectivityData is the payload of connectivity events.
type ConnectivityData struct {
	Online bool `json:"online"`
}

// New builds an event with payload encoded into Data.
func New(eventType, topic string, payload interface{}) (Event, error) {
	e := Event{Type: eventType, Topic: topic, Timestamp: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
		}
		e.Data = raw
	}
	return e, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Handler receives events from a Bus.
type Handler func(ctx context.Context, e Event)

// Bus fans each published event out to every subscribed handler, in the
// publishing goroutine. Handlers must not block.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]Handler
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
	return nil
}
