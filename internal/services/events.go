// Package services implements the configuration and pipeline services:
// application settings, the encoder/provider/output registries, the
// streaming and recording pipelines, and the performance sampler. Services
// keep authoritative state in memory and persist through per-store write
// queues; reads never touch storage after initialization.
package services

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Topics published on the event bus.
const (
	TopicStreaming   = "streaming"
	TopicRecording   = "recording"
	TopicPerformance = "performance"
	TopicSettings    = "settings"
)

// Event is one bus notification.
type Event struct {
	Topic   string
	Payload any
}

// Bus is a topic-based observer registry. Handlers run synchronously on the
// publisher's goroutine.
type Bus struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[uuid.UUID]func(Event)
}

// NewBus creates an empty event bus.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		log:  log,
		subs: make(map[string]map[uuid.UUID]func(Event)),
	}
}

// Subscribe registers fn for a topic and returns the token that cancels the
// subscription.
func (b *Bus) Subscribe(topic string, fn func(Event)) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	token := uuid.New()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uuid.UUID]func(Event))
	}
	b.subs[topic][token] = fn
	return token
}

// Unsubscribe cancels a subscription. Unknown tokens are ignored.
func (b *Bus) Unsubscribe(topic string, token uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[topic], token)
}

// Publish delivers payload to every subscriber of the topic.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	event := Event{Topic: topic, Payload: payload}
	for _, fn := range handlers {
		fn(event)
	}
}
