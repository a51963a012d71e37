// Package events is the typed publish/subscribe substrate behind the
// real-time update propagator. Delivery is a synchronous in-process push in
// subscription order, so views re-render from a notification instead of
// polling.
package events

import (
	"sync"

	"flockcore/pkg/domain"
)

// Topic partitions mutation notifications.
type Topic string

// Mutation topics published by the core service.
const (
	TopicSignIn         Topic = "sign_in"
	TopicMemberChanged  Topic = "member_changed"
	TopicGroupChanged   Topic = "group_changed"
	TopicRecordsCleared Topic = "records_cleared"
	TopicDataReloaded   Topic = "data_reloaded"
)

// Event is one completed mutation notification.
type Event struct {
	Topic    Topic
	Entity   domain.EntityType
	EntityID string
	Change   domain.Change
}

// Handler consumes events. Handlers run on the publisher's goroutine;
// long-running work belongs behind a channel, not in the handler.
type Handler func(Event)

type subscription struct {
	id      int
	topic   Topic
	handler Handler
}

// Bus fans events out to registered handlers. The zero value is not usable;
// construct with NewBus.
type Bus struct {
	mu   sync.Mutex
	next int
	subs []subscription
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for one topic and returns its unsubscribe
// function. Unsubscribing is safe at any time, including from inside a
// handler during dispatch.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, topic: topic, handler: handler})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to every handler subscribed to its topic, in
// subscription order. The subscriber list is copied before dispatch so
// handlers may subscribe or unsubscribe without deadlocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	matched := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.topic == ev.Topic {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.Unlock()
	for _, h := range matched {
		h(ev)
	}
}
