// Package pubsub implements the in-process notification feed the catalog
// applier publishes product and section changes on.
package pubsub

import (
	"context"
	"sort"
	"sync"
)

const (
	TopicProducts = "products"
	TopicSections = "sections"
)

// SectionProductsTopic is the products sub-topic scoped to one section.
func SectionProductsTopic(section string) string {
	return TopicProducts + "/" + section
}

type Message struct {
	Topic   string
	Payload any
}

type Handler func(ctx context.Context, msg Message)

type subscriber struct {
	id      uint64
	handler Handler
}

// Feed is a set of named topics created on first use. Handlers run
// synchronously on the publishing goroutine, in subscription order.
type Feed struct {
	mu     sync.RWMutex
	topics map[string][]subscriber
	nextID uint64
}

func New() *Feed {
	return &Feed{topics: make(map[string][]subscriber)}
}

// Subscribe registers h on topic and returns a function removing it.
func (f *Feed) Subscribe(topic string, h Handler) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	f.topics[topic] = append(f.topics[topic], subscriber{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { f.remove(topic, id) })
	}
}

func (f *Feed) remove(topic string, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs := f.topics[topic]
	for i, sub := range subs {
		if sub.id == id {
			// copy so in-flight publishes keep their snapshot intact
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			f.topics[topic] = append(next, subs[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every subscriber of topic and returns how
// many handlers ran.
func (f *Feed) Publish(ctx context.Context, topic string, payload any) int {
	f.mu.Lock()
	subs, ok := f.topics[topic]
	if !ok {
		f.topics[topic] = nil
	}
	f.mu.Unlock()

	msg := Message{Topic: topic, Payload: payload}
	for _, sub := range subs {
		sub.handler(ctx, msg)
	}
	return len(subs)
}

// Topics lists every topic that was published to or subscribed on.
func (f *Feed) Topics() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	topics := make([]string, 0, len(f.topics))
	for topic := range f.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
