package queue

import (
	"context"

	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/domain/task"
	"storefront/menusync/internal/pubsub"

	log "github.com/sirupsen/logrus"
)

// FeedMirror appends every product and section notification published on
// the feed to the matching Redis stream.
type FeedMirror struct {
	queue       Queue
	unsubscribe []func()
}

func NewFeedMirror(q Queue) *FeedMirror {
	return &FeedMirror{queue: q}
}

// Attach subscribes the mirror to feed. Call the returned function to stop
// mirroring.
func (m *FeedMirror) Attach(feed *pubsub.Feed) (detach func()) {
	m.unsubscribe = append(m.unsubscribe,
		feed.Subscribe(pubsub.TopicProducts, m.handleProduct),
		feed.Subscribe(pubsub.TopicSections, m.handleSection),
	)
	return m.Detach
}

func (m *FeedMirror) Detach() {
	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}
	m.unsubscribe = nil
}

func (m *FeedMirror) handleProduct(ctx context.Context, msg pubsub.Message) {
	n, ok := msg.Payload.(domain.ProductNotification)
	if !ok {
		log.Warnf("Unexpected payload %T on %s", msg.Payload, msg.Topic)
		return
	}

	m.add(ctx, &task.ProductTask{
		Scope:    n.Scope.String(),
		Section:  n.Section,
		Op:       n.Op,
		Kind:     n.Product.Kind,
		ID:       n.Product.ID,
		Name:     n.Product.Name,
		Modified: n.Modified,
	})
}

func (m *FeedMirror) handleSection(ctx context.Context, msg pubsub.Message) {
	n, ok := msg.Payload.(domain.SectionNotification)
	if !ok {
		log.Warnf("Unexpected payload %T on %s", msg.Payload, msg.Topic)
		return
	}

	m.add(ctx, &task.SectionTask{
		Scope:        n.Scope.String(),
		Section:      n.Section.Name,
		ProductCount: len(n.Section.Products),
	})
}

// add never fails the publisher, the catalog is already committed.
func (m *FeedMirror) add(ctx context.Context, t task.Task) {
	if _, err := m.queue.AddTask(ctx, t); err != nil {
		log.Warnf("⚠️ Failed to mirror %s: %v", t.TaskType(), err)
	}
}
