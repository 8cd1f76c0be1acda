// Package stream fans freshly ingested events out to live API
// subscribers. The broadcaster backs the SSE endpoint; slow consumers
// drop messages instead of blocking the ingestion pipeline.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

// subscriberBuffer bounds each subscriber channel. One poll cycle never
// produces more events than this.
const subscriberBuffer = 100

type Broadcaster struct {
	subscribers map[uint64]chan models.IngestedEvent
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan models.IngestedEvent),
	}
}

func (b *Broadcaster) Subscribe() (uint64, chan models.IngestedEvent) {
	id := b.nextID.Add(1)
	ch := make(chan models.IngestedEvent, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber, skipping any whose
// buffer is full.
func (b *Broadcaster) Publish(event models.IngestedEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
