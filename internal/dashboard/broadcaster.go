package dashboard

import (
	"sync"
	"sync/atomic"
)

// Message is one dashboard push: an event type tag plus a pattern- or
// status-specific payload.
type Message struct {
	EventType string `json:"eventType"`
	Payload   any    `json:"payload"`
}

// Broadcaster fans messages out to all current subscribers of the single
// dashboard channel. Publishing never blocks; subscribers that fall
// behind miss messages.
type Broadcaster struct {
	subscribers map[uint64]chan Message
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan Message),
	}
}

func (b *Broadcaster) Subscribe() (uint64, chan Message) {
	id := b.nextID.Add(1)
	ch := make(chan Message, 100) // Buffer for bursts of status changes

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

func (b *Broadcaster) Broadcast(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			// Skip slow subscribers
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing observers to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
