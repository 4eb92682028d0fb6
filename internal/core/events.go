package core

import (
	"sync"
	"time"
)

// EventType identifies a domain event published by the drive façade.
type EventType string

const (
	EventUpload        EventType = "upload"
	EventDownload      EventType = "download"
	EventMove          EventType = "move"
	EventDelete        EventType = "delete"
	EventRestore       EventType = "restore"
	EventFolderCreate  EventType = "folder-create"
	EventOptimize      EventType = "optimize"
	EventAccountChange EventType = "account-change"
	EventSpaceChange   EventType = "space-change"
)

// Event is a notification about a completed mutating operation.
type Event struct {
	Type      EventType
	ItemIDs   []string
	AccountID string
	Detail    string
	At        time.Time
}

// Subscriber receives published events.
type Subscriber func(Event)

// EventBus is a typed publish/subscribe fan-out replacing ad hoc listener
// lists. A panicking subscriber is isolated: it never aborts the operation
// that published, nor delivery to the remaining subscribers.
type EventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Subscriber
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]Subscriber)}
}

// Subscribe registers fn and returns a token for Unsubscribe.
func (b *EventBus) Subscribe(fn Subscriber) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[b.nextID] = fn
	return b.nextID
}

// Unsubscribe removes a subscriber. Unknown tokens are ignored.
func (b *EventBus) Unsubscribe(token int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, token)
}

// Publish delivers e to every subscriber in registration order.
func (b *EventBus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	for _, fn := range b.snapshot() {
		deliver(fn, e)
	}
}

func (b *EventBus) snapshot() []Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	order := make([]int, 0, len(b.subs))
	for id := range b.subs {
		order = append(order, id)
	}
	// map order is random; deliver in subscription order
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && order[j] < order[j-1]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	out := make([]Subscriber, 0, len(order))
	for _, id := range order {
		out = append(out, b.subs[id])
	}
	return out
}

func deliver(fn Subscriber, e Event) {
	defer func() {
		_ = recover() // a failing subscriber must not abort publishing
	}()
	fn(e)
}
