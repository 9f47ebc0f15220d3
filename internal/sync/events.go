package sync

import (
	gosync "sync"
	"time"

	"github.com/nhle/pmsync/internal/model"
)

// EventKind distinguishes run lifecycle events.
type EventKind string

const (
	EventRunStarted  EventKind = "run_started"
	EventRunFinished EventKind = "run_finished"
)

// Event is published to subscribers whenever a run starts or finishes.
type Event struct {
	Kind    EventKind         `json:"kind"`
	At      time.Time         `json:"at"`
	Trigger model.SyncTrigger `json:"trigger"`
	Type    model.SyncType    `json:"type,omitempty"`

	// Result is set on EventRunFinished.
	Result *model.SyncRunResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 16

// Broadcaster fans events out to subscribers. Slow subscribers lose
// events instead of blocking the publisher.
type Broadcaster struct {
	mu     gosync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber. The returned function removes it
// and closes its channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Publish sends ev to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is full; drop rather than stall the run.
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
