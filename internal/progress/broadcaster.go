package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dl-alexandre/bimview/internal/types"
)

// EventType classifies batch events
type EventType string

const (
	EventBatchStarted  EventType = "batch_started"
	EventFileStarted   EventType = "file_started"
	EventProgress      EventType = "progress"
	EventFileFinished  EventType = "file_finished"
	EventBatchFinished EventType = "batch_finished"
)

// Event is one step of a batch as seen by progress consumers
type Event struct {
	Type       EventType          `json:"type"`
	BatchID    string             `json:"batchId"`
	Time       time.Time          `json:"time"`
	Progress   types.LoadProgress `json:"progress"`
	Percentage float64            `json:"percentage"`
	File       string             `json:"file,omitempty"`
	Status     types.FileStatus   `json:"status,omitempty"`
	Message    string             `json:"message,omitempty"`
}

// NewEvent stamps an event with the current time and percentage
func NewEvent(typ EventType, batchID string, p types.LoadProgress) Event {
	return Event{
		Type:       typ,
		BatchID:    batchID,
		Time:       time.Now(),
		Progress:   p,
		Percentage: Percentage(p),
	}
}

// Broadcaster fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full loses its oldest queued event, so the
// newest one (the final batch_finished included) always arrives.
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[chan Event]struct{}
	bufferSize int
	last       *Event
	closed     bool
	dropped    atomic.Int64
}

// NewBroadcaster creates a broadcaster whose subscriptions buffer bufferSize events
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Broadcaster{
		subs:       make(map[chan Event]struct{}),
		bufferSize: bufferSize,
	}
}

// Subscribe returns a channel of future events and a function that ends
// the subscription. The most recent event, if any, is delivered first.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.last != nil {
		ch <- *b.last
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish delivers ev to every subscriber
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = &ev
	for ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Only Publish sends, under b.mu, so one freed slot is enough
		select {
		case <-ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Last returns the most recently published event
func (b *Broadcaster) Last() (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return Event{}, false
	}
	return *b.last, true
}

// Dropped returns how many queued events were discarded for full subscribers
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close ends every subscription
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
