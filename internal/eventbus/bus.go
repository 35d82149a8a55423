// Package eventbus carries resource change notifications from the state
// model to subscribers (event stream forwarder, loggers, rule engine).
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType is the kind of change an event describes.
type EventType string

const (
	EventAdd    EventType = "add"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Default configuration
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 256
)

// Event is one resource change notification.
type Event struct {
	Time         time.Time      `json:"time"`
	Type         EventType      `json:"type"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Data         map[string]any `json:"data,omitempty"`
}

// Subscriber receives every event published to the bus.
type Subscriber func(Event)

// Bus is an append-only change queue with a bounded worker pool draining it
// to subscribers. Delivery is best-effort: the queue drops on overflow.
type Bus struct {
	mu   sync.RWMutex
	subs []Subscriber

	queue chan Event
	wg    sync.WaitGroup

	// Closing this channel signals publishers to stop.
	// A channel in select is race-free (unlike mutex + bool).
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a bus with default settings.
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a bus with a custom worker count and queue size.
func NewWithConfig(workerCount, queueSize int) *Bus {
	b := &Bus{
		queue:   make(chan Event, queueSize),
		closing: make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Change event bus started")
	return b
}

// worker drains the queue and fans each event out to all subscribers.
func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for ev := range b.queue {
		b.mu.RLock()
		subs := b.subs
		b.mu.RUnlock()

		for _, sub := range subs {
			func(s Subscriber) {
				defer func() {
					if r := recover(); r != nil {
						log.Error().
							Interface("panic", r).
							Str("resource_type", ev.ResourceType).
							Str("resource_id", ev.ResourceID).
							Int("worker", id).
							Msg("Event subscriber panicked")
					}
				}()
				s(ev)
			}(sub)
		}
	}
}

// Subscribe registers a subscriber for all events.
func (b *Bus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Publish enqueues an event. Non-blocking: if the queue is full or the bus
// is closing, the event is dropped with a warning.
func (b *Bus) Publish(ev Event) {
	select {
	case <-b.closing:
		log.Warn().Str("resource_type", ev.ResourceType).Msg("Event bus closing, dropping event")
	case b.queue <- ev:
	default:
		log.Warn().
			Str("resource_type", ev.ResourceType).
			Str("resource_id", ev.ResourceID).
			Msg("Event bus queue full, dropping event")
	}
}

// Close shuts the worker pool down gracefully: publishers are signalled
// first, then the queue is closed and drained.
func (b *Bus) Close(ctx context.Context) {
	b.closeOnce.Do(func() {
		close(b.closing)
	})

	close(b.queue)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
