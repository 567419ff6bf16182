// Package events provides an in-process bus for observed job events
package events

import (
	"context"
	"sync"
	"time"

	"github.com/kbase/cts-browser/internal/logger"
	"github.com/kbase/cts-browser/pkg/types"
)

// EventType represents the type of job event
type EventType string

const (
	// EventJobStateChanged is emitted when polling observes a new job state
	EventJobStateChanged EventType = "job_state_changed"
	// EventJobCanceled is emitted after a cancel request succeeds
	EventJobCanceled EventType = "job_canceled"
	// EventCacheInvalidated is emitted when cached entries are invalidated
	EventCacheInvalidated EventType = "cache_invalidated"
	// EventChannelSize is the buffer size for the event channel
	EventChannelSize = 100
)

// Event represents a job event
type Event struct {
	Type      EventType      // The type of event
	JobID     string         // The job ID, empty for cache-wide events
	From      types.JobState // Previously observed state, if any
	To        types.JobState // Newly observed state
	Keys      []string       // Invalidated cache keys
	Timestamp time.Time
}

// Handler is a function that handles an event
type Handler func(context.Context, Event) error

// Bus dispatches published events to subscribed handlers. Handlers for
// one bus run sequentially in publish order.
type Bus struct {
	handlers   map[EventType][]Handler
	handlersMu sync.RWMutex
	eventChan  chan Event
	startOnce  sync.Once
	done       chan struct{}
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{
		handlers:  make(map[EventType][]Handler),
		eventChan: make(chan Event, EventChannelSize),
		done:      make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	logger.Debugf("Registered handler for event type: %s", eventType)
}

// Publish queues an event for processing. Publish never blocks: when the
// buffer is full the event is dropped and a warning logged.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventChan <- event:
		logger.Debugf("Published event: %s (Job: %s)", event.Type, event.JobID)
	default:
		logger.Warnf("Event buffer full, dropping event %s for job %s", event.Type, event.JobID)
	}
}

// Start starts the event processing loop. It stops when ctx is done.
// Calling Start more than once has no effect.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.processEvents(ctx)
		logger.Debug("Started event processing loop")
	})
}

// Done is closed once the processing loop has exited
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// processEvents handles events in the background
func (b *Bus) processEvents(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Stopping event processing loop")
			return
		case event := <-b.eventChan:
			b.handlersMu.RLock()
			eventHandlers := b.handlers[event.Type]
			b.handlersMu.RUnlock()

			for _, handler := range eventHandlers {
				if err := handler(ctx, event); err != nil {
					logger.ErrorWithFields("Failed to handle event", map[string]interface{}{
						"event":  event.Type,
						"job_id": event.JobID,
						"error":  err.Error(),
					})
				}
			}
		}
	}
}
