// Package events provides the typed event bus shared by the monitor, the
// resource collections and the command dispatcher.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/whole-tale/girder-wt-data-manager/internal/constants"
)

// EventType defines the closed set of events that can be emitted.
type EventType string

const (
	EventCollectionChanged EventType = "collection_changed" // a collection cache was replaced
	EventRefreshFailed     EventType = "refresh_failed"     // a collection fetch failed; cache kept
	EventStateChange       EventType = "state_change"       // monitor lifecycle transition
	EventTick              EventType = "tick"               // a poll cycle rendered
	EventCommandCompleted  EventType = "command_completed"  // a dispatched command succeeded
	EventCommandFailed     EventType = "command_failed"     // a dispatched command failed
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// CollectionChangedEvent is published after a successful refresh.
type CollectionChangedEvent struct {
	BaseEvent
	Collection string
	Count      int
	Generation uint64
}

// RefreshFailedEvent is published when a refresh fails. The collection keeps
// the records of its last successful refresh.
type RefreshFailedEvent struct {
	BaseEvent
	Collection string
	Error      error
}

// StateChangeEvent represents monitor lifecycle transitions
type StateChangeEvent struct {
	BaseEvent
	OldState string
	NewState string
}

// TickEvent summarises one rendered poll cycle.
type TickEvent struct {
	BaseEvent
	Generation uint64
	Containers int
	Transfers  int
	Errors     int
	Duration   time.Duration
}

// CommandCompletedEvent carries the response body of a successful command.
// Name is the command's completion event, e.g. "container_created".
type CommandCompletedEvent struct {
	BaseEvent
	Command    string
	Name       string
	TargetID   string
	StatusCode int
	Body       json.RawMessage
}

// CommandFailedEvent carries the failure of a dispatched command.
// Message and Trace are set when the server returned a structured error.
type CommandFailedEvent struct {
	BaseEvent
	Command    string
	TargetID   string
	StatusCode int
	Message    string
	Trace      []string
	Error      error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events for a
// full subscriber are dropped and counted. A nil bus is a no-op.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishStateChange is a convenience method for publishing state change events
func (eb *EventBus) PublishStateChange(oldState, newState string) {
	eb.Publish(&StateChangeEvent{
		BaseEvent: BaseEvent{EventType: EventStateChange, Time: time.Now()},
		OldState:  oldState,
		NewState:  newState,
	})
}

// PublishRefreshFailed is a convenience method for publishing refresh failures
func (eb *EventBus) PublishRefreshFailed(collection string, err error) {
	eb.Publish(&RefreshFailedEvent{
		BaseEvent:  BaseEvent{EventType: EventRefreshFailed, Time: time.Now()},
		Collection: collection,
		Error:      err,
	})
}

// DroppedEvents returns the number of events dropped because a subscriber's
// buffer was full.
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}
