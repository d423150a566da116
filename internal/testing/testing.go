package testing

import (
	"reflect"
	"sync"

	"github.com/alex-ilgayev/llmstream/pkg/bus"
	"github.com/alex-ilgayev/llmstream/pkg/event"
)

// mockBus is a synchronous in-memory bus that also records every published
// event for assertions.
type mockBus struct {
	mu          sync.RWMutex
	subscribers map[event.EventType][]bus.EventProcessor
	published   []event.Event
	events      chan event.Event
	closed      bool
}

func (mb *mockBus) Publish(e event.Event) {
	mb.mu.Lock()
	mb.published = append(mb.published, e)
	processors := append([]bus.EventProcessor(nil), mb.subscribers[e.Type()]...)
	closed := mb.closed
	mb.mu.Unlock()

	if !closed {
		// Send to events channel for test assertions
		select {
		case mb.events <- e:
		default:
			// Non-blocking: if the test isn't consuming events, don't block
		}
	}

	for _, processor := range processors {
		processor(e)
	}
}

func (mb *mockBus) Subscribe(eventType event.EventType, fn bus.EventProcessor) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.subscribers[eventType] = append(mb.subscribers[eventType], fn)
	return nil
}

func (mb *mockBus) Unsubscribe(eventType event.EventType, fn bus.EventProcessor) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	target := reflect.ValueOf(fn).Pointer()
	processors := mb.subscribers[eventType]
	for i, processor := range processors {
		if reflect.ValueOf(processor).Pointer() == target {
			mb.subscribers[eventType] = append(processors[:i], processors[i+1:]...)
			break
		}
	}
	return nil
}

func (mb *mockBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if !mb.closed {
		close(mb.events)
		mb.closed = true
	}
	mb.subscribers = make(map[event.EventType][]bus.EventProcessor)
}

// Events returns the channel that receives published events for test assertions
func (mb *mockBus) Events() <-chan event.Event {
	return mb.events
}

// Published returns every event published so far, in order.
func (mb *mockBus) Published() []event.Event {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	return append([]event.Event(nil), mb.published...)
}

// PublishedOfType filters Published by event type.
func (mb *mockBus) PublishedOfType(eventType event.EventType) []event.Event {
	var out []event.Event
	for _, e := range mb.Published() {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func NewMockBus() *mockBus {
	return &mockBus{
		subscribers: make(map[event.EventType][]bus.EventProcessor),
		events:      make(chan event.Event, 100), // Buffered to avoid blocking
	}
}
