package output

import (
	"github.com/alex-ilgayev/llmstream/pkg/bus"
	"github.com/alex-ilgayev/llmstream/pkg/event"
)

// OutputHandler defines the interface for different output formats
type OutputHandler interface {
	PrintHeader()
	PrintStats(usage map[string]uint64)
	PrintInfo(format string, args ...interface{})
	HandleEvent(e event.Event)
}

var streamEventTypes = []event.EventType{
	event.EventTypeStreamStart,
	event.EventTypeContent,
	event.EventTypeToolCall,
	event.EventTypeUsage,
	event.EventTypeStreamError,
	event.EventTypeStreamEnd,
}

// Attach subscribes h to every stream event on eventBus. The returned
// function unsubscribes it.
func Attach(eventBus bus.EventBus, h OutputHandler) (func(), error) {
	processor := bus.EventProcessor(h.HandleEvent)
	detach := func() {
		for _, t := range streamEventTypes {
			_ = eventBus.Unsubscribe(t, processor)
		}
	}

	for _, t := range streamEventTypes {
		if err := eventBus.Subscribe(t, processor); err != nil {
			detach()
			return nil, err
		}
	}
	return detach, nil
}
