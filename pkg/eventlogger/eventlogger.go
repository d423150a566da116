package eventlogger

import (
	"github.com/alex-ilgayev/llmstream/pkg/bus"
	"github.com/alex-ilgayev/llmstream/pkg/event"
	"github.com/sirupsen/logrus"
)

var loggedTypes = []event.EventType{
	event.EventTypeStreamStart,
	event.EventTypeContent,
	event.EventTypeToolCall,
	event.EventTypeUsage,
	event.EventTypeStreamError,
	event.EventTypeStreamEnd,
}

// fieldsProvider is implemented by events that describe themselves for logs.
type fieldsProvider interface {
	LogFields() logrus.Fields
}

// EventLogger subscribes to all event types and logs them using logrus
type EventLogger struct {
	eventBus bus.EventBus
	logger   *logrus.Logger
}

func New(eventBus bus.EventBus) (*EventLogger, error) {
	return NewWithLogger(eventBus, logrus.StandardLogger())
}

// NewWithLogger logs to logger instead of the standard logger.
func NewWithLogger(eventBus bus.EventBus, logger *logrus.Logger) (*EventLogger, error) {
	el := &EventLogger{
		eventBus: eventBus,
		logger:   logger,
	}

	for i, t := range loggedTypes {
		if err := el.eventBus.Subscribe(t, el.logEvent); err != nil {
			for _, subscribed := range loggedTypes[:i] {
				el.eventBus.Unsubscribe(subscribed, el.logEvent)
			}
			return nil, err
		}
	}

	return el, nil
}

func (el *EventLogger) logEvent(e event.Event) {
	entry := logrus.NewEntry(el.logger).WithField("event", e.Type().String())
	if fp, ok := e.(fieldsProvider); ok {
		entry = entry.WithFields(fp.LogFields())
	}

	switch e.(type) {
	case *event.StreamStartEvent:
		entry.Trace("Stream started")
	case *event.ContentEvent:
		entry.Trace("Content chunk")
	case *event.ToolCallEvent:
		entry.Trace("Tool call")
	case *event.UsageEvent:
		entry.Trace("Usage reported")
	case *event.StreamErrorEvent:
		entry.Debug("Stream error")
	case *event.StreamEndEvent:
		entry.Trace("Stream ended")
	default:
		entry.Trace("Unknown event")
	}
}

func (el *EventLogger) Close() {
	for _, t := range loggedTypes {
		el.eventBus.Unsubscribe(t, el.logEvent)
	}
}
