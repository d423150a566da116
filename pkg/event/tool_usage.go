package event

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ToolCallEvent represents a tool invocation requested by the model.
// Arguments are the parsed JSON object; it is empty, never nil, when the
// streamed argument text did not parse.
type ToolCallEvent struct {
	StreamID  string         `json:"stream_id"`
	Timestamp time.Time      `json:"timestamp"`
	ToolID    string         `json:"tool_id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

func (e *ToolCallEvent) Type() EventType { return EventTypeToolCall }

func (e *ToolCallEvent) LogFields() logrus.Fields {
	return logrus.Fields{
		"stream_id": e.StreamID,
		"tool_id":   e.ToolID,
		"tool_name": e.ToolName,
		"num_args":  len(e.Arguments),
	}
}

// StreamErrorEvent is an error reported by the upstream service.
// StatusCode is zero for exceptions delivered inside a 2xx stream.
type StreamErrorEvent struct {
	StreamID   string    `json:"stream_id"`
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"status_code,omitempty"`
	ErrorType  string    `json:"error_type,omitempty"`
	Message    string    `json:"message"`
}

func (e *StreamErrorEvent) Type() EventType { return EventTypeStreamError }

func (e *StreamErrorEvent) LogFields() logrus.Fields {
	return logrus.Fields{
		"stream_id":   e.StreamID,
		"status_code": e.StatusCode,
		"error_type":  e.ErrorType,
	}
}
