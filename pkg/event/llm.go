package event

import (
	"time"

	"github.com/sirupsen/logrus"
)

// StreamStartEvent is published once per stream before any content.
type StreamStartEvent struct {
	StreamID  string    `json:"stream_id"`
	Timestamp time.Time `json:"timestamp"`
	ModelID   string    `json:"model_id,omitempty"`
	API       string    `json:"api,omitempty"`
	URL       string    `json:"url,omitempty"`
}

func (e *StreamStartEvent) Type() EventType { return EventTypeStreamStart }

func (e *StreamStartEvent) LogFields() logrus.Fields {
	return logrus.Fields{
		"stream_id": e.StreamID,
		"model_id":  e.ModelID,
		"api":       e.API,
	}
}

// ContentEvent carries one content chunk, in wire order.
type ContentEvent struct {
	StreamID  string    `json:"stream_id"`
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	ModelID   string    `json:"model_id,omitempty"`
	Text      string    `json:"text"`
}

func (e *ContentEvent) Type() EventType { return EventTypeContent }

func (e *ContentEvent) LogFields() logrus.Fields {
	return logrus.Fields{
		"stream_id": e.StreamID,
		"role":      e.Role,
		"model_id":  e.ModelID,
		"text_len":  len(e.Text),
	}
}

// UsageEvent reports the usage counters collected over a stream.
// Keys are input_tokens, output_tokens, total_tokens, latency_ms and
// first_byte_latency_ms; absent counters were not reported upstream.
type UsageEvent struct {
	StreamID  string            `json:"stream_id"`
	Timestamp time.Time         `json:"timestamp"`
	ModelID   string            `json:"model_id,omitempty"`
	Usage     map[string]uint64 `json:"usage"`
}

func (e *UsageEvent) Type() EventType { return EventTypeUsage }

func (e *UsageEvent) LogFields() logrus.Fields {
	fields := logrus.Fields{
		"stream_id": e.StreamID,
		"model_id":  e.ModelID,
	}
	for k, v := range e.Usage {
		fields[k] = v
	}
	return fields
}

// StreamEndEvent is published after the last event of a stream.
type StreamEndEvent struct {
	StreamID  string        `json:"stream_id"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Chunks    int           `json:"chunks"`
	ToolCalls int           `json:"tool_calls"`
	Leftover  int           `json:"leftover_bytes,omitempty"`
}

func (e *StreamEndEvent) Type() EventType { return EventTypeStreamEnd }

func (e *StreamEndEvent) LogFields() logrus.Fields {
	return logrus.Fields{
		"stream_id":  e.StreamID,
		"duration":   e.Duration,
		"chunks":     e.Chunks,
		"tool_calls": e.ToolCalls,
		"leftover":   e.Leftover,
	}
}
