package event

type EventType uint8

const (
	// A decoded stream was opened (transport connected, decoder created).
	EventTypeStreamStart EventType = 1
	// A content chunk was produced by the decoder.
	EventTypeContent EventType = 2
	// A streamed tool invocation was fully reassembled.
	EventTypeToolCall EventType = 3
	// Usage counters reported at the end of a stream.
	EventTypeUsage EventType = 4
	// The upstream reported an error, either as a non-2xx response or as an
	// in-stream exception frame.
	EventTypeStreamError EventType = 5
	// A stream ended.
	EventTypeStreamEnd EventType = 6
)

func (e EventType) String() string {
	switch e {
	case EventTypeStreamStart:
		return "stream_start"
	case EventTypeContent:
		return "content"
	case EventTypeToolCall:
		return "tool_call"
	case EventTypeUsage:
		return "usage"
	case EventTypeStreamError:
		return "stream_error"
	case EventTypeStreamEnd:
		return "stream_end"
	default:
		return "unknown"
	}
}

// Event is the interface for all events
type Event interface {
	Type() EventType
}
