package llm

import (
	"errors"
	"time"

	"github.com/alex-ilgayev/llmstream/pkg/bus"
	"github.com/alex-ilgayev/llmstream/pkg/event"
)

// Publisher forwards the output of one stream to the event bus.
type Publisher struct {
	eventBus bus.EventBus
	streamID string
	modelID  string
	started  time.Time
	chunks   int
}

func NewPublisher(eventBus bus.EventBus, streamID, modelID string) *Publisher {
	return &Publisher{
		eventBus: eventBus,
		streamID: streamID,
		modelID:  modelID,
	}
}

// Start publishes the stream start event.
func (p *Publisher) Start(api API, url string) {
	p.started = time.Now()
	p.eventBus.Publish(&event.StreamStartEvent{
		StreamID:  p.streamID,
		Timestamp: p.started,
		ModelID:   p.modelID,
		API:       string(api),
		URL:       url,
	})
}

// HandleChunk is a ChunkHandler publishing each chunk as a content event.
func (p *Publisher) HandleChunk(c ContentChunk) {
	p.chunks++
	modelID := p.modelID
	if c.ModelID != nil {
		modelID = *c.ModelID
	}
	p.eventBus.Publish(&event.ContentEvent{
		StreamID:  p.streamID,
		Timestamp: time.Now(),
		Role:      c.Role,
		ModelID:   modelID,
		Text:      c.Text,
	})
}

// Finish publishes tool calls, usage and the stream exception of r, then
// the end of the stream.
func (p *Publisher) Finish(r Result) {
	now := time.Now()

	for _, call := range r.ToolCalls {
		p.eventBus.Publish(&event.ToolCallEvent{
			StreamID:  p.streamID,
			Timestamp: now,
			ToolID:    call.ID,
			ToolName:  call.Name,
			Arguments: call.Arguments,
		})
	}

	if len(r.Usage) > 0 {
		p.eventBus.Publish(&event.UsageEvent{
			StreamID:  p.streamID,
			Timestamp: now,
			ModelID:   p.modelID,
			Usage:     r.Usage,
		})
	}

	if r.Exception != nil {
		p.PublishError(r.Exception)
	}

	var duration time.Duration
	if !p.started.IsZero() {
		duration = now.Sub(p.started)
	}
	p.eventBus.Publish(&event.StreamEndEvent{
		StreamID:  p.streamID,
		Timestamp: now,
		Duration:  duration,
		Chunks:    p.chunks,
		ToolCalls: len(r.ToolCalls),
		Leftover:  r.Leftover,
	})
}

// PublishError publishes err as a stream error event. Upstream errors keep
// their status and type.
func (p *Publisher) PublishError(err error) {
	if err == nil {
		return
	}
	ev := &event.StreamErrorEvent{
		StreamID:  p.streamID,
		Timestamp: time.Now(),
		Message:   err.Error(),
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		ev.StatusCode = upstream.StatusCode
		ev.ErrorType = upstream.Type
		ev.Message = upstream.Message
	}
	p.eventBus.Publish(ev)
}
