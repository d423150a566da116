package llm

import (
	"github.com/alex-ilgayev/llmstream/pkg/eventstream"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Observer is notified of decoder activity. Implementations must be cheap;
// they run inline with decoding.
type Observer interface {
	FrameDecoded(eventType string)
	Resynced(skipped int)
	Dropped(reason DropReason)
	ChunkEmitted()
	ToolCallCompleted(name string)
	ExceptionReceived(exceptionType string)
}

type nopObserver struct{}

func (nopObserver) FrameDecoded(string)      {}
func (nopObserver) Resynced(int)             {}
func (nopObserver) Dropped(DropReason)       {}
func (nopObserver) ChunkEmitted()            {}
func (nopObserver) ToolCallCompleted(string) {}
func (nopObserver) ExceptionReceived(string) {}

// Result is what a stream leaves behind once it ends.
type Result struct {
	ToolCalls []ToolCall
	Usage     map[string]uint64
	// Exception is the first exception frame seen in the stream, if any.
	Exception *UpstreamError
	// Leftover is the number of buffered bytes that never formed a frame.
	Leftover int
}

// Err returns Exception as an error, or nil.
func (r Result) Err() error {
	if r.Exception == nil {
		return nil
	}
	return r.Exception
}

// Decoder decodes one event stream. Feed it successive reads of the response
// body, then call Finalize. Bytes that do not yet form a whole frame are
// carried over to the next Feed.
//
// A Decoder is not safe for concurrent use; chunk handlers run inside Feed.
type Decoder struct {
	streamID string
	modelID  *string
	handler  ChunkHandler
	observer Observer
	log      *logrus.Entry

	acc       *ToolCallAccumulator
	carry     []byte
	need      int
	realign   bool
	exception *UpstreamError

	frames int
	chunks int
}

type Option func(*Decoder)

// WithModelID sets the model id reported on every content chunk.
func WithModelID(id string) Option {
	return func(d *Decoder) {
		if id != "" {
			d.modelID = &id
		}
	}
}

// WithObserver installs an Observer, e.g. metrics.
func WithObserver(o Observer) Option {
	return func(d *Decoder) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithChunkHandler sets the handler used by Write.
func WithChunkHandler(h ChunkHandler) Option {
	return func(d *Decoder) {
		d.handler = h
	}
}

// WithLogger sets the base log entry; stream_id is added to it.
func WithLogger(log *logrus.Entry) Option {
	return func(d *Decoder) {
		if log != nil {
			d.log = log
		}
	}
}

// WithStreamID overrides the generated stream id.
func WithStreamID(id string) Option {
	return func(d *Decoder) {
		if id != "" {
			d.streamID = id
		}
	}
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		streamID: uuid.NewString(),
		observer: nopObserver{},
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.WithField("stream_id", d.streamID)
	d.acc = NewToolCallAccumulator(d.log)
	return d
}

// StreamID identifies this stream in logs and published events.
func (d *Decoder) StreamID() string {
	return d.streamID
}

// Feed decodes as many frames as buf (prefixed with any carried bytes)
// holds and passes content chunks to emit in wire order. emit may be nil.
func (d *Decoder) Feed(buf []byte, emit ChunkHandler) {
	if len(d.carry) > 0 {
		if len(d.carry)+len(buf) < d.need {
			// the carried frame is still short; nothing new to scan
			d.carry = append(d.carry, buf...)
			return
		}
		buf = append(d.carry, buf...)
	}
	d.decode(buf, emit, false)
}

// decode scans data from its start. Unless final is set, bytes that may
// still become a frame are kept in carry. With final set nothing more will
// arrive: a frame running past the end is treated as corrupt and scanning
// resyncs past it. decode returns the number of bytes it gave up on, which
// is only non-zero when final is set.
func (d *Decoder) decode(data []byte, emit ChunkHandler, final bool) int {
	// data may share carry's backing array; truncating keeps the bytes
	d.carry = d.carry[:0]
	d.need = 0

	offset := 0
	if d.realign {
		// the carried bytes are the unprobed tail of a failed resync
		d.realign = false
		offset = eventstream.NextPrelude(data, 0)
		if offset == len(data) {
			if final {
				return len(data)
			}
			d.keepTail(data, 0, 0)
			return 0
		}
		if offset > 0 {
			d.resynced(offset)
		}
	}

	for offset < len(data) {
		res := eventstream.ScanFrame(data, offset)

		switch res.Status {
		case eventstream.FrameOK:
			d.handleFrame(res, emit)
			offset = res.Next

		case eventstream.FrameIncomplete:
			if final {
				return len(data) - offset
			}
			d.keep(data, offset, eventstream.PreludeLength)
			return 0

		case eventstream.FramePartial:
			if !final {
				d.keep(data, offset, int(res.Prelude.TotalLength))
				return 0
			}
			d.log.WithFields(logrus.Fields{
				"frame_len": res.Prelude.TotalLength,
				"remaining": len(data) - offset,
			}).Debug("Stream ended inside a frame, resynchronizing past it")
			next := eventstream.Resync(data, offset)
			if next >= len(data) {
				return len(data) - offset
			}
			d.resynced(next - offset)
			offset = next

		case eventstream.FrameResync:
			if res.Next >= len(data) {
				if final {
					return len(data) - offset
				}
				d.keepTail(data, offset, offset+eventstream.ResyncSkip)
				return 0
			}
			d.resynced(res.Next - offset)
			offset = res.Next
		}
	}
	return 0
}

// keep carries data[offset:] over to the next Feed, which only scans again
// once at least need bytes are buffered.
func (d *Decoder) keep(data []byte, offset, need int) {
	d.log.WithFields(logrus.Fields{
		"need":      need,
		"remaining": len(data) - offset,
	}).Trace("Carrying partial frame over to next read")
	d.carry = append(d.carry[:0], data[offset:]...)
	d.need = need
}

// keepTail is called when probing from `from` found nothing. It drops
// data[start:] up to the bytes no probe could examine yet and keeps those
// for the next Feed, which probes them from their first byte.
func (d *Decoder) keepTail(data []byte, start, from int) {
	tail := eventstream.UnprobedTail(data, from)
	if tail > start {
		d.resynced(tail - start)
	}
	if tail < len(data) {
		d.carry = append(d.carry[:0], data[tail:]...)
		d.realign = true
	}
}

func (d *Decoder) resynced(skipped int) {
	d.observer.Resynced(skipped)
	d.log.WithField("skipped", skipped).Warn("Invalid frame data, resynchronized")
}

// Write feeds p using the handler given by WithChunkHandler. It never fails,
// which lets a Decoder sit at the end of io.Copy.
func (d *Decoder) Write(p []byte) (int, error) {
	d.Feed(p, d.handler)
	return len(p), nil
}

func (d *Decoder) handleFrame(res eventstream.FrameResult, emit ChunkHandler) {
	d.frames++
	msg := res.Message()
	eventType := msg.Headers.String(eventstream.HeaderEventType)

	log := d.log.WithFields(logrus.Fields{
		"event_type": eventType,
		"frame_len":  res.Prelude.TotalLength,
	})
	if !msg.HeadersComplete {
		log.Debug("Header block decoding stopped early, using partial headers")
	}
	d.observer.FrameDecoded(eventType)

	switch msg.Headers.String(eventstream.HeaderMessageType) {
	case "exception", "error":
		d.recordException(msg)
		return
	}

	ev, reason := Normalize(msg.Payload, msg.Headers)
	if reason != DropNone {
		d.observer.Dropped(reason)
		entry := log.WithField("reason", reason.String())
		if reason == DropNoObject {
			entry.Trace("Payload carries no JSON object, dropping frame")
		} else {
			entry.Debug("Malformed payload, dropping frame")
		}
		return
	}

	log.WithField("type", ev.Type).Trace("Decoded event")
	d.route(ev, emit)
}

func (d *Decoder) route(ev NormalizedEvent, emit ChunkHandler) {
	r := Classify(ev)

	switch r.Kind {
	case RouteToolStart:
		d.acc.Start(r.ToolID, r.ToolName)
	case RouteToolDelta:
		d.acc.AppendArguments(r.Fragment)
	case RouteToolStop:
		if call, ok := d.acc.Stop(); ok {
			d.observer.ToolCallCompleted(call.Name)
			d.log.WithFields(logrus.Fields{
				"tool_id":   call.ID,
				"tool_name": call.Name,
				"num_args":  len(call.Arguments),
			}).Debug("Tool call completed")
		}
	case RouteUsage:
		d.acc.RecordUsage(r.Usage)
	default:
		chunk := ContentChunk{Role: RoleAssistant, Text: r.Text}
		if d.modelID != nil {
			id := *d.modelID
			chunk.ModelID = &id
		}
		d.chunks++
		d.observer.ChunkEmitted()
		if emit != nil {
			emit(chunk)
		}
	}
}

func (d *Decoder) recordException(msg eventstream.Message) {
	exceptionType := msg.Headers.String(eventstream.HeaderExceptionType)
	if exceptionType == "" {
		exceptionType = msg.Headers.String(eventstream.HeaderErrorCode)
	}
	d.observer.ExceptionReceived(exceptionType)

	if d.exception != nil {
		d.log.WithField("exception_type", exceptionType).Debug("Ignoring exception after the first one")
		return
	}
	d.exception = exceptionFromFrame(exceptionType, msg.Headers.String(eventstream.HeaderErrorMessage), msg.Payload)
	d.log.WithFields(logrus.Fields{
		"exception_type": d.exception.Type,
		"message":        d.exception.Message,
	}).Warn("Stream reported an exception")
}

// Finalize ends the stream and returns the tool calls and usage collected.
// Carried bytes are scanned one last time with emit: a frame cut off by the
// end of the stream is skipped and decoding resumes at the next plausible
// prelude after it. Bytes that still form no frame are counted in Leftover
// and discarded.
func (d *Decoder) Finalize(emit ChunkHandler) Result {
	leftover := 0
	if len(d.carry) > 0 {
		leftover = d.decode(d.carry, emit, true)
	}

	res := Result{
		ToolCalls: d.acc.ToolCalls(),
		Usage:     d.acc.Usage(),
		Exception: d.exception,
		Leftover:  leftover,
	}

	fields := logrus.Fields{
		"frames":     d.frames,
		"chunks":     d.chunks,
		"tool_calls": len(res.ToolCalls),
	}
	if res.Leftover > 0 {
		d.log.WithFields(fields).WithField("leftover", res.Leftover).Warn("Stream ended with undecoded bytes")
	} else {
		d.log.WithFields(fields).Debug("Stream finished")
	}
	if d.acc.Active() {
		d.log.Debug("Stream ended inside a tool call, dropping it")
	}

	d.carry = nil
	d.need = 0
	d.realign = false
	return res
}
