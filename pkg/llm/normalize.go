package llm

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/alex-ilgayev/llmstream/pkg/eventstream"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DropReason tells why a payload did not produce an event.
type DropReason int

const (
	DropNone DropReason = iota
	// DropNoObject: no {...} span in the payload.
	DropNoObject
	// DropInvalidJSON: the object span, or the unwrapped legacy body, is
	// not a valid JSON object.
	DropInvalidJSON
	// DropInvalidBase64: the legacy "bytes" field did not decode.
	DropInvalidBase64
)

func (r DropReason) String() string {
	switch r {
	case DropNone:
		return "none"
	case DropNoObject:
		return "no_object"
	case DropInvalidJSON:
		return "invalid_json"
	case DropInvalidBase64:
		return "invalid_base64"
	default:
		return "unknown"
	}
}

// NormalizedEvent is the single representation both payload dialects are
// reduced to. Body is a JSON object that carries Type under "type" whenever
// a type is known. Body never aliases the frame buffer.
type NormalizedEvent struct {
	Type string
	Body json.RawMessage
}

// Normalize extracts the event carried by a frame payload.
//
// The JSON object is taken between the first '{' and the last '}'. A
// top-level "bytes" field marks the legacy dialect: its base64 value holds
// the real event body. When the body has no string "type", the
// :event-type header is injected as "type".
func Normalize(payload []byte, headers eventstream.Headers) (NormalizedEvent, DropReason) {
	raw, ok := objectSpan(payload)
	if !ok {
		return NormalizedEvent{}, DropNoObject
	}
	if !gjson.ValidBytes(raw) {
		return NormalizedEvent{}, DropInvalidJSON
	}

	var body []byte
	if wrapped := gjson.GetBytes(raw, "bytes"); wrapped.Exists() {
		decoded, err := base64.StdEncoding.DecodeString(wrapped.String())
		if err != nil {
			return NormalizedEvent{}, DropInvalidBase64
		}
		decoded = bytes.TrimSpace(decoded)
		if !gjson.ValidBytes(decoded) || !gjson.ParseBytes(decoded).IsObject() {
			return NormalizedEvent{}, DropInvalidJSON
		}
		body = decoded
	} else {
		body = bytes.Clone(raw)
	}

	if t := gjson.GetBytes(body, "type"); t.Type == gjson.String {
		return NormalizedEvent{Type: t.String(), Body: body}, DropNone
	}

	eventType := headers.String(eventstream.HeaderEventType)
	if eventType == "" {
		return NormalizedEvent{Body: body}, DropNone
	}

	injected, err := sjson.SetBytes(body, "type", eventType)
	if err != nil {
		// unreachable for a valid object
		return NormalizedEvent{Type: eventType, Body: body}, DropNone
	}
	return NormalizedEvent{Type: eventType, Body: injected}, DropNone
}

// objectSpan returns b[first '{' : last '}'+1].
func objectSpan(b []byte) ([]byte, bool) {
	start := bytes.IndexByte(b, '{')
	end := bytes.LastIndexByte(b, '}')
	if start < 0 || end < start {
		return nil, false
	}
	return b[start : end+1], true
}
