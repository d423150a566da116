package eventstream

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/google/uuid"
)

// Message is a decoded frame: its headers and raw payload bytes.
type Message struct {
	Headers Headers
	Payload []byte
	// HeadersComplete is false when header decoding stopped early.
	HeadersComplete bool
}

// Message decodes the header block of an OK frame. Payload aliases the
// scanned buffer.
func (r FrameResult) Message() Message {
	headers, complete := DecodeHeaders(r.Headers)
	return Message{
		Headers:         headers,
		Payload:         r.Payload,
		HeadersComplete: complete,
	}
}

// TimestampHeader builds a timestamp header value (millisecond precision).
func TimestampHeader(t time.Time) HeaderValue {
	return HeaderValue{Type: HeaderTypeTimestamp, Value: t.UnixMilli()}
}

// UUIDHeader builds a UUID header value.
func UUIDHeader(id uuid.UUID) HeaderValue {
	return HeaderValue{Type: HeaderTypeUUID, Value: [16]byte(id)}
}

// EncodeMessage serializes headers and payload into one frame with real
// CRC32 checksums, so the output is readable by any conforming decoder.
func EncodeMessage(headers []Header, payload []byte) []byte {
	var hb bytes.Buffer
	for _, h := range headers {
		encodeHeader(&hb, h)
	}

	total := PreludeLength + hb.Len() + len(payload) + MessageCRCLength
	frame := make([]byte, 0, total)
	frame = binary.BigEndian.AppendUint32(frame, uint32(total))
	frame = binary.BigEndian.AppendUint32(frame, uint32(hb.Len()))
	frame = binary.BigEndian.AppendUint32(frame, crc32.ChecksumIEEE(frame[:8]))
	frame = append(frame, hb.Bytes()...)
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint32(frame, crc32.ChecksumIEEE(frame))
	return frame
}

// EventMessage is a shortcut for the common "event" frame carrying a
// JSON payload.
func EventMessage(eventType string, payload []byte) []byte {
	return EncodeMessage([]Header{
		{Name: HeaderEventType, Value: StringHeader(eventType)},
		{Name: HeaderContentType, Value: StringHeader("application/json")},
		{Name: HeaderMessageType, Value: StringHeader("event")},
	}, payload)
}

func encodeHeader(w *bytes.Buffer, h Header) {
	w.WriteByte(byte(len(h.Name)))
	w.WriteString(h.Name)
	w.WriteByte(byte(h.Value.Type))

	var scratch [8]byte
	switch v := h.Value.Value.(type) {
	case bool:
		// the tag carries the value
	case uint8:
		w.WriteByte(v)
	case int16:
		binary.BigEndian.PutUint16(scratch[:2], uint16(v))
		w.Write(scratch[:2])
	case int32:
		binary.BigEndian.PutUint32(scratch[:4], uint32(v))
		w.Write(scratch[:4])
	case int64:
		binary.BigEndian.PutUint64(scratch[:8], uint64(v))
		w.Write(scratch[:8])
	case []byte:
		binary.BigEndian.PutUint16(scratch[:2], uint16(len(v)))
		w.Write(scratch[:2])
		w.Write(v)
	case string:
		binary.BigEndian.PutUint16(scratch[:2], uint16(len(v)))
		w.Write(scratch[:2])
		w.WriteString(v)
	case [16]byte:
		w.Write(v[:])
	}
}
