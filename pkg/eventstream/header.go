package eventstream

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
)

// HeaderType is the wire tag that precedes every header value.
type HeaderType uint8

const (
	HeaderTypeBoolTrue  HeaderType = 0
	HeaderTypeBoolFalse HeaderType = 1
	HeaderTypeUint8     HeaderType = 2
	HeaderTypeInt16     HeaderType = 3
	HeaderTypeInt32     HeaderType = 4
	HeaderTypeInt64     HeaderType = 5
	HeaderTypeBytes     HeaderType = 6
	HeaderTypeString    HeaderType = 7
	// Timestamp and UUID values are skipped while decoding and never
	// show up in a decoded Headers map.
	HeaderTypeTimestamp HeaderType = 8
	HeaderTypeUUID      HeaderType = 9
)

func (t HeaderType) String() string {
	switch t {
	case HeaderTypeBoolTrue, HeaderTypeBoolFalse:
		return "bool"
	case HeaderTypeUint8:
		return "uint8"
	case HeaderTypeInt16:
		return "int16"
	case HeaderTypeInt32:
		return "int32"
	case HeaderTypeInt64:
		return "int64"
	case HeaderTypeBytes:
		return "bytes"
	case HeaderTypeString:
		return "string"
	case HeaderTypeTimestamp:
		return "timestamp"
	case HeaderTypeUUID:
		return "uuid"
	default:
		return "unknown"
	}
}

// Well-known header names.
const (
	HeaderEventType     = ":event-type"
	HeaderMessageType   = ":message-type"
	HeaderContentType   = ":content-type"
	HeaderExceptionType = ":exception-type"
	HeaderErrorCode     = ":error-code"
	HeaderErrorMessage  = ":error-message"
)

// HeaderValue is a tagged union over the header value kinds.
// Value holds bool, uint8, int16, int32, int64, []byte or string
// depending on Type. For timestamps it holds int64 milliseconds and
// for UUIDs a [16]byte; those two only ever appear on the encode side.
type HeaderValue struct {
	Type  HeaderType
	Value any
}

func BoolHeader(v bool) HeaderValue {
	if v {
		return HeaderValue{Type: HeaderTypeBoolTrue, Value: true}
	}
	return HeaderValue{Type: HeaderTypeBoolFalse, Value: false}
}

func Uint8Header(v uint8) HeaderValue   { return HeaderValue{Type: HeaderTypeUint8, Value: v} }
func Int16Header(v int16) HeaderValue   { return HeaderValue{Type: HeaderTypeInt16, Value: v} }
func Int32Header(v int32) HeaderValue   { return HeaderValue{Type: HeaderTypeInt32, Value: v} }
func Int64Header(v int64) HeaderValue   { return HeaderValue{Type: HeaderTypeInt64, Value: v} }
func BytesHeader(v []byte) HeaderValue  { return HeaderValue{Type: HeaderTypeBytes, Value: v} }
func StringHeader(v string) HeaderValue { return HeaderValue{Type: HeaderTypeString, Value: v} }

// String renders the value for logs and console output.
func (v HeaderValue) String() string {
	switch val := v.Value.(type) {
	case bool:
		return strconv.FormatBool(val)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case []byte:
		return hex.EncodeToString(val)
	case string:
		return val
	case [16]byte:
		return hex.EncodeToString(val[:])
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Header is a single name/value pair, used where order matters (encoding).
type Header struct {
	Name  string
	Value HeaderValue
}

// Headers is the decoded header block of one message.
type Headers map[string]HeaderValue

// String returns the named header if it is a string header, "" otherwise.
func (h Headers) String(name string) string {
	v, ok := h[name]
	if !ok || v.Type != HeaderTypeString {
		return ""
	}
	s, _ := v.Value.(string)
	return s
}

// DecodeHeaders decodes a header block. Decoding stops at the first
// unknown tag or truncated value; whatever was decoded up to that point
// is returned with complete=false. It never fails.
func DecodeHeaders(b []byte) (headers Headers, complete bool) {
	headers = make(Headers)
	pos := 0

	for pos < len(b) {
		nameLen := int(b[pos])
		pos++
		if pos+nameLen > len(b) {
			return headers, false
		}
		name := string(b[pos : pos+nameLen])
		pos += nameLen

		if pos >= len(b) {
			return headers, false
		}
		tag := HeaderType(b[pos])
		pos++

		value, next, ok := decodeHeaderValue(b, pos, tag)
		if !ok {
			return headers, false
		}
		pos = next

		if tag == HeaderTypeTimestamp || tag == HeaderTypeUUID {
			continue
		}
		headers[name] = value
	}

	return headers, true
}

// decodeHeaderValue reads one value starting at pos and returns the
// position right after it.
func decodeHeaderValue(b []byte, pos int, tag HeaderType) (HeaderValue, int, bool) {
	need := func(n int) bool { return pos+n <= len(b) }

	switch tag {
	case HeaderTypeBoolTrue:
		return BoolHeader(true), pos, true
	case HeaderTypeBoolFalse:
		return BoolHeader(false), pos, true
	case HeaderTypeUint8:
		if !need(1) {
			return HeaderValue{}, pos, false
		}
		return Uint8Header(b[pos]), pos + 1, true
	case HeaderTypeInt16:
		if !need(2) {
			return HeaderValue{}, pos, false
		}
		return Int16Header(int16(binary.BigEndian.Uint16(b[pos:]))), pos + 2, true
	case HeaderTypeInt32:
		if !need(4) {
			return HeaderValue{}, pos, false
		}
		return Int32Header(int32(binary.BigEndian.Uint32(b[pos:]))), pos + 4, true
	case HeaderTypeInt64:
		if !need(8) {
			return HeaderValue{}, pos, false
		}
		return Int64Header(int64(binary.BigEndian.Uint64(b[pos:]))), pos + 8, true
	case HeaderTypeBytes, HeaderTypeString:
		if !need(2) {
			return HeaderValue{}, pos, false
		}
		n := int(binary.BigEndian.Uint16(b[pos:]))
		pos += 2
		if !need(n) {
			return HeaderValue{}, pos, false
		}
		raw := b[pos : pos+n]
		if tag == HeaderTypeString {
			return StringHeader(string(raw)), pos + n, true
		}
		return BytesHeader(bytes.Clone(raw)), pos + n, true
	case HeaderTypeTimestamp:
		if !need(8) {
			return HeaderValue{}, pos, false
		}
		return HeaderValue{Type: tag}, pos + 8, true
	case HeaderTypeUUID:
		if !need(16) {
			return HeaderValue{}, pos, false
		}
		return HeaderValue{Type: tag}, pos + 16, true
	default:
		return HeaderValue{}, pos, false
	}
}
