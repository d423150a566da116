package eventstream

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawPrelude(total, headers uint32) []byte {
	b := binary.BigEndian.AppendUint32(nil, total)
	b = binary.BigEndian.AppendUint32(b, headers)
	return append(b, 0, 0, 0, 0)
}

func TestPrelude_Valid(t *testing.T) {
	tests := []struct {
		name    string
		prelude Prelude
		want    bool
	}{
		{name: "typical", prelude: Prelude{TotalLength: 120, HeadersLength: 40}, want: true},
		{name: "at max size", prelude: Prelude{TotalLength: MaxMessageBytes, HeadersLength: 1}, want: true},
		{name: "zero total", prelude: Prelude{TotalLength: 0, HeadersLength: 0}, want: false},
		{name: "too large", prelude: Prelude{TotalLength: MaxMessageBytes + 1, HeadersLength: 1}, want: false},
		{name: "zero headers", prelude: Prelude{TotalLength: 20, HeadersLength: 0}, want: false},
		{name: "headers equal total", prelude: Prelude{TotalLength: 20, HeadersLength: 20}, want: false},
		{name: "headers exceed total", prelude: Prelude{TotalLength: 20, HeadersLength: 21}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.prelude.Valid())
		})
	}
}

func TestScanFrame_Statuses(t *testing.T) {
	frame := EventMessage("contentBlockDelta", []byte(`{"delta":{"text":"hi"}}`))

	garbage := bytes.Repeat([]byte{0xFF}, 16)

	// lengths are plausible but leave no room for a payload
	noPayload := append(rawPrelude(16, 1), 0, 0, 0, 0)

	tests := []struct {
		name       string
		buf        []byte
		offset     int
		wantStatus FrameStatus
		wantNext   int
	}{
		{name: "complete frame", buf: frame, wantStatus: FrameOK, wantNext: len(frame)},
		{name: "empty buffer", buf: nil, wantStatus: FrameIncomplete, wantNext: 0},
		{name: "short prelude", buf: frame[:PreludeLength-1], wantStatus: FrameIncomplete, wantNext: 0},
		{name: "prelude only", buf: frame[:PreludeLength], wantStatus: FramePartial, wantNext: 0},
		{name: "missing last byte", buf: frame[:len(frame)-1], wantStatus: FramePartial, wantNext: 0},
		{name: "offset at end", buf: frame, offset: len(frame), wantStatus: FrameIncomplete, wantNext: len(frame)},
		{name: "garbage", buf: garbage, wantStatus: FrameResync, wantNext: len(garbage)},
		{name: "headers reach payload end", buf: noPayload, wantStatus: FrameResync, wantNext: len(noPayload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ScanFrame(tt.buf, tt.offset)

			assert.Equal(t, tt.wantStatus, res.Status, "status %s", res.Status)
			assert.Equal(t, tt.wantNext, res.Next)
			if tt.wantStatus != FrameOK {
				assert.Nil(t, res.Headers)
				assert.Nil(t, res.Payload)
			}
		})
	}
}

func TestScanFrame_Consecutive(t *testing.T) {
	first := EventMessage("messageStart", []byte(`{"role":"assistant"}`))
	second := EventMessage("messageStop", []byte(`{"stopReason":"end_turn"}`))
	buf := append(append([]byte{}, first...), second...)

	res := ScanFrame(buf, 0)
	require.Equal(t, FrameOK, res.Status)
	assert.Equal(t, len(first), res.Next)
	assert.Equal(t, "messageStart", res.Message().Headers.String(HeaderEventType))

	res = ScanFrame(buf, res.Next)
	require.Equal(t, FrameOK, res.Status)
	assert.Equal(t, len(buf), res.Next)
	assert.Equal(t, `{"stopReason":"end_turn"}`, string(res.Message().Payload))
}

func TestScanFrame_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		headers []Header
		payload []byte
	}{
		{
			name: "converse event",
			headers: []Header{
				{Name: HeaderEventType, Value: StringHeader("contentBlockDelta")},
				{Name: HeaderContentType, Value: StringHeader("application/json")},
				{Name: HeaderMessageType, Value: StringHeader("event")},
			},
			payload: []byte(`{"contentBlockIndex":0,"delta":{"text":"Hello"}}`),
		},
		{
			name: "mixed header types",
			headers: []Header{
				{Name: "flag", Value: BoolHeader(true)},
				{Name: "off", Value: BoolHeader(false)},
				{Name: "small", Value: Uint8Header(9)},
				{Name: "short", Value: Int16Header(-2)},
				{Name: "int", Value: Int32Header(1 << 20)},
				{Name: "long", Value: Int64Header(-1 << 50)},
				{Name: "blob", Value: BytesHeader([]byte{1, 2, 3})},
			},
			payload: []byte{0x00, 0x01, 0x02},
		},
		{
			name:    "single header",
			headers: []Header{{Name: "x", Value: StringHeader("y")}},
			payload: []byte("{}"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeMessage(tt.headers, tt.payload)

			res := ScanFrame(frame, 0)
			require.Equal(t, FrameOK, res.Status)
			assert.Equal(t, uint32(len(frame)), res.Prelude.TotalLength)

			msg := res.Message()
			assert.True(t, msg.HeadersComplete)
			assert.Equal(t, tt.payload, msg.Payload)
			require.Len(t, msg.Headers, len(tt.headers))
			for _, h := range tt.headers {
				assert.Equal(t, h.Value, msg.Headers[h.Name], h.Name)
			}
		})
	}
}

func TestResync(t *testing.T) {
	frame := EventMessage("contentBlockStop", []byte(`{"contentBlockIndex":0}`))

	tests := []struct {
		name     string
		garbage  int
		wantNext int
	}{
		{name: "four garbage bytes", garbage: 4, wantNext: 4},
		{name: "five garbage bytes", garbage: 5, wantNext: 5},
		{name: "many garbage bytes", garbage: 37, wantNext: 37},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append(bytes.Repeat([]byte{0xFF}, tt.garbage), frame...)

			res := ScanFrame(buf, 0)
			require.Equal(t, FrameResync, res.Status)
			assert.Equal(t, tt.wantNext, res.Next)

			res = ScanFrame(buf, res.Next)
			require.Equal(t, FrameOK, res.Status)
			assert.Equal(t, "contentBlockStop", res.Message().Headers.String(HeaderEventType))
		})
	}
}

func TestResync_NoCandidate(t *testing.T) {
	buf := bytes.Repeat([]byte{0xFF}, 40)

	assert.Equal(t, len(buf), Resync(buf, 0))
	assert.Equal(t, len(buf), Resync(buf, 30))
	assert.Equal(t, len(buf), Resync(buf[:6], 0))
}

func TestResync_StartsFourBytesAhead(t *testing.T) {
	// a valid prelude one byte past the rejected offset is not considered
	frame := EventMessage("chunk", []byte(`{"bytes":""}`))
	buf := append([]byte{0xFF}, frame...)

	next := Resync(buf, 0)

	assert.NotEqual(t, 1, next)
}

func TestNextPrelude(t *testing.T) {
	frame := EventMessage("chunk", []byte(`{"bytes":"e30="}`))

	tests := []struct {
		name string
		buf  []byte
		from int
		want int
	}{
		{name: "frame at start", buf: frame, from: 0, want: 0},
		{name: "one garbage byte", buf: append([]byte{0xFF}, frame...), from: 0, want: 1},
		{name: "negative start", buf: frame, from: -4, want: 0},
		{name: "too short", buf: frame[:7], from: 0, want: 7},
		{name: "only garbage", buf: bytes.Repeat([]byte{0xFF}, 20), from: 0, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextPrelude(tt.buf, tt.from))
		})
	}
}

func TestUnprobedTail(t *testing.T) {
	buf := make([]byte, 20)

	assert.Equal(t, 13, UnprobedTail(buf, 0))
	assert.Equal(t, 16, UnprobedTail(buf, 16))
	assert.Equal(t, 20, UnprobedTail(buf, 25))
	assert.Equal(t, 0, UnprobedTail(buf[:5], 0))
}
