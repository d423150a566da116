package llm

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	tu "github.com/alex-ilgayev/llmstream/internal/testing"
	"github.com/alex-ilgayev/llmstream/pkg/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	frames     []string
	resynced   int
	drops      map[DropReason]int
	chunks     int
	toolCalls  []string
	exceptions []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{drops: make(map[DropReason]int)}
}

func (o *recordingObserver) FrameDecoded(eventType string) { o.frames = append(o.frames, eventType) }
func (o *recordingObserver) Resynced(skipped int)          { o.resynced += skipped }
func (o *recordingObserver) Dropped(reason DropReason)     { o.drops[reason]++ }
func (o *recordingObserver) ChunkEmitted()                 { o.chunks++ }
func (o *recordingObserver) ToolCallCompleted(name string) { o.toolCalls = append(o.toolCalls, name) }
func (o *recordingObserver) ExceptionReceived(t string)    { o.exceptions = append(o.exceptions, t) }

// decodeAll feeds the parts in order and returns chunk texts and the result.
func decodeAll(d *Decoder, parts ...[]byte) ([]string, Result) {
	var texts []string
	emit := func(c ContentChunk) { texts = append(texts, c.Text) }
	for _, p := range parts {
		d.Feed(p, emit)
	}
	return texts, d.Finalize(emit)
}

func TestDecoder_HelloScenario(t *testing.T) {
	stream := tu.Concat(
		tu.ConverseFrame("contentBlockDelta", `{"contentBlockIndex":0,"delta":{"text":"Hel"}}`),
		tu.ConverseFrame("contentBlockDelta", `{"contentBlockIndex":0,"delta":{"text":"lo"}}`),
	)

	var chunks []ContentChunk
	d := NewDecoder(WithModelID("anthropic.claude-3-haiku"))
	d.Feed(stream, func(c ContentChunk) { chunks = append(chunks, c) })

	require.Len(t, chunks, 2)
	assert.Equal(t, "Hel", chunks[0].Text)
	assert.Equal(t, "lo", chunks[1].Text)
	for _, c := range chunks {
		assert.Equal(t, RoleAssistant, c.Role)
		require.NotNil(t, c.ModelID)
		assert.Equal(t, "anthropic.claude-3-haiku", *c.ModelID)
		assert.Nil(t, c.InputTokens)
		assert.Nil(t, c.OutputTokens)
	}
}

func TestDecoder_NoModelID(t *testing.T) {
	var chunks []ContentChunk
	d := NewDecoder()
	d.Feed(tu.ConverseFrame("contentBlockDelta", `{"delta":{"text":"x"}}`), func(c ContentChunk) {
		chunks = append(chunks, c)
	})

	require.Len(t, chunks, 1)
	assert.Nil(t, chunks[0].ModelID)
}

func TestDecoder_SplitAtEveryOffset(t *testing.T) {
	streams := []struct {
		name   string
		stream []byte
	}{
		{name: "converse text", stream: tu.ConverseTextStream("Hel", "lo")},
		{name: "converse tool", stream: tu.ConverseToolStream("tooluse_1", "calc", `{"a":`, `1}`)},
		{name: "legacy tool", stream: tu.LegacyToolStream("toolu_1", "calc", `{"a":`, `1}`)},
	}

	for _, s := range streams {
		t.Run(s.name, func(t *testing.T) {
			wantTexts, wantResult := decodeAll(NewDecoder(), s.stream)
			require.Zero(t, wantResult.Leftover)

			for cut := 0; cut <= len(s.stream); cut++ {
				obs := newRecordingObserver()
				texts, result := decodeAll(NewDecoder(WithObserver(obs)), s.stream[:cut], s.stream[cut:])

				require.Equal(t, wantTexts, texts, "cut at %d", cut)
				require.Equal(t, wantResult, result, "cut at %d", cut)
				require.Zero(t, obs.resynced, "cut at %d", cut)
			}
		})
	}
}

func TestDecoder_OneByteAtATime(t *testing.T) {
	stream := tu.ConverseTextStream("a", "b", "c")
	wantTexts, wantResult := decodeAll(NewDecoder(), stream)

	parts := make([][]byte, len(stream))
	for i := range stream {
		parts[i] = stream[i : i+1]
	}
	texts, result := decodeAll(NewDecoder(), parts...)

	assert.Equal(t, wantTexts, texts)
	assert.Equal(t, wantResult, result)
}

func TestDecoder_ResyncPastGarbage(t *testing.T) {
	frame := tu.ConverseFrame("contentBlockDelta", `{"delta":{"text":"ok"}}`)

	tests := []struct {
		name    string
		garbage []byte
	}{
		{name: "four bytes", garbage: bytes.Repeat([]byte{0xFF}, 4)},
		{name: "eleven bytes", garbage: bytes.Repeat([]byte{0xFF}, 11)},
		{name: "long run", garbage: bytes.Repeat([]byte{0xFF}, 300)},
		{name: "implausible prelude", garbage: []byte{0x7F, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x10, 0xAA, 0xBB, 0xCC, 0xDD}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := tu.Concat(tt.garbage, frame)

			obs := newRecordingObserver()
			texts, result := decodeAll(NewDecoder(WithObserver(obs)), stream)

			assert.Equal(t, []string{"ok"}, texts)
			assert.Equal(t, len(tt.garbage), obs.resynced)
			assert.Zero(t, result.Leftover)

			// same outcome when the garbage arrives in its own read
			obs = newRecordingObserver()
			texts, _ = decodeAll(NewDecoder(WithObserver(obs)), tt.garbage, frame)
			assert.Equal(t, []string{"ok"}, texts)
			assert.Equal(t, len(tt.garbage), obs.resynced)
		})
	}
}

func TestDecoder_ResyncKeepsUnprobedTail(t *testing.T) {
	frame := tu.ConverseFrame("contentBlockDelta", `{"delta":{"text":"tail"}}`)
	garbage := bytes.Repeat([]byte{0xFF}, 20)

	// the first read ends five bytes into the frame, inside the region a
	// resync probe cannot examine yet
	stream := tu.Concat(garbage, frame)
	first, second := stream[:len(garbage)+5], stream[len(garbage)+5:]

	obs := newRecordingObserver()
	texts, result := decodeAll(NewDecoder(WithObserver(obs)), first, second)

	assert.Equal(t, []string{"tail"}, texts)
	assert.Equal(t, len(garbage), obs.resynced)
	assert.Zero(t, result.Leftover)
}

func TestDecoder_GarbageOnly(t *testing.T) {
	obs := newRecordingObserver()
	texts, result := decodeAll(NewDecoder(WithObserver(obs)), bytes.Repeat([]byte{0xFF}, 50))

	assert.Empty(t, texts)
	assert.Empty(t, obs.frames)
	// the unprobed tail is reported as leftover
	assert.Equal(t, 7, result.Leftover)
	assert.Equal(t, 43, obs.resynced)
}

func TestDecoder_ToolCallAccumulation(t *testing.T) {
	tests := []struct {
		name      string
		stream    []byte
		wantID    string
		wantArgs  map[string]any
		wantUsage map[string]uint64
	}{
		{
			name:     "converse",
			stream:   tu.Concat(tu.ConverseToolStream("tooluse_1", "calc", `{"a":`, `1}`), tu.ConverseFrame("metadata", `{"usage":{"inputTokens":4,"outputTokens":2,"totalTokens":6}}`)),
			wantID:   "tooluse_1",
			wantArgs: map[string]any{"a": float64(1)},
			wantUsage: map[string]uint64{
				UsageInputTokens:  4,
				UsageOutputTokens: 2,
				UsageTotalTokens:  6,
			},
		},
		{
			name:     "legacy",
			stream:   tu.LegacyToolStream("toolu_1", "calc", `{"a":`, `1}`),
			wantID:   "toolu_1",
			wantArgs: map[string]any{"a": float64(1)},
			wantUsage: map[string]uint64{
				UsageInputTokens:        7,
				UsageOutputTokens:       3,
				UsageLatencyMs:          250,
				UsageFirstByteLatencyMs: 80,
			},
		},
		{
			name:      "malformed arguments",
			stream:    tu.ConverseToolStream("tooluse_2", "calc", "not json"),
			wantID:    "tooluse_2",
			wantArgs:  map[string]any{},
			wantUsage: map[string]uint64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := newRecordingObserver()
			_, result := decodeAll(NewDecoder(WithObserver(obs)), tt.stream)

			require.Len(t, result.ToolCalls, 1)
			assert.Equal(t, tt.wantID, result.ToolCalls[0].ID)
			assert.Equal(t, "calc", result.ToolCalls[0].Name)
			assert.Equal(t, tt.wantArgs, result.ToolCalls[0].Arguments)
			assert.Equal(t, tt.wantUsage, result.Usage)
			assert.Equal(t, []string{"calc"}, obs.toolCalls)
			assert.NoError(t, result.Err())
		})
	}
}

func TestDecoder_NoChunksForLifecycleAndMetadata(t *testing.T) {
	frames := []struct {
		name  string
		frame []byte
	}{
		{name: "converse tool start", frame: tu.ConverseFrame("contentBlockStart", `{"start":{"toolUse":{"toolUseId":"t","name":"n"}}}`)},
		{name: "converse tool delta", frame: tu.ConverseFrame("contentBlockDelta", `{"delta":{"toolUse":{"input":"{}"}}}`)},
		{name: "converse block stop", frame: tu.ConverseFrame("contentBlockStop", `{"contentBlockIndex":0}`)},
		{name: "converse metadata", frame: tu.ConverseFrame("metadata", `{"usage":{"inputTokens":1}}`)},
		{name: "legacy tool start", frame: tu.LegacyFrame(`{"type":"content_block_start","content_block":{"type":"tool_use","id":"t","name":"n"}}`)},
		{name: "legacy tool delta", frame: tu.LegacyFrame(`{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{}"}}`)},
		{name: "legacy block stop", frame: tu.LegacyFrame(`{"type":"content_block_stop","index":0}`)},
		{name: "legacy metrics", frame: tu.LegacyFrame(`{"type":"message_stop","amazon-bedrock-invocationMetrics":{"inputTokenCount":1}}`)},
	}

	for _, tt := range frames {
		t.Run(tt.name, func(t *testing.T) {
			texts, _ := decodeAll(NewDecoder(), tt.frame)
			assert.Empty(t, texts)
		})
	}

	// the whole sequence in one stream
	var all [][]byte
	for _, f := range frames {
		all = append(all, f.frame)
	}
	obs := newRecordingObserver()
	texts, result := decodeAll(NewDecoder(WithObserver(obs)), tu.Concat(all...))
	assert.Empty(t, texts)
	assert.Zero(t, obs.chunks)
	assert.Len(t, obs.frames, len(frames))
	assert.Len(t, result.ToolCalls, 1)
}

func TestDecoder_DropsMalformedPayloads(t *testing.T) {
	stream := tu.Concat(
		tu.ConverseFrame("contentBlockDelta", `not an object`),
		tu.ConverseFrame("contentBlockDelta", `{"delta":`+`{"text":"broken"}`),
		eventstream.EventMessage("chunk", []byte(`{"bytes":"%%%"}`)),
		tu.ConverseFrame("contentBlockDelta", `{"delta":{"text":"fine"}}`),
	)

	obs := newRecordingObserver()
	texts, _ := decodeAll(NewDecoder(WithObserver(obs)), stream)

	assert.Equal(t, []string{"fine"}, texts)
	assert.Equal(t, 1, obs.drops[DropNoObject])
	assert.Equal(t, 1, obs.drops[DropInvalidJSON])
	assert.Equal(t, 1, obs.drops[DropInvalidBase64])
	assert.Len(t, obs.frames, 4)
}

func TestDecoder_Exception(t *testing.T) {
	stream := tu.Concat(
		tu.ConverseFrame("contentBlockDelta", `{"delta":{"text":"partial"}}`),
		tu.ExceptionFrame("throttlingException", "Too many requests, please wait"),
		tu.ExceptionFrame("internalServerException", "second one is ignored"),
	)

	obs := newRecordingObserver()
	texts, result := decodeAll(NewDecoder(WithObserver(obs)), stream)

	assert.Equal(t, []string{"partial"}, texts)
	require.NotNil(t, result.Exception)
	assert.Equal(t, "throttlingException", result.Exception.Type)
	assert.Equal(t, "Too many requests, please wait", result.Exception.Message)
	assert.Zero(t, result.Exception.StatusCode)
	assert.True(t, result.Exception.Throttled())
	assert.Equal(t, []string{"throttlingException", "internalServerException"}, obs.exceptions)

	var upstream *UpstreamError
	require.True(t, errors.As(result.Err(), &upstream))
	assert.Same(t, result.Exception, upstream)
}

func TestDecoder_ErrorCodeHeader(t *testing.T) {
	frame := eventstream.EncodeMessage([]eventstream.Header{
		{Name: eventstream.HeaderMessageType, Value: eventstream.StringHeader("error")},
		{Name: eventstream.HeaderErrorCode, Value: eventstream.StringHeader("ValidationException")},
		{Name: eventstream.HeaderErrorMessage, Value: eventstream.StringHeader("bad input")},
	}, []byte("-"))

	_, result := decodeAll(NewDecoder(), frame)

	require.NotNil(t, result.Exception)
	assert.Equal(t, "ValidationException", result.Exception.Type)
	assert.Equal(t, "bad input", result.Exception.Message)
}

func TestDecoder_WriteWithIOCopy(t *testing.T) {
	stream := tu.ConverseTextStream("Hel", "lo", "!")

	var texts []string
	handler := func(c ContentChunk) {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	d := NewDecoder(WithChunkHandler(handler))

	n, err := io.Copy(d, iotest.OneByteReader(bytes.NewReader(stream)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(stream)), n)

	result := d.Finalize(handler)
	assert.Equal(t, []string{"Hel", "lo", "!"}, texts)
	assert.Equal(t, uint64(15), result.Usage[UsageTotalTokens])
	assert.Equal(t, uint64(120), result.Usage[UsageLatencyMs])
}

func TestDecoder_FinalizeReportsLeftover(t *testing.T) {
	frame := tu.ConverseFrame("contentBlockDelta", `{"delta":{"text":"x"}}`)

	d := NewDecoder()
	texts, result := decodeAll(d, frame[:len(frame)-3])

	assert.Empty(t, texts)
	assert.Equal(t, len(frame)-3, result.Leftover)

	// state is reset
	assert.Zero(t, d.Finalize(nil).Leftover)
}

func TestDecoder_FinalizeResyncsPastTruncatedFrame(t *testing.T) {
	big := tu.ConverseFrame("contentBlockDelta", `{"delta":{"text":"`+strings.Repeat("x", 500)+`"}}`)
	// claims 900000 bytes, far more than the stream holds
	bogus := []byte{0x00, 0x0D, 0xBB, 0xA0, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x00, 0x00}

	tests := []struct {
		name      string
		prefix    []byte
		rest      []byte
		wantTexts []string
	}{
		{
			name:      "truncated frame before a valid one",
			prefix:    big[:40],
			rest:      tu.ConverseFrame("contentBlockDelta", `{"delta":{"text":"Hi"}}`),
			wantTexts: []string{"Hi"},
		},
		{
			name:      "plausible garbage prelude",
			prefix:    bogus,
			rest:      tu.ConverseTextStream("Hel", "lo"),
			wantTexts: []string{"Hel", "lo"},
		},
	}

	nonEmpty := func(texts []string) []string {
		var out []string
		for _, text := range texts {
			if text != "" {
				out = append(out, text)
			}
		}
		return out
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := tu.Concat(tt.prefix, tt.rest)

			obs := newRecordingObserver()
			texts, result := decodeAll(NewDecoder(WithObserver(obs)), stream)
			assert.Equal(t, tt.wantTexts, nonEmpty(texts))
			assert.Equal(t, len(tt.prefix), obs.resynced)
			assert.Zero(t, result.Leftover)

			// split reads end the same way
			texts, result = decodeAll(NewDecoder(), tt.prefix, tt.rest)
			assert.Equal(t, tt.wantTexts, nonEmpty(texts))
			assert.Zero(t, result.Leftover)

			parts := make([][]byte, 0, len(stream))
			for i := range stream {
				parts = append(parts, stream[i:i+1])
			}
			texts, result = decodeAll(NewDecoder(), parts...)
			assert.Equal(t, tt.wantTexts, nonEmpty(texts))
			assert.Zero(t, result.Leftover)
		})
	}
}

func TestDecoder_LargeFrameInSmallReads(t *testing.T) {
	text := strings.Repeat("abcdefgh", 32*1024)
	stream := tu.Concat(
		tu.ConverseFrame("contentBlockDelta", `{"delta":{"text":"`+text+`"}}`),
		tu.ConverseFrame("contentBlockDelta", `{"delta":{"text":"end"}}`),
	)

	var parts [][]byte
	for off := 0; off < len(stream); off += 4096 {
		parts = append(parts, stream[off:min(off+4096, len(stream))])
	}

	obs := newRecordingObserver()
	texts, result := decodeAll(NewDecoder(WithObserver(obs)), parts...)

	assert.Equal(t, []string{text, "end"}, texts)
	assert.Zero(t, obs.resynced)
	assert.Zero(t, result.Leftover)
}

func TestDecoder_StreamID(t *testing.T) {
	assert.Equal(t, "fixed-id", NewDecoder(WithStreamID("fixed-id")).StreamID())

	a, b := NewDecoder(), NewDecoder()
	assert.NotEmpty(t, a.StreamID())
	assert.NotEqual(t, a.StreamID(), b.StreamID())
}
