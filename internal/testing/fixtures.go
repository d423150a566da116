package testing

import (
	"encoding/base64"
	"fmt"

	"github.com/alex-ilgayev/llmstream/pkg/eventstream"
	"github.com/tidwall/sjson"
)

// ConverseFrame encodes a converse-stream event frame.
func ConverseFrame(eventType, body string) []byte {
	return eventstream.EventMessage(eventType, []byte(body))
}

// LegacyFrame encodes an invoke-with-response-stream "chunk" frame wrapping
// body as {"bytes": base64(body)}.
func LegacyFrame(body string) []byte {
	payload, err := sjson.SetBytes([]byte(`{}`), "bytes", base64.StdEncoding.EncodeToString([]byte(body)))
	if err != nil {
		panic(err)
	}
	return eventstream.EventMessage("chunk", payload)
}

// ExceptionFrame encodes an in-stream exception frame.
func ExceptionFrame(exceptionType, message string) []byte {
	payload, err := sjson.SetBytes([]byte(`{}`), "message", message)
	if err != nil {
		panic(err)
	}
	return eventstream.EncodeMessage([]eventstream.Header{
		{Name: eventstream.HeaderExceptionType, Value: eventstream.StringHeader(exceptionType)},
		{Name: eventstream.HeaderContentType, Value: eventstream.StringHeader("application/json")},
		{Name: eventstream.HeaderMessageType, Value: eventstream.StringHeader("exception")},
	}, payload)
}

// Concat joins frames into one byte stream.
func Concat(frames ...[]byte) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// ConverseTextStream is a complete converse stream answering with texts,
// followed by usage metadata.
func ConverseTextStream(texts ...string) []byte {
	frames := [][]byte{ConverseFrame("messageStart", `{"role":"assistant"}`)}
	for _, text := range texts {
		body, err := sjson.Set(`{"contentBlockIndex":0}`, "delta.text", text)
		if err != nil {
			panic(err)
		}
		frames = append(frames, ConverseFrame("contentBlockDelta", body))
	}
	frames = append(frames,
		ConverseFrame("contentBlockStop", `{"contentBlockIndex":0}`),
		ConverseFrame("messageStop", `{"stopReason":"end_turn"}`),
		ConverseFrame("metadata", `{"usage":{"inputTokens":10,"outputTokens":5,"totalTokens":15},"metrics":{"latencyMs":120}}`),
	)
	return Concat(frames...)
}

// ConverseToolStream is a converse stream in which the model calls one tool
// whose input arrives as fragments.
func ConverseToolStream(id, name string, fragments ...string) []byte {
	frames := [][]byte{
		ConverseFrame("messageStart", `{"role":"assistant"}`),
		ConverseFrame("contentBlockStart", fmt.Sprintf(`{"contentBlockIndex":1,"start":{"toolUse":{"toolUseId":%q,"name":%q}}}`, id, name)),
	}
	for _, f := range fragments {
		body, err := sjson.Set(`{"contentBlockIndex":1}`, "delta.toolUse.input", f)
		if err != nil {
			panic(err)
		}
		frames = append(frames, ConverseFrame("contentBlockDelta", body))
	}
	frames = append(frames,
		ConverseFrame("contentBlockStop", `{"contentBlockIndex":1}`),
		ConverseFrame("messageStop", `{"stopReason":"tool_use"}`),
	)
	return Concat(frames...)
}

// LegacyToolStream is the invoke dialect equivalent of ConverseToolStream,
// ending with Bedrock invocation metrics.
func LegacyToolStream(id, name string, fragments ...string) []byte {
	frames := [][]byte{
		LegacyFrame(`{"type":"message_start","message":{"role":"assistant","usage":{"input_tokens":7}}}`),
		LegacyFrame(fmt.Sprintf(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":%q,"name":%q,"input":{}}}`, id, name)),
	}
	for _, f := range fragments {
		body, err := sjson.Set(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta"}}`, "delta.partial_json", f)
		if err != nil {
			panic(err)
		}
		frames = append(frames, LegacyFrame(body))
	}
	frames = append(frames,
		LegacyFrame(`{"type":"content_block_stop","index":0}`),
		LegacyFrame(`{"type":"message_stop","amazon-bedrock-invocationMetrics":{"inputTokenCount":7,"outputTokenCount":3,"invocationLatency":250,"firstByteLatency":80}}`),
	)
	return Concat(frames...)
}
