// Package llm turns decoded event-stream frames into LLM streaming output:
// content chunks delivered in wire order, reassembled tool calls and usage
// counters.
package llm

// StreamEventType is the resolved "type" of a normalized event.
//
// Two payload dialects share this namespace. Converse streams name each event
// through the :event-type header (camelCase); legacy invoke streams wrap an
// Anthropic messages event in {"bytes": base64} and the event names itself
// through its "type" field (snake_case).
type StreamEventType string

// Legacy invoke dialect (Anthropic messages events).
// Events arrive in order: message_start → content_block_start →
// content_block_delta(s) → content_block_stop → message_delta → message_stop
const (
	// EventMessageStart opens the message. It carries model and initial usage
	// and produces an empty content chunk.
	//
	// Example: {"type":"message_start","message":{"id":"msg_bdrk_01","type":"message","role":"assistant","model":"claude-3-5-sonnet-20241022","content":[],"usage":{"input_tokens":12,"output_tokens":1}}}
	EventMessageStart StreamEventType = "message_start"

	// EventContentBlockStart opens a text or tool_use block.
	//
	// Example (text): {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}
	// Example (tool): {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_bdrk_01","name":"get_weather","input":{}}}
	EventContentBlockStart StreamEventType = "content_block_start"

	// EventContentBlockDelta carries either a text fragment (text_delta) or a
	// fragment of the tool input JSON (input_json_delta).
	//
	// Example (text): {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}
	// Example (tool): {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}
	EventContentBlockDelta StreamEventType = "content_block_delta"

	// EventContentBlockStop closes the current block.
	//
	// Example: {"type":"content_block_stop","index":1}
	EventContentBlockStop StreamEventType = "content_block_stop"

	// EventMessageDelta carries the stop reason.
	//
	// Example: {"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":42}}
	EventMessageDelta StreamEventType = "message_delta"

	// EventMessageStop ends the message. Bedrock appends its invocation
	// metrics here, which makes it the usage event of this dialect.
	//
	// Example: {"type":"message_stop","amazon-bedrock-invocationMetrics":{"inputTokenCount":12,"outputTokenCount":42,"invocationLatency":1830,"firstByteLatency":410}}
	EventMessageStop StreamEventType = "message_stop"

	// EventPing is a keep-alive.
	//
	// Example: {"type":"ping"}
	EventPing StreamEventType = "ping"
)

// Converse dialect. Bodies carry no "type"; it comes from :event-type.
const (
	// Example: {"role":"assistant"}
	EventConverseMessageStart StreamEventType = "messageStart"

	// Only tool blocks announce themselves; text blocks start with the
	// first delta.
	//
	// Example: {"contentBlockIndex":1,"start":{"toolUse":{"toolUseId":"tooluse_abc","name":"get_weather"}}}
	EventConverseContentBlockStart StreamEventType = "contentBlockStart"

	// Example (text): {"contentBlockIndex":0,"delta":{"text":"Hel"}}
	// Example (tool): {"contentBlockIndex":1,"delta":{"toolUse":{"input":"{\"city\":"}}}
	EventConverseContentBlockDelta StreamEventType = "contentBlockDelta"

	// Example: {"contentBlockIndex":1}
	EventConverseContentBlockStop StreamEventType = "contentBlockStop"

	// Example: {"stopReason":"tool_use"}
	EventConverseMessageStop StreamEventType = "messageStop"

	// EventConverseMetadata is the last event and the usage event of this
	// dialect.
	//
	// Example: {"usage":{"inputTokens":12,"outputTokens":42,"totalTokens":54},"metrics":{"latencyMs":1830}}
	EventConverseMetadata StreamEventType = "metadata"
)

// Keys of the usage map.
const (
	UsageInputTokens        = "input_tokens"
	UsageOutputTokens       = "output_tokens"
	UsageTotalTokens        = "total_tokens"
	UsageCacheReadTokens    = "cache_read_input_tokens"
	UsageCacheWriteTokens   = "cache_write_input_tokens"
	UsageLatencyMs          = "latency_ms"
	UsageFirstByteLatencyMs = "first_byte_latency_ms"
)

// RoleAssistant is the role of every content chunk.
const RoleAssistant = "assistant"

// ContentChunk is one piece of streamed model output. Token counts are
// never set on content chunks; usage is reported through the decoder result.
type ContentChunk struct {
	Role         string
	ModelID      *string
	Text         string
	InputTokens  *uint64
	OutputTokens *uint64
}

// ChunkHandler receives content chunks in wire order.
type ChunkHandler func(ContentChunk)

// ToolCall is a fully reassembled tool invocation.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
