package llm

import (
	"github.com/tidwall/gjson"
)

// RouteKind is where a normalized event goes.
type RouteKind int

const (
	// RouteContent produces a content chunk. It is the default.
	RouteContent RouteKind = iota
	RouteToolStart
	RouteToolDelta
	RouteToolStop
	RouteUsage
)

func (k RouteKind) String() string {
	switch k {
	case RouteContent:
		return "content"
	case RouteToolStart:
		return "tool_start"
	case RouteToolDelta:
		return "tool_delta"
	case RouteToolStop:
		return "tool_stop"
	case RouteUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Route is the classification of one event together with the fields its
// destination needs.
type Route struct {
	Kind RouteKind

	// RouteContent
	Text string

	// RouteToolStart
	ToolID   string
	ToolName string

	// RouteToolDelta
	Fragment string

	// RouteUsage
	Usage map[string]uint64
}

// Body paths of each usage event, mapped to usage keys.
var (
	converseUsagePaths = map[string]string{
		"usage.inputTokens":           UsageInputTokens,
		"usage.outputTokens":          UsageOutputTokens,
		"usage.totalTokens":           UsageTotalTokens,
		"usage.cacheReadInputTokens":  UsageCacheReadTokens,
		"usage.cacheWriteInputTokens": UsageCacheWriteTokens,
		"metrics.latencyMs":           UsageLatencyMs,
	}
	invocationMetricsPaths = map[string]string{
		"inputTokenCount":   UsageInputTokens,
		"outputTokenCount":  UsageOutputTokens,
		"invocationLatency": UsageLatencyMs,
		"firstByteLatency":  UsageFirstByteLatencyMs,
	}
)

const invocationMetricsKey = "amazon-bedrock-invocationMetrics"

// Classify routes an event. Tool lifecycle events are checked first, then
// usage events; anything else is content, with empty text for events that
// carry none.
func Classify(ev NormalizedEvent) Route {
	body := gjson.ParseBytes(ev.Body)

	switch StreamEventType(ev.Type) {
	case EventContentBlockStart:
		block := body.Get("content_block")
		if block.Get("type").String() == "tool_use" {
			id, name := block.Get("id").String(), block.Get("name").String()
			if id != "" && name != "" {
				return Route{Kind: RouteToolStart, ToolID: id, ToolName: name}
			}
		}
		return Route{Kind: RouteContent, Text: block.Get("text").String()}

	case EventConverseContentBlockStart:
		tool := body.Get("start.toolUse")
		id, name := tool.Get("toolUseId").String(), tool.Get("name").String()
		if id != "" && name != "" {
			return Route{Kind: RouteToolStart, ToolID: id, ToolName: name}
		}
		return Route{Kind: RouteContent}

	case EventContentBlockDelta:
		delta := body.Get("delta")
		if delta.Get("type").String() == "input_json_delta" {
			return Route{Kind: RouteToolDelta, Fragment: delta.Get("partial_json").String()}
		}
		return Route{Kind: RouteContent, Text: delta.Get("text").String()}

	case EventConverseContentBlockDelta:
		delta := body.Get("delta")
		if input := delta.Get("toolUse.input"); input.Type == gjson.String {
			return Route{Kind: RouteToolDelta, Fragment: input.String()}
		}
		return Route{Kind: RouteContent, Text: delta.Get("text").String()}

	case EventContentBlockStop, EventConverseContentBlockStop:
		return Route{Kind: RouteToolStop}

	case EventConverseMetadata:
		return Route{Kind: RouteUsage, Usage: collectUsage(body, converseUsagePaths)}

	case EventMessageStop:
		if metrics := body.Get(invocationMetricsKey); metrics.IsObject() {
			return Route{Kind: RouteUsage, Usage: collectUsage(metrics, invocationMetricsPaths)}
		}
	}

	return Route{Kind: RouteContent}
}

// collectUsage reads the non-negative numbers found at paths.
func collectUsage(obj gjson.Result, paths map[string]string) map[string]uint64 {
	usage := make(map[string]uint64, len(paths))
	for path, key := range paths {
		v := obj.Get(path)
		if v.Type != gjson.Number || v.Num < 0 {
			continue
		}
		usage[key] = v.Uint()
	}
	return usage
}
