package llm

import (
	"maps"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ToolCallAccumulator reassembles streamed tool calls, one at a time, and
// collects usage counters. It is owned by a single Decoder and is not safe
// for concurrent use.
//
// Idle → Start → Accumulating → AppendArguments* → Stop → Idle
type ToolCallAccumulator struct {
	active     bool
	activeID   string
	activeName string
	args       strings.Builder

	completed []ToolCall
	index     map[string]int // tool id -> position in completed

	usage map[string]uint64

	log *logrus.Entry
}

func NewToolCallAccumulator(log *logrus.Entry) *ToolCallAccumulator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ToolCallAccumulator{
		index: make(map[string]int),
		usage: make(map[string]uint64),
		log:   log,
	}
}

// Active reports whether a tool call is being accumulated.
func (a *ToolCallAccumulator) Active() bool {
	return a.active
}

// Start begins a new tool call. An unfinished call is discarded.
func (a *ToolCallAccumulator) Start(id, name string) {
	if a.active {
		a.log.WithFields(logrus.Fields{
			"tool_id":     a.activeID,
			"tool_name":   a.activeName,
			"args_len":    a.args.Len(),
			"new_tool_id": id,
		}).Debug("Discarding unfinished tool call")
	}

	a.active = true
	a.activeID = id
	a.activeName = name
	a.args.Reset()

	a.log.WithFields(logrus.Fields{
		"tool_id":   id,
		"tool_name": name,
	}).Trace("Tool call started")
}

// AppendArguments adds a fragment of the argument JSON text. No-op while idle.
func (a *ToolCallAccumulator) AppendArguments(fragment string) {
	if !a.active {
		return
	}
	a.args.WriteString(fragment)
}

// Stop completes the active tool call. Its arguments are the accumulated
// text parsed as a JSON object, or an empty object when that fails. It
// returns false while idle.
func (a *ToolCallAccumulator) Stop() (ToolCall, bool) {
	if !a.active {
		return ToolCall{}, false
	}

	raw := a.args.String()
	args, ok := parseArguments(raw)
	if !ok && raw != "" {
		a.log.WithFields(logrus.Fields{
			"tool_id":  a.activeID,
			"args_len": len(raw),
		}).Debug("Tool call arguments are not a JSON object, using {}")
	}
	call := ToolCall{
		ID:        a.activeID,
		Name:      a.activeName,
		Arguments: args,
	}

	if i, ok := a.index[call.ID]; ok {
		a.completed[i] = call
	} else {
		a.index[call.ID] = len(a.completed)
		a.completed = append(a.completed, call)
	}

	a.active = false
	a.activeID = ""
	a.activeName = ""
	a.args.Reset()

	return call, true
}

// RecordUsage merges counters into the usage map; later values win.
func (a *ToolCallAccumulator) RecordUsage(usage map[string]uint64) {
	maps.Copy(a.usage, usage)
}

// ToolCalls returns completed calls in completion order.
func (a *ToolCallAccumulator) ToolCalls() []ToolCall {
	return append([]ToolCall(nil), a.completed...)
}

// Usage returns a copy of the usage counters.
func (a *ToolCallAccumulator) Usage() map[string]uint64 {
	return maps.Clone(a.usage)
}

// parseArguments never returns nil; ok is false when raw is not an object.
func parseArguments(raw string) (map[string]any, bool) {
	if !gjson.Valid(raw) {
		return map[string]any{}, false
	}
	args, ok := gjson.Parse(raw).Value().(map[string]any)
	if !ok || args == nil {
		return map[string]any{}, false
	}
	return args, true
}
