package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/alex-ilgayev/llmstream/pkg/event"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

// JSONLDisplay handles JSONL output formatting
type JSONLDisplay struct {
	writer io.Writer
}

// NewJSONLDisplay creates a new display handler for JSONL output with custom writer
func NewJSONLDisplay(writer io.Writer) *JSONLDisplay {
	return &JSONLDisplay{
		writer: writer,
	}
}

// PrintHeader does nothing for JSONL output (no header needed)
func (j *JSONLDisplay) PrintHeader() {
	// No header for JSONL output
}

// PrintStats does nothing for JSONL output (usage is emitted as an event)
func (j *JSONLDisplay) PrintStats(usage map[string]uint64) {
	// No stats output for JSONL format
}

// PrintInfo does nothing for JSONL output (info messages not applicable)
func (j *JSONLDisplay) PrintInfo(format string, args ...interface{}) {
	// No info messages for JSONL format
}

// HandleEvent writes e as one JSON line with its event type under "event".
func (j *JSONLDisplay) HandleEvent(e event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		logrus.WithError(err).Error("failed to marshal event")
		return
	}

	data, err = sjson.SetBytes(data, "event", e.Type().String())
	if err != nil {
		logrus.WithError(err).Error("failed to tag event")
		return
	}

	fmt.Fprintf(j.writer, "%s\n", string(data))
}
