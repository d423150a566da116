package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alex-ilgayev/llmstream/pkg/event"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// ConsoleDisplay renders streams for a terminal: content is printed as it
// arrives, tool calls and errors as blocks, usage as a table.
type ConsoleDisplay struct {
	writer    io.Writer
	showUsage bool

	// midLine is set while content has been printed without a newline.
	midLine bool
}

// NewConsoleDisplay creates a new display handler for console output with custom writer
func NewConsoleDisplay(writer io.Writer, showUsage bool) *ConsoleDisplay {
	return &ConsoleDisplay{
		writer:    writer,
		showUsage: showUsage,
	}
}

// Colors for different elements
var (
	timestampColor = color.New(color.FgHiBlack)
	modelColor     = color.New(color.FgCyan)
	toolColor      = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
	errorCodeColor = color.New(color.FgHiRed)
	headerColor    = color.New(color.FgWhite, color.Bold)
	idColor        = color.New(color.FgHiBlack)
)

// PrintHeader prints the tool header
func (d *ConsoleDisplay) PrintHeader() {
	headerColor.Fprintln(d.writer, "llmstream")
	fmt.Fprintln(d.writer, "Streaming model responses over AWS event streams")
	fmt.Fprintln(d.writer, strings.Repeat("─", 80))
}

// PrintStats prints the usage table
func (d *ConsoleDisplay) PrintStats(usage map[string]uint64) {
	if len(usage) == 0 {
		return
	}

	d.endLine()
	fmt.Fprintln(d.writer, strings.Repeat("─", 80))
	headerColor.Fprintln(d.writer, "Usage:")

	keys := make([]string, 0, len(usage))
	for k := range usage {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(d.writer)
	table.SetHeader([]string{"Counter", "Value"})
	table.SetBorder(false)
	table.SetColumnSeparator("│")
	table.SetRowSeparator("─")
	table.SetHeaderLine(true)

	for _, k := range keys {
		table.Append([]string{k, fmt.Sprintf("%d", usage[k])})
	}

	table.Render()
}

// PrintInfo prints an info message
func (d *ConsoleDisplay) PrintInfo(format string, args ...interface{}) {
	d.endLine()
	fmt.Fprintf(d.writer, format+"\n", args...)
}

func (d *ConsoleDisplay) HandleEvent(e event.Event) {
	switch evt := e.(type) {
	case *event.StreamStartEvent:
		d.endLine()
		ts := timestampColor.Sprint(evt.Timestamp.Format("15:04:05.000"))
		fmt.Fprintf(d.writer, "%s %s %s %s\n", ts, idColor.Sprintf("[%s]", shortID(evt.StreamID)), modelColor.Sprint(evt.ModelID), evt.API)

	case *event.ContentEvent:
		// lifecycle events carry no text
		if evt.Text == "" {
			return
		}
		fmt.Fprint(d.writer, evt.Text)
		d.midLine = !strings.HasSuffix(evt.Text, "\n")

	case *event.ToolCallEvent:
		d.endLine()
		fmt.Fprintf(d.writer, "%s %s %s\n", toolColor.Sprint("TOOL"), toolColor.Sprint(evt.ToolName), idColor.Sprintf("[%s]", evt.ToolID))
		d.printArguments(evt.Arguments)

	case *event.UsageEvent:
		if d.showUsage {
			d.PrintStats(evt.Usage)
		}

	case *event.StreamErrorEvent:
		d.endLine()
		msg := fmt.Sprintf("%s %s", errorColor.Sprint("ERR"), errorColor.Sprint(evt.Message))
		if evt.ErrorType != "" {
			msg += " " + errorCodeColor.Sprintf("(%s)", evt.ErrorType)
		}
		if evt.StatusCode != 0 {
			msg += " " + errorCodeColor.Sprintf("(Status: %d)", evt.StatusCode)
		}
		fmt.Fprintln(d.writer, msg)

	case *event.StreamEndEvent:
		d.endLine()
		if evt.Leftover > 0 {
			fmt.Fprintln(d.writer, errorColor.Sprintf("%d trailing bytes did not form a frame", evt.Leftover))
		}
	}
}

func (d *ConsoleDisplay) endLine() {
	if d.midLine {
		fmt.Fprintln(d.writer)
		d.midLine = false
	}
}

// printArguments prints tool arguments as indented JSON
func (d *ConsoleDisplay) printArguments(args map[string]any) {
	pretty, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		pretty = []byte(fmt.Sprintf("%v", args))
	}

	fmt.Fprintln(d.writer, "┌────")
	for _, line := range strings.Split(string(pretty), "\n") {
		if line != "" {
			fmt.Fprintf(d.writer, "│ %s\n", line)
		}
	}
	fmt.Fprintln(d.writer, "└────")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
