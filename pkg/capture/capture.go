// Package capture converts between a line-oriented JSON description of a
// response stream and its binary event stream encoding, for building replay
// fixtures.
//
// Each input line is one of:
//
//	{"event":"contentBlockDelta","payload":{"delta":{"text":"Hi"}}}
//	{"chunk":{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}}
//	{"exception":"throttlingException","message":"Too many requests"}
//	{"raw":"3q2+7w=="}
//
// "chunk" payloads are wrapped as {"bytes": base64(...)} the way the invoke
// API delivers them, and "raw" bytes are written verbatim.
package capture

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/alex-ilgayev/llmstream/pkg/eventstream"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// maxLineSize bounds one input line.
const maxLineSize = eventstream.MaxMessageBytes

// LineError reports the input line a Pack failure happened on.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Pack reads entries from r and writes their frames to w. It returns the
// number of frames written. Blank lines and lines starting with # are
// skipped.
func Pack(r io.Reader, w io.Writer) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	frames := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		frame, err := Encode(line)
		if err != nil {
			return frames, &LineError{Line: lineNo, Err: err}
		}
		if _, err := w.Write(frame); err != nil {
			return frames, fmt.Errorf("failed to write frame: %w", err)
		}
		frames++

		logrus.WithFields(logrus.Fields{
			"line":      lineNo,
			"frame_len": len(frame),
		}).Trace("Packed frame")
	}
	if err := scanner.Err(); err != nil {
		return frames, fmt.Errorf("failed to read input: %w", err)
	}
	return frames, nil
}

// Encode turns one entry into its wire bytes.
func Encode(entry string) ([]byte, error) {
	if !gjson.Valid(entry) {
		return nil, fmt.Errorf("invalid JSON")
	}
	e := gjson.Parse(entry)
	if !e.IsObject() {
		return nil, fmt.Errorf("entry is not an object")
	}

	switch {
	case e.Get("event").Exists():
		payload := e.Get("payload")
		if !payload.IsObject() {
			return nil, fmt.Errorf("event %q needs an object payload", e.Get("event").String())
		}
		return eventstream.EventMessage(e.Get("event").String(), []byte(payload.Raw)), nil

	case e.Get("chunk").Exists():
		chunk := e.Get("chunk")
		if !chunk.IsObject() {
			return nil, fmt.Errorf("chunk must be an object")
		}
		payload, err := sjson.SetBytes([]byte(`{}`), "bytes", base64.StdEncoding.EncodeToString([]byte(chunk.Raw)))
		if err != nil {
			return nil, err
		}
		return eventstream.EventMessage("chunk", payload), nil

	case e.Get("exception").Exists():
		payload, err := sjson.SetBytes([]byte(`{}`), "message", e.Get("message").String())
		if err != nil {
			return nil, err
		}
		return eventstream.EncodeMessage([]eventstream.Header{
			{Name: eventstream.HeaderExceptionType, Value: eventstream.StringHeader(e.Get("exception").String())},
			{Name: eventstream.HeaderContentType, Value: eventstream.StringHeader("application/json")},
			{Name: eventstream.HeaderMessageType, Value: eventstream.StringHeader("exception")},
		}, payload), nil

	case e.Get("raw").Exists():
		raw, err := base64.StdEncoding.DecodeString(e.Get("raw").String())
		if err != nil {
			return nil, fmt.Errorf("invalid raw bytes: %w", err)
		}
		return raw, nil
	}

	return nil, fmt.Errorf("entry needs one of event, chunk, exception or raw")
}
