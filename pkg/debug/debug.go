package debug

import (
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/alex-ilgayev/llmstream/pkg/eventstream"
	"github.com/sirupsen/logrus"
)

// Filter selects which frames PrintFrames logs.
type Filter struct {
	// EventTypes limits output to these :event-type values; empty means all.
	EventTypes []string
	// ShowPayload adds the payload (text, or hex when it is not printable).
	ShowPayload bool
}

// Stats summarizes a scanned capture.
type Stats struct {
	Frames       int
	ResyncBytes  int
	TrailingData int
	EventTypes   map[string]int
}

// PrintFrames logs every frame of a raw capture with its headers, without
// interpreting payloads. Unlike the stream decoder it reads the whole input
// first, so the offsets it logs are capture offsets.
func PrintFrames(r io.Reader, log *logrus.Logger, filter Filter) (Stats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read capture: %w", err)
	}

	stats := Stats{EventTypes: make(map[string]int)}
	offset := 0
	for offset < len(data) {
		res := eventstream.ScanFrame(data, offset)
		switch res.Status {
		case eventstream.FrameOK:
			msg := res.Message()
			eventType := msg.Headers.String(eventstream.HeaderEventType)
			stats.Frames++
			stats.EventTypes[eventType]++

			if len(filter.EventTypes) == 0 || slices.Contains(filter.EventTypes, eventType) {
				logFrame(log, offset, res, msg, filter.ShowPayload)
			}
			offset = res.Next

		case eventstream.FrameResync:
			log.WithFields(logrus.Fields{
				"offset":  offset,
				"skipped": res.Next - offset,
			}).Debug("Resynchronized")
			stats.ResyncBytes += res.Next - offset
			offset = res.Next

		default:
			stats.TrailingData = len(data) - offset
			log.WithFields(logrus.Fields{
				"offset": offset,
				"bytes":  stats.TrailingData,
				"status": res.Status.String(),
			}).Debug("Capture ends inside a frame")
			return stats, nil
		}
	}
	return stats, nil
}

func logFrame(log *logrus.Logger, offset int, res eventstream.FrameResult, msg eventstream.Message, showPayload bool) {
	fields := logrus.Fields{
		"offset":      offset,
		"total_len":   res.Prelude.TotalLength,
		"headers_len": res.Prelude.HeadersLength,
		"payload_len": len(msg.Payload),
	}

	names := make([]string, 0, len(msg.Headers))
	for name := range msg.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields[name] = msg.Headers[name].String()
	}

	if showPayload {
		if isPrintable(msg.Payload) {
			fields["payload"] = string(msg.Payload)
		} else {
			fields["payload_hex"] = hex.EncodeToString(msg.Payload)
		}
	}
	if !msg.HeadersComplete {
		fields["headers_complete"] = false
	}

	log.WithFields(fields).Info("Frame")
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if (c < 0x20 && c != '\n' && c != '\r' && c != '\t') || c > 0x7e {
			return false
		}
	}
	return true
}
