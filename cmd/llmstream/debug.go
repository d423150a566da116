package main

import (
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alex-ilgayev/llmstream/pkg/debug"
)

// Debug command flags
var (
	debugEventTypes  []string // Filter by :event-type header
	debugShowPayload bool     // Show payload bytes
)

func newDebugCmd() *cobra.Command {
	debugCmd := &cobra.Command{
		Use:   "debug FILE",
		Short: "Debug mode: list every frame of a capture",
		Long: `Debug mode logs the raw frames of a capture with their offsets and
headers, without interpreting payloads.

Use this mode to inspect captures that decode unexpectedly, to see where
resynchronization happens, or to find event types the decoder ignores.

Examples:
  llmstream debug capture.bin
  llmstream debug capture.bin --event-type contentBlockDelta --payload`,
		Args: cobra.ExactArgs(1),
		RunE: runDebug,
	}

	debugCmd.Flags().StringSliceVarP(&debugEventTypes, "event-type", "e", nil, "Only show frames with these event types")
	debugCmd.Flags().BoolVarP(&debugShowPayload, "payload", "p", false, "Show frame payloads")

	return debugCmd
}

func runDebug(cmd *cobra.Command, args []string) error {
	in, err := openInput(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	stats, err := debug.PrintFrames(in, logrus.StandardLogger(), debug.Filter{
		EventTypes:  debugEventTypes,
		ShowPayload: debugShowPayload,
	})
	if err != nil {
		return err
	}

	types := make([]string, 0, len(stats.EventTypes))
	for t := range stats.EventTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		logrus.WithFields(logrus.Fields{
			"event_type": t,
			"count":      stats.EventTypes[t],
		}).Info("Event type")
	}

	logrus.WithFields(logrus.Fields{
		"frames":        stats.Frames,
		"resync_bytes":  stats.ResyncBytes,
		"trailing_data": stats.TrailingData,
	}).Info("Capture summary")
	return nil
}
