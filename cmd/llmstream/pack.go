package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alex-ilgayev/llmstream/pkg/capture"
)

func newPackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pack INPUT OUTPUT",
		Short: "Build a binary capture from a JSONL description",
		Long: `Pack encodes one frame per input line and writes the binary event
stream to OUTPUT ("-" for stdin/stdout). Input lines look like:

  {"event":"contentBlockDelta","payload":{"delta":{"text":"Hi"}}}
  {"chunk":{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}}
  {"exception":"throttlingException","message":"Too many requests"}
  {"raw":"3q2+7w=="}`,
		Args: cobra.ExactArgs(2),
		RunE: runPack,
	}
}

func runPack(cmd *cobra.Command, args []string) error {
	in, err := openInput(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	var out io.Writer = os.Stdout
	if args[1] != "-" {
		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("failed to create output file '%s': %w", args[1], err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close output file")
			}
		}()
		out = f
	}

	frames, err := capture.Pack(in, out)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"input":  args[0],
		"output": args[1],
		"frames": frames,
	}).Info("Capture written")
	return nil
}
