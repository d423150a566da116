package main

import (
	"fmt"
	"io"
	"net/url"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alex-ilgayev/llmstream/pkg/llm"
)

// Decode command flags
var (
	decodeChunkSize int
	decodeModelID   string
	decodeAPI       string
	decodeURL       string
)

func newDecodeCmd() *cobra.Command {
	decodeCmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Decode a captured event stream",
		Long: `Decode replays a captured response body ("-" reads stdin) through the
stream decoder and renders content, tool calls and usage.

--chunk-size splits the input into reads of that many bytes, which
exercises the carry-over of frames split across network reads.

--url is the request URL the capture was taken from. Without --api the
streaming API is detected from its path.`,
		Args: cobra.ExactArgs(1),
		RunE: runDecode,
	}

	decodeCmd.Flags().IntVar(&decodeChunkSize, "chunk-size", 0, "Feed the decoder reads of this many bytes (0 = read as available)")
	decodeCmd.Flags().StringVar(&decodeModelID, "model-id", "", "Model id reported on content chunks")
	decodeCmd.Flags().StringVar(&decodeAPI, "api", "", "Streaming API the capture came from (converse or invoke)")
	decodeCmd.Flags().StringVar(&decodeURL, "url", "", "Request URL the capture was taken from")

	return decodeCmd
}

func runDecode(cmd *cobra.Command, args []string) error {
	if decodeChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative")
	}

	api, source, err := captureSource(args[0])
	if err != nil {
		return err
	}

	in, err := openInput(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	ctx, cancel := signalContext()
	defer cancel()

	p, err := newPipeline(ctx, "")
	if err != nil {
		return err
	}
	defer p.Close()

	streamID := uuid.NewString()
	pub := llm.NewPublisher(p.eventBus, streamID, decodeModelID)
	d := llm.NewDecoder(
		llm.WithStreamID(streamID),
		llm.WithModelID(decodeModelID),
		llm.WithObserver(p.metrics),
		llm.WithChunkHandler(pub.HandleChunk),
	)
	pub.Start(api, source)

	logrus.WithFields(logrus.Fields{
		"file":       args[0],
		"api":        api,
		"chunk_size": decodeChunkSize,
		"stream_id":  streamID,
	}).Debug("Decoding capture")

	if err := feed(in, d, decodeChunkSize, pub.HandleChunk); err != nil {
		pub.PublishError(err)
		pub.Finish(d.Finalize(pub.HandleChunk))
		return err
	}

	result := d.Finalize(pub.HandleChunk)
	pub.Finish(result)
	return result.Err()
}

// captureSource resolves the API of a capture and the source reported on
// its stream start event.
func captureSource(file string) (llm.API, string, error) {
	api := llm.ParseAPI(decodeAPI)
	if decodeAPI != "" && api == llm.APIUnknown {
		return api, "", fmt.Errorf("unknown api %q", decodeAPI)
	}
	if decodeURL == "" {
		return api, file, nil
	}

	u, err := url.Parse(decodeURL)
	if err != nil {
		return api, "", fmt.Errorf("invalid url: %w", err)
	}
	if api == llm.APIUnknown {
		api = llm.DetectAPI(u.Path)
		if api == llm.APIUnknown {
			logrus.WithField("url", decodeURL).Warn("Could not detect the streaming API from the url")
		}
	}
	return api, decodeURL, nil
}

// feed copies r into d. With a positive chunkSize every read fed to d
// carries at most chunkSize bytes.
func feed(r io.Reader, d *llm.Decoder, chunkSize int, emit llm.ChunkHandler) error {
	if chunkSize == 0 {
		if _, err := io.Copy(d, r); err != nil {
			return fmt.Errorf("failed to read capture: %w", err)
		}
		return nil
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			d.Feed(buf[:n], emit)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read capture: %w", err)
		}
	}
}
