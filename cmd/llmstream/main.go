package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alex-ilgayev/llmstream/pkg/bus"
	"github.com/alex-ilgayev/llmstream/pkg/eventlogger"
	"github.com/alex-ilgayev/llmstream/pkg/metrics"
	"github.com/alex-ilgayev/llmstream/pkg/output"
	"github.com/alex-ilgayev/llmstream/pkg/version"
)

// Command line flags
var (
	verbose     bool
	logLevel    string
	outputFile  string
	jsonOutput  bool
	showUsage   bool
	metricsAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "llmstream",
		Short: "Decode streamed model responses delivered as AWS event streams",
		Long: `llmstream decodes the binary event streams returned by streaming model
invocations (converse-stream and invoke-with-response-stream) into text,
tool calls and usage. It can invoke a model live, replay a captured stream
and build captures from a JSON description.`,
		Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.Date),
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging (debug level)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Set log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "Output file (JSONL format will be written to file)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Write JSONL events to stdout instead of console output")
	rootCmd.PersistentFlags().BoolVar(&showUsage, "usage", true, "Print the usage table when a stream reports usage")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(newDecodeCmd(), newInvokeCmd(), newPackCmd(), newDebugCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	// Handle verbose flag as shortcut for debug level
	if verbose {
		logLevel = "debug"
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", logLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	return nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// pipeline wires the bus consumers shared by the streaming commands.
type pipeline struct {
	eventBus bus.EventBus
	metrics  *metrics.Metrics
	closers  []func()
}

func newPipeline(ctx context.Context, metricsAddrOverride string) (*pipeline, error) {
	p := &pipeline{eventBus: bus.New()}

	// Set up display based on mode
	var display output.OutputHandler
	if jsonOutput {
		display = output.NewJSONLDisplay(os.Stdout)
	} else {
		display = output.NewConsoleDisplay(os.Stdout, showUsage)
	}
	display.PrintHeader()
	detach, err := output.Attach(p.eventBus, display)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to attach display: %w", err)
	}
	p.closers = append(p.closers, detach)

	// Set up file output if specified
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to create output file '%s': %w", outputFile, err)
		}
		detachFile, err := output.Attach(p.eventBus, output.NewJSONLDisplay(file))
		if err != nil {
			file.Close()
			p.Close()
			return nil, fmt.Errorf("failed to create file display: %w", err)
		}
		p.closers = append(p.closers, detachFile, func() {
			if err := file.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close output file")
			}
		})
	}

	el, err := eventlogger.New(p.eventBus)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create event logger: %w", err)
	}
	p.closers = append(p.closers, el.Close)

	p.metrics = metrics.New()
	if err := p.metrics.Subscribe(p.eventBus); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to subscribe metrics: %w", err)
	}

	addr := metricsAddr
	if addr == "" {
		addr = metricsAddrOverride
	}
	if addr != "" {
		go func() {
			if err := p.metrics.Serve(ctx, addr); err != nil {
				logrus.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	return p, nil
}

// Close releases consumers in reverse order of creation.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
	p.eventBus.Close()
}

// openInput opens path for reading; "-" is stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open '%s': %w", path, err)
	}
	return f, nil
}
