// Package metrics exposes decoder activity as Prometheus counters.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alex-ilgayev/llmstream/pkg/bus"
	"github.com/alex-ilgayev/llmstream/pkg/event"
	"github.com/alex-ilgayev/llmstream/pkg/llm"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "llmstream"

var (
	// Tool names come from the model, so their label values are bounded:
	// names seen within toolLabelTTL keep their own series, others share
	// otherToolLabel once toolLabelLimit names are tracked.
	toolLabelLimit = 256
	toolLabelTTL   = time.Hour
	otherToolLabel = "other"
)

// Metrics implements llm.Observer on top of a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	framesTotal       *prometheus.CounterVec
	resyncBytesTotal  prometheus.Counter
	resyncsTotal      prometheus.Counter
	droppedTotal      *prometheus.CounterVec
	chunksTotal       prometheus.Counter
	toolCallsTotal    *prometheus.CounterVec
	exceptionsTotal   *prometheus.CounterVec
	tokenUsageTotal   *prometheus.CounterVec
	streamErrorsTotal *prometheus.CounterVec
	streamDuration    prometheus.Histogram

	// Thread-safe.
	toolNames *expirable.LRU[string, struct{}]
}

var _ llm.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		toolNames: expirable.NewLRU[string, struct{}](toolLabelLimit, nil, toolLabelTTL),

		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Frames decoded, by event type",
			},
			[]string{"event_type"},
		),
		resyncBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resync_skipped_bytes_total",
				Help:      "Bytes skipped while searching for a frame boundary",
			},
		),
		resyncsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resyncs_total",
				Help:      "Number of resynchronizations",
			},
		),
		droppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_payloads_total",
				Help:      "Frame payloads dropped during normalization, by reason",
			},
			[]string{"reason"},
		),
		chunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_chunks_total",
				Help:      "Content chunks emitted",
			},
		),
		toolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Completed tool calls, by tool name",
			},
			[]string{"tool"},
		),
		exceptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exceptions_total",
				Help:      "In-stream exception frames, by exception type",
			},
			[]string{"exception_type"},
		),
		tokenUsageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_usage_total",
				Help:      "Tokens reported by the service",
			},
			[]string{"model", "type"}, // type: input, output, cache_read or cache_write
		),
		streamErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_errors_total",
				Help:      "Failed streams, by error type",
			},
			[]string{"error_type"},
		),
		streamDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stream_duration_seconds",
				Help:      "Duration of completed streams",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
		),
	}

	m.registry.MustRegister(
		m.framesTotal,
		m.resyncBytesTotal,
		m.resyncsTotal,
		m.droppedTotal,
		m.chunksTotal,
		m.toolCallsTotal,
		m.exceptionsTotal,
		m.tokenUsageTotal,
		m.streamErrorsTotal,
		m.streamDuration,
	)
	return m
}

func (m *Metrics) FrameDecoded(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	m.framesTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Resynced(skipped int) {
	m.resyncsTotal.Inc()
	m.resyncBytesTotal.Add(float64(skipped))
}

func (m *Metrics) Dropped(reason llm.DropReason) {
	m.droppedTotal.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) ChunkEmitted() {
	m.chunksTotal.Inc()
}

func (m *Metrics) ToolCallCompleted(name string) {
	m.toolCallsTotal.WithLabelValues(m.toolLabel(name)).Inc()
}

func (m *Metrics) toolLabel(name string) string {
	if !m.toolNames.Contains(name) && m.toolNames.Len() >= toolLabelLimit {
		return otherToolLabel
	}
	m.toolNames.Add(name, struct{}{})
	return name
}

func (m *Metrics) ExceptionReceived(exceptionType string) {
	m.exceptionsTotal.WithLabelValues(exceptionType).Inc()
}

var tokenKinds = map[string]string{
	llm.UsageInputTokens:      "input",
	llm.UsageOutputTokens:     "output",
	llm.UsageCacheReadTokens:  "cache_read",
	llm.UsageCacheWriteTokens: "cache_write",
}

// Subscribe feeds usage, error and stream end events from the bus into the
// registry.
func (m *Metrics) Subscribe(eventBus bus.EventBus) error {
	if err := eventBus.Subscribe(event.EventTypeUsage, m.handleEvent); err != nil {
		return err
	}
	if err := eventBus.Subscribe(event.EventTypeStreamError, m.handleEvent); err != nil {
		return err
	}
	return eventBus.Subscribe(event.EventTypeStreamEnd, m.handleEvent)
}

func (m *Metrics) handleEvent(e event.Event) {
	switch evt := e.(type) {
	case *event.UsageEvent:
		for key, kind := range tokenKinds {
			if v, ok := evt.Usage[key]; ok {
				m.tokenUsageTotal.WithLabelValues(evt.ModelID, kind).Add(float64(v))
			}
		}
	case *event.StreamErrorEvent:
		errType := evt.ErrorType
		if errType == "" {
			errType = "transport"
		}
		m.streamErrorsTotal.WithLabelValues(errType).Inc()
	case *event.StreamEndEvent:
		m.streamDuration.Observe(evt.Duration.Seconds())
	}
}

// Registry returns the registry all counters are registered in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Debug("Metrics server shutdown")
		}
	}()

	logrus.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
