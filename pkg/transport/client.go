// Package transport opens streaming model invocations over HTTP and feeds
// the response body to the event stream decoder.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alex-ilgayev/llmstream/pkg/bus"
	"github.com/alex-ilgayev/llmstream/pkg/config"
	"github.com/alex-ilgayev/llmstream/pkg/llm"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second

	// maxErrorBody caps how much of a failed response is collected.
	maxErrorBody = 64 * 1024
)

// Client streams model invocations.
type Client struct {
	httpClient *http.Client
	baseURL    string
	modelID    string
	api        llm.API
	bufferSize int
	signer     Signer
	eventBus   bus.EventBus
	observer   llm.Observer
	maxRetries int
	retryDelay time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from the config timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBus publishes stream events to eventBus.
func WithBus(eventBus bus.EventBus) Option {
	return func(c *Client) {
		c.eventBus = eventBus
	}
}

// WithObserver installs a decoder observer on every stream.
func WithObserver(o llm.Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithRetry sets how often a request failing before the stream started is
// retried, and the base delay of the exponential backoff.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

// New creates a client for cfg, which should have passed Validate.
func New(cfg config.Config, signer Signer, opts ...Option) *Client {
	baseURL := strings.TrimSuffix(cfg.Endpoint, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", cfg.Region)
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		modelID:    cfg.ModelID,
		api:        llm.ParseAPI(cfg.API),
		bufferSize: cfg.ReadBufferSize,
		signer:     signer,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bufferSize <= 0 {
		c.bufferSize = config.DefaultConfig().ReadBufferSize
	}
	return c
}

// URL is the streaming endpoint of the configured model and API.
func (c *Client) URL() string {
	return fmt.Sprintf("%s/model/%s/%s", c.baseURL, url.PathEscape(c.modelID), c.api.Path())
}

// API is the streaming operation requests are sent to.
func (c *Client) API() llm.API {
	return c.api
}

// Stream sends body and decodes the response stream, passing content chunks
// to emit as they arrive. The returned Result holds whatever was decoded,
// also when an error is returned.
func (c *Client) Stream(ctx context.Context, body []byte, emit llm.ChunkHandler) (llm.Result, error) {
	streamID := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{
		"stream_id": streamID,
		"model_id":  c.modelID,
		"api":       c.api,
	})

	var pub *llm.Publisher
	if c.eventBus != nil {
		pub = llm.NewPublisher(c.eventBus, streamID, c.modelID)
		pub.Start(c.api, c.URL())
	}

	resp, err := c.open(ctx, body, log)
	if err != nil {
		if pub != nil {
			pub.PublishError(err)
			pub.Finish(llm.Result{})
		}
		return llm.Result{}, err
	}
	defer resp.Body.Close()

	handler := emit
	if pub != nil {
		handler = func(chunk llm.ContentChunk) {
			pub.HandleChunk(chunk)
			if emit != nil {
				emit(chunk)
			}
		}
	}

	d := llm.NewDecoder(
		llm.WithStreamID(streamID),
		llm.WithModelID(c.modelID),
		llm.WithObserver(c.observer),
		llm.WithLogger(logrus.NewEntry(logrus.StandardLogger())),
	)

	readErr := c.readStream(resp.Body, d, handler)
	result := d.Finalize(handler)
	if pub != nil {
		if readErr != nil {
			pub.PublishError(readErr)
		}
		pub.Finish(result)
	}

	if readErr != nil {
		return result, readErr
	}
	return result, result.Err()
}

func (c *Client) readStream(body io.Reader, d *llm.Decoder, emit llm.ChunkHandler) error {
	buf := make([]byte, c.bufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			d.Feed(buf[:n], emit)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read stream: %w", err)
		}
	}
}

// open sends the request, retrying throttling and network failures, and
// returns a response that carries an event stream.
func (c *Client) open(ctx context.Context, body []byte, log *logrus.Entry) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt > 0 {
			backoff := c.retryDelay * time.Duration(1<<(attempt-1))
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
			}).Debug("Retrying model request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err, shouldRetry := c.doRequest(ctx, body, log)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !shouldRetry {
			return nil, err
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, body []byte, log *logrus.Entry) (*http.Response, error, bool) {
	target := c.URL()
	log.WithFields(logrus.Fields{
		"url":       target,
		"body_size": len(body),
	}).Trace("Sending model request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err), false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", llm.ContentTypeEventStream)
	if c.api == llm.APIInvoke {
		req.Header.Set("X-Amzn-Bedrock-Accept", "application/json")
	}

	if c.signer != nil {
		if err := c.signer.Sign(ctx, req, body); err != nil {
			return nil, err, false
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Debug("Model request failed")
		return nil, fmt.Errorf("request failed: %w", err), ctx.Err() == nil
	}

	log.WithFields(logrus.Fields{
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"request_id":   resp.Header.Get("X-Amzn-Requestid"),
		"latency":      time.Since(start),
	}).Debug("Model response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		upstream := readError(resp)
		retry := upstream.Throttled() || resp.StatusCode == http.StatusServiceUnavailable
		return nil, upstream, retry
	}

	if llm.DetectStreamFormat(resp.Header.Get("Content-Type")) != llm.FormatEventStream {
		defer resp.Body.Close()
		upstream := readError(resp)
		if upstream.Type == "" {
			upstream.Type = "UnexpectedContentType"
		}
		return nil, upstream, false
	}

	return resp, nil, false
}

// readError collects a failed response body into an UpstreamError.
func readError(resp *http.Response) *llm.UpstreamError {
	acc := llm.NewErrorAccumulator(resp.StatusCode, resp.Header.Get("X-Amzn-ErrorType"))
	buf := make([]byte, 4096)
	body := io.LimitReader(resp.Body, maxErrorBody)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if upstream, ok := acc.Feed(buf[:n]); ok {
				return upstream
			}
		}
		if err != nil {
			return acc.Finish()
		}
	}
}
