// Package http provides a sink that POSTs every buffer to an HTTP endpoint,
// retrying transient failures with exponential backoff.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"slices"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/metadata"
	"github.com/drblury/shipflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultContentType     = "application/x-ndjson"
)

// Request headers describing the posted buffer.
const (
	HeaderRecords    = "X-Shipflow-Records"
	HeaderPartitions = "X-Shipflow-Partitions"
)

var headerNames = map[string]string{
	metadata.KeyRecords:         HeaderRecords,
	metadata.KeyPartitions:      HeaderPartitions,
	metadata.KeyContentEncoding: "Content-Encoding",
}

// ClientFactory allows overriding the HTTP client for testing.
var ClientFactory = func(timeout time.Duration) *nethttp.Client {
	return &nethttp.Client{Timeout: timeout}
}

// Config holds the HTTP specific settings.
type Config struct {
	URL         string            `mapstructure:"url"`
	Method      string            `mapstructure:"method"`
	Headers     map[string]string `mapstructure:"headers"`
	ContentType string            `mapstructure:"content_type"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	// MaxRetries is the number of attempts after the first one.
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
	// StatusCodes lists the responses that count as delivered.
	StatusCodes []int `mapstructure:"status_codes"`
}

func (c Config) withDefaults() Config {
	if c.Method == "" {
		c.Method = nethttp.MethodPost
	}
	if c.ContentType == "" {
		c.ContentType = DefaultContentType
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if len(c.StatusCodes) == 0 {
		c.StatusCodes = []int{nethttp.StatusOK}
	}
	return c
}

// Sink posts buffers to one URL.
type Sink struct {
	transport.Base
	cfg    Config
	client *nethttp.Client
	logger logging.ServiceLogger
}

// StatusError is returned for an unexpected response status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Register registers the HTTP transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates a new HTTP transport.
func Build(_ context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	var c Config
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	if c.URL == "" {
		return nil, errors.New("http: url is required")
	}
	c = c.withDefaults()
	return &Sink{
		Base:   transport.NewBase(cfg),
		cfg:    c,
		client: ClientFactory(c.Timeout),
		logger: logger,
	}, nil
}

func (s *Sink) SendBatch(ctx context.Context, buf *transport.Buffer) error {
	body := buf.Bytes()
	headers := metadata.ForBuffer(buf).Rename(headerNames)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.MaxRetries + 1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.Warn("Retrying HTTP delivery", logging.LogFields{"error": err.Error(), "wait": wait.String()})
		}),
	}
	if s.cfg.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(s.cfg.MaxElapsedTime))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.post(ctx, body, headers)
	}, opts...)
	if err != nil {
		return sferrors.NewTransportError(TransportName, err)
	}
	return nil
}

func (s *Sink) post(ctx context.Context, body []byte, headers metadata.Metadata) error {
	req, err := nethttp.NewRequestWithContext(ctx, s.cfg.Method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", s.cfg.ContentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if slices.Contains(s.cfg.StatusCodes, resp.StatusCode) {
		return nil
	}
	serr := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	switch {
	case resp.StatusCode == nethttp.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			return errors.Join(serr, backoff.RetryAfter(secs))
		}
		return serr
	case resp.StatusCode >= 500:
		return serr
	default:
		return backoff.Permanent(serr)
	}
}

func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}
