// Package jetstream provides a NATS JetStream sink. Every buffer is one
// acknowledged stream message, deduplicated by its message id.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/ids"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/metadata"
	"github.com/drblury/shipflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "jetstream"

const (
	DefaultStreamName = "SHIPFLOW"
	DefaultMaxAge     = 7 * 24 * time.Hour

	HeaderRecords         = "Shipflow-Records"
	HeaderPartitions      = "Shipflow-Partitions"
	HeaderContentEncoding = "Content-Encoding"
)

var headerNames = map[string]string{
	metadata.KeyRecords:         HeaderRecords,
	metadata.KeyPartitions:      HeaderPartitions,
	metadata.KeyContentEncoding: HeaderContentEncoding,
}

// Config holds JetStream specific settings.
type Config struct {
	URL        string `mapstructure:"url"`
	StreamName string `mapstructure:"stream"`
	// Subject defaults to <stream>.events and must be covered by the stream.
	Subject  string        `mapstructure:"subject"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Replicas int           `mapstructure:"replicas"`
	// RetentionPolicy is "limits" (default), "interest" or "workqueue".
	RetentionPolicy string `mapstructure:"retention"`
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.Subject == "" {
		c.Subject = c.StreamName + ".events"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

func (c Config) streamConfig() (*nats.StreamConfig, error) {
	sc := &nats.StreamConfig{
		Name:     c.StreamName,
		Subjects: []string{c.StreamName + ".>"},
		MaxAge:   c.MaxAge,
		Replicas: c.Replicas,
	}
	switch c.RetentionPolicy {
	case "", "limits":
		sc.Retention = nats.LimitsPolicy
	case "interest":
		sc.Retention = nats.InterestPolicy
	case "workqueue":
		sc.Retention = nats.WorkQueuePolicy
	default:
		return nil, fmt.Errorf("jetstream: unknown retention %q", c.RetentionPolicy)
	}
	return sc, nil
}

// streamPublisher is the part of nats.JetStreamContext the sink uses.
type streamPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Sink publishes buffers to a JetStream subject.
type Sink struct {
	transport.Base
	js      streamPublisher
	subject string
	closer  func()
	logger  logging.ServiceLogger
}

// Register registers the JetStream transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.JetStreamCapabilities)
}

// Build connects, makes sure the stream exists and returns the sink.
func Build(_ context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	var c Config
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	c = c.withDefaults()
	sc, err := c.streamConfig()
	if err != nil {
		return nil, err
	}

	nc, err := nats.Connect(c.URL, nats.Name("shipflow"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if err := ensureStream(js, sc, logger); err != nil {
		nc.Close()
		return nil, err
	}
	return newSink(cfg, js, c.Subject, nc.Close, logger), nil
}

func newSink(cfg transport.Config, js streamPublisher, subject string, closer func(), logger logging.ServiceLogger) *Sink {
	return &Sink{
		Base:    transport.NewBase(cfg),
		js:      js,
		subject: subject,
		closer:  closer,
		logger:  logger,
	}
}

func ensureStream(js nats.JetStreamManager, sc *nats.StreamConfig, logger logging.ServiceLogger) error {
	_, err := js.StreamInfo(sc.Name)
	switch {
	case err == nil:
		logger.Debug("JetStream stream exists", logging.LogFields{"stream": sc.Name})
		return nil
	case errors.Is(err, nats.ErrStreamNotFound):
		if _, err := js.AddStream(sc); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", sc.Name, err)
		}
		logger.Info("Created JetStream stream", logging.LogFields{"stream": sc.Name})
		return nil
	default:
		return fmt.Errorf("failed to look up stream %s: %w", sc.Name, err)
	}
}

func (s *Sink) SendBatch(ctx context.Context, buf *transport.Buffer) error {
	msg := nats.NewMsg(s.subject)
	msg.Data = buf.Bytes()
	msg.Header.Set(nats.MsgIdHdr, ids.CreateULID())
	for k, v := range metadata.ForBuffer(buf).Rename(headerNames) {
		msg.Header.Set(k, v)
	}

	ack, err := s.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return sferrors.NewTransportError(TransportName, err)
	}
	s.logger.Trace("Published buffer", logging.LogFields{
		"stream":    ack.Stream,
		"sequence":  ack.Sequence,
		"duplicate": ack.Duplicate,
	})
	return nil
}

func (s *Sink) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.JetStreamCapabilities
}
