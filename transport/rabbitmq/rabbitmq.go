// Package rabbitmq provides an AMQP sink backed by watermill-amqp.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
	"github.com/drblury/shipflow/transport/pubsub"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// Publishing modes. In pubsub mode the topic names a fanout exchange, in
// queue mode a durable queue.
const (
	ModePubSub = "pubsub"
	ModeQueue  = "queue"
)

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

type settings struct {
	pubsub.Settings `mapstructure:",squash"`
	URL             string `mapstructure:"url"`
	Mode            string `mapstructure:"mode"`
}

type sink struct {
	*pubsub.Sink
	conn io.Closer
}

// Register registers the RabbitMQ transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build creates a new RabbitMQ transport.
func Build(_ context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	var s settings
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	if s.URL == "" {
		return nil, errors.New("rabbitmq: url is required")
	}
	amqpConfig, err := amqpConfig(s)
	if err != nil {
		return nil, err
	}

	wlog := logging.NewWatermillAdapter(logger)
	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   s.URL,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, wlog)
	if err != nil {
		return nil, err
	}

	publisher, err := PublisherFactory(amqpConfig, wlog, conn)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.New(cfg, publisher, s.Settings, logger)
	if err != nil {
		return nil, err
	}
	return &sink{Sink: ps, conn: conn}, nil
}

func amqpConfig(s settings) (amqp.Config, error) {
	switch s.Mode {
	case "", ModePubSub:
		return amqp.NewDurablePubSubConfig(s.URL, amqp.GenerateQueueNameTopicName), nil
	case ModeQueue:
		return amqp.NewDurableQueueConfig(s.URL), nil
	default:
		return amqp.Config{}, fmt.Errorf("rabbitmq: unknown mode %q", s.Mode)
	}
}

// Close closes the publisher and then the shared connection.
func (s *sink) Close() error {
	return errors.Join(s.Sink.Close(), s.conn.Close())
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
