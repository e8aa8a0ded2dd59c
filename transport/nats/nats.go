// Package nats provides a NATS Core sink backed by watermill-nats.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
	"github.com/drblury/shipflow/transport/pubsub"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

type settings struct {
	pubsub.Settings `mapstructure:",squash"`
	URL             string        `mapstructure:"url"`
	Name            string        `mapstructure:"client_name"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (s settings) options() []nc.Option {
	name := s.Name
	if name == "" {
		name = "shipflow"
	}
	opts := []nc.Option{nc.Name(name)}
	if s.Timeout > 0 {
		opts = append(opts, nc.Timeout(s.Timeout))
	}
	return opts
}

// Register registers the NATS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS transport. The topic is the subject.
func Build(_ context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	var s settings
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	if s.URL == "" {
		s.URL = nc.DefaultURL
	}

	publisher, err := PublisherFactory(nats.PublisherConfig{
		URL:         s.URL,
		NatsOptions: s.options(),
		Marshaler:   &nats.NATSMarshaler{},
		JetStream:   nats.JetStreamConfig{Disabled: true},
	}, logging.NewWatermillAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	return pubsub.New(cfg, publisher, s.Settings, logger)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
