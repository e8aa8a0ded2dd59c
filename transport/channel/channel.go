// Package channel provides an in-memory sink backed by a Watermill GoChannel.
// It is meant for tests and local runs.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
	"github.com/drblury/shipflow/transport/pubsub"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "shipflow"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

type settings struct {
	pubsub.Settings `mapstructure:",squash"`
	OutputBuffer    int64 `mapstructure:"output_buffer"`
	Persistent      bool  `mapstructure:"persistent"`
}

// Sink publishes to an in-process channel that callers can subscribe to.
type Sink struct {
	*pubsub.Sink
	channel *gochannel.GoChannel
}

// Subscribe returns the messages published to topic from now on, or all of
// them when the channel is persistent.
func (s *Sink) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.channel.Subscribe(ctx, topic)
}

// Register registers the channel transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new Go channel transport.
func Build(_ context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	var s settings
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	if s.Topic == "" {
		s.Topic = DefaultTopic
	}

	ch := Factory(gochannel.Config{
		OutputChannelBuffer: s.OutputBuffer,
		Persistent:          s.Persistent,
	}, logging.NewWatermillAdapter(logger))

	sink, err := pubsub.New(cfg, ch, s.Settings, logger)
	if err != nil {
		return nil, err
	}
	return &Sink{Sink: sink, channel: ch}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
