// Package kafka provides a Kafka sink backed by watermill-kafka.
package kafka

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
	"github.com/drblury/shipflow/transport/pubsub"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

type settings struct {
	pubsub.Settings `mapstructure:",squash"`
	Brokers         []string `mapstructure:"brokers"`
	// KeyByPartitions uses the buffer's partition tuple as the message key so
	// equal tuples land on the same Kafka partition.
	KeyByPartitions bool `mapstructure:"key_by_partitions"`
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a new Kafka transport.
func Build(_ context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	var s settings
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	if len(s.Brokers) == 0 {
		return nil, errors.New("kafka: brokers are required")
	}

	publisher, err := PublisherFactory(kafka.PublisherConfig{
		Brokers:   s.Brokers,
		Marshaler: marshaler(s.KeyByPartitions),
	}, logging.NewWatermillAdapter(logger))
	if err != nil {
		return nil, err
	}
	return pubsub.New(cfg, publisher, s.Settings, logger)
}

func marshaler(keyed bool) kafka.Marshaler {
	if !keyed {
		return kafka.DefaultMarshaler{}
	}
	return kafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(pubsub.MetadataPartitions), nil
	})
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
