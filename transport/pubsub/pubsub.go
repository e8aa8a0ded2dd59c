// Package pubsub turns any Watermill publisher into a sink. Broker sinks
// (kafka, rabbitmq, nats, aws, channel) build their publisher and wrap it here.
package pubsub

import (
	"bytes"
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/metadata"
	"github.com/drblury/shipflow/transport"
)

// Metadata keys set on published messages.
const (
	MetadataContentEncoding = metadata.KeyContentEncoding
	MetadataRecords         = metadata.KeyRecords
	MetadataPartitions      = metadata.KeyPartitions
)

// Settings are the keys shared by every publisher backed sink.
type Settings struct {
	Topic string `mapstructure:"topic"`
	// PerRecord publishes one message per record instead of one per buffer.
	PerRecord bool `mapstructure:"per_record"`
}

// Validate checks the shared settings.
func (s Settings) Validate() error {
	if s.Topic == "" {
		return errors.New("topic is required")
	}
	return nil
}

// Sink publishes finished buffers to a Watermill publisher.
type Sink struct {
	transport.Base
	name      string
	publisher message.Publisher
	settings  Settings
	logger    logging.ServiceLogger
}

// New wraps publisher. Close closes the publisher.
func New(cfg transport.Config, publisher message.Publisher, settings Settings, logger logging.ServiceLogger) (*Sink, error) {
	if publisher == nil {
		return nil, sferrors.ErrTransportRequired
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Sink{
		Base:      transport.NewBase(cfg),
		name:      cfg.Type,
		publisher: publisher,
		settings:  settings,
		logger:    logger,
	}, nil
}

// Topic is the topic, subject, exchange or queue messages are published to.
func (s *Sink) Topic() string { return s.settings.Topic }

func (s *Sink) SendBatch(ctx context.Context, buf *transport.Buffer) error {
	msgs, err := s.messages(ctx, buf)
	if err != nil {
		return sferrors.NewTransportError(s.name, err)
	}
	if err := s.publisher.Publish(s.settings.Topic, msgs...); err != nil {
		return sferrors.NewTransportError(s.name, err)
	}
	s.logger.Trace("Published buffer", logging.LogFields{
		"topic":    s.settings.Topic,
		"messages": len(msgs),
		"records":  buf.Records(),
	})
	return nil
}

func (s *Sink) messages(ctx context.Context, buf *transport.Buffer) ([]*message.Message, error) {
	md := metadata.ForBuffer(buf)
	if !s.settings.PerRecord {
		return []*message.Message{newMessage(ctx, md, bytes.Clone(buf.Bytes()))}, nil
	}

	data, err := buf.Decode()
	if err != nil {
		return nil, err
	}
	// Records are published decoded, one at a time.
	md = md.Without(metadata.KeyContentEncoding, metadata.KeyRecords)
	records := Split(data, buf.Separator())
	msgs := make([]*message.Message, len(records))
	for i, rec := range records {
		msgs[i] = newMessage(ctx, md, rec)
	}
	return msgs, nil
}

func newMessage(ctx context.Context, md metadata.Metadata, payload []byte) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata = md.ToWatermill()
	return msg
}

func (s *Sink) Close() error { return s.publisher.Close() }

// Split cuts decoded buffer contents back into records. A trailing separator
// does not produce an empty record.
func Split(data, sep []byte) [][]byte {
	if len(sep) == 0 {
		if len(data) == 0 {
			return nil
		}
		return [][]byte{data}
	}
	parts := bytes.Split(data, sep)
	if n := len(parts); n > 0 && len(parts[n-1]) == 0 {
		parts = parts[:n-1]
	}
	return parts
}
