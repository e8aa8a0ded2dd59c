package delivery

import (
	"context"
	"errors"
	"fmt"
	"slices"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/stats"
	"github.com/drblury/shipflow/transport"
)

// StatRecordDropped counts records that could not fit an empty buffer or
// that the sink refused to frame.
const StatRecordDropped = "transport.record.dropped.count"

// Sender assigns serialized events to buffers. With partitioning on, events
// with equal partition tuples share a buffer; otherwise all share one. A full
// buffer is handed to the coordinator and a fresh one takes its place.
// Sender is used from a single goroutine.
type Sender struct {
	transport   transport.Transport
	coordinator *Coordinator
	partitioned bool
	encoder     transport.RecordEncoder
	reg         *stats.Registry
	logger      logging.ServiceLogger

	buffers map[string]*transport.Buffer
	order   []string
}

func NewSender(t transport.Transport, coordinator *Coordinator, reg *stats.Registry, logger logging.ServiceLogger) *Sender {
	s := &Sender{
		transport:   t,
		coordinator: coordinator,
		partitioned: transport.IsPartitioned(t),
		reg:         reg,
		logger:      logger,
		buffers:     make(map[string]*transport.Buffer),
	}
	if enc, ok := t.(transport.RecordEncoder); ok {
		s.encoder = enc
	}
	return s
}

// Partitioned reports whether events are grouped by partition tuple.
func (s *Sender) Partitioned() bool { return s.partitioned }

// Add places a serialized event into its buffer.
func (s *Sender) Add(ctx context.Context, ev *event.Event) error {
	serialized, ok := ev.Serialized()
	if !ok {
		return errors.New("event has not been serialized")
	}

	record := []byte(serialized)
	if s.encoder != nil {
		encoded, err := s.encoder.EncodeRecord(ev, serialized)
		if err != nil {
			if sferrors.IsDomain(err) {
				s.drop(ev, err)
				return nil
			}
			return fmt.Errorf("encode record: %w", err)
		}
		record = encoded
	}

	key := ""
	if s.partitioned {
		key = ev.Partitions().Key()
	}
	buf, err := s.buffer(key, ev.Partitions())
	if err != nil {
		return err
	}

	err = buf.Add(record)
	if errors.Is(err, sferrors.ErrBufferFull) {
		s.coordinator.Dispatch(ctx, buf)
		delete(s.buffers, key)
		if buf, err = s.buffer(key, ev.Partitions()); err != nil {
			return err
		}
		err = buf.Add(record)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, sferrors.ErrRecordTooLarge):
		s.drop(ev, err)
		return nil
	default:
		return fmt.Errorf("buffer record: %w", err)
	}
}

// Flush hands every non-empty buffer to the coordinator and waits for the
// round to settle.
func (s *Sender) Flush(ctx context.Context) error {
	for _, key := range s.order {
		buf, ok := s.buffers[key]
		if !ok || buf.IsEmpty() {
			continue
		}
		s.coordinator.Dispatch(ctx, buf)
	}
	clear(s.buffers)
	s.order = s.order[:0]
	return s.coordinator.Wait()
}

func (s *Sender) buffer(key string, partitions event.Partitions) (*transport.Buffer, error) {
	if buf, ok := s.buffers[key]; ok {
		return buf, nil
	}
	buf, err := s.transport.NewBuffer()
	if err != nil {
		return nil, fmt.Errorf("new buffer: %w", err)
	}
	if s.partitioned {
		buf.SetPartitions(partitions.Clone())
	}
	if !slices.Contains(s.order, key) {
		s.order = append(s.order, key)
	}
	s.buffers[key] = buf
	return buf, nil
}

func (s *Sender) drop(ev *event.Event, err error) {
	s.reg.Add(StatRecordDropped, stats.UnitCount, 1)
	fields := logging.LogFields{"hash": ev.Hash()}
	if s.partitioned {
		fields["partitions"] = ev.Partitions().String()
	}
	s.logger.Warn("Dropping record: "+err.Error(), fields)
}
