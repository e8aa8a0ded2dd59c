package pipeline

import (
	"errors"
	"fmt"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/stats"
)

// Serializer renders a wrapped payload to its wire form. Unsupported payload
// shapes are reported as *errors.SerializationError.
type Serializer interface {
	Serialize(payload any) (string, error)
}

// Wrapper builds the envelope that is handed to the serializer.
type Wrapper interface {
	Wrap(ev *event.Event) (any, error)
}

// SerializationPolicy decides what a serialization failure does to the batch.
type SerializationPolicy string

const (
	// SerializationFail aborts the batch.
	SerializationFail SerializationPolicy = "fail"
	// SerializationDrop drops the event and continues.
	SerializationDrop SerializationPolicy = "drop"
)

func (p SerializationPolicy) Validate() error {
	switch p {
	case SerializationFail, SerializationDrop:
		return nil
	default:
		return fmt.Errorf("unknown serialization policy %q", string(p))
	}
}

// SerializerStage wraps and serializes events one at a time. It is not safe
// for concurrent use.
type SerializerStage struct {
	policy  SerializationPolicy
	fn      func(*event.Event) (string, bool, error)
	pending error
}

// NewSerializerStage builds the stage. A nil wrapper hands the deserialized
// payload to the serializer unchanged.
func NewSerializerStage(reg *stats.Registry, wrapper Wrapper, serializer Serializer, policy SerializationPolicy) *SerializerStage {
	s := &SerializerStage{policy: policy}
	s.fn = stats.Monitor(reg, "serializer", func(ev *event.Event) (string, error) {
		var payload any
		if wrapper != nil {
			wrapped, err := wrapper.Wrap(ev)
			if err != nil {
				return "", err
			}
			payload = wrapped
		} else if p := ev.Payload(); p != nil {
			payload = p.Payload()
		}
		return serializer.Serialize(payload)
	}, stats.WithDomainErrorHandler(func(err error) { s.pending = err }))
	return s
}

// Serialize sets the event's serialized form. ok is false when the event was
// dropped. Under SerializationFail a domain failure is returned as a
// *errors.SerializationError.
func (s *SerializerStage) Serialize(ev *event.Event) (ok bool, err error) {
	s.pending = nil
	out, ok, err := s.fn(ev)
	if err != nil {
		return false, err
	}
	if !ok {
		if s.policy == SerializationDrop {
			return false, nil
		}
		var serr *sferrors.SerializationError
		if errors.As(s.pending, &serr) {
			return false, serr
		}
		return false, &sferrors.SerializationError{Err: s.pending}
	}
	if err := ev.SetSerialized(out); err != nil {
		return false, err
	}
	return true, nil
}
