// Package event holds the record that flows through the pipeline and the
// capabilities a deserialized payload exposes to stages.
package event

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"
)

var errAlreadySerialized = errors.New("event already serialized")

// InvocationContext describes the invocation that produced an event. It is
// shared by every event of a batch and treated as read-only.
type InvocationContext struct {
	FunctionName    string
	FunctionVersion string
	FunctionARN     string
	RequestID       string
	SourceID        string
}

// Deserialized is the capability a decoded payload offers to stages.
type Deserialized interface {
	GetField(name string) (any, error)
	// GetFieldAsString fails with a FieldNotFoundError when the field is absent.
	GetFieldAsString(name string) (string, error)
	SetField(name string, value any) error
	DeleteField(name string) error
	Payload() any
}

// Event is one record in flight.
type Event struct {
	raw        []byte
	hash       string
	arrival    int64
	eventTime  int64
	hasTime    bool
	payload    Deserialized
	partitions Partitions
	serialized string
	hasOutput  bool
	ctx        *InvocationContext
}

// New creates an event at ingestion. The content hash is computed once here.
func New(raw []byte, arrival time.Time, ctx *InvocationContext) *Event {
	sum := sha1.Sum(raw)
	if ctx == nil {
		ctx = &InvocationContext{}
	}
	return &Event{
		raw:     raw,
		hash:    hex.EncodeToString(sum[:]),
		arrival: arrival.UnixMilli(),
		ctx:     ctx,
	}
}

func (e *Event) Raw() []byte                 { return e.raw }
func (e *Event) RawString() string           { return string(e.raw) }
func (e *Event) Hash() string                { return e.hash }
func (e *Event) ArrivalTime() int64          { return e.arrival }
func (e *Event) Context() *InvocationContext { return e.ctx }

// EventTime returns the event time in epoch milliseconds. ok is false until a
// time stage has set it.
func (e *Event) EventTime() (ms int64, ok bool) {
	return e.eventTime, e.hasTime
}

// SetEventTime records the event time. Zero is a valid epoch value.
func (e *Event) SetEventTime(ms int64) {
	e.eventTime = ms
	e.hasTime = true
}

func (e *Event) Payload() Deserialized      { return e.payload }
func (e *Event) SetPayload(p Deserialized)  { e.payload = p }
func (e *Event) Partitions() Partitions     { return e.partitions }
func (e *Event) SetPartitions(p Partitions) { e.partitions = p }

// Serialized returns the wire form produced by the serializer stage.
func (e *Event) Serialized() (string, bool) { return e.serialized, e.hasOutput }

// SetSerialized records the wire form. It can only be set once.
func (e *Event) SetSerialized(s string) error {
	if e.hasOutput {
		return errAlreadySerialized
	}
	e.serialized = s
	e.hasOutput = true
	return nil
}

// Derive creates a child event sharing raw payload, hash, times, partitions and
// context with e but carrying its own payload.
func (e *Event) Derive(payload Deserialized) *Event {
	return &Event{
		raw:        e.raw,
		hash:       e.hash,
		arrival:    e.arrival,
		eventTime:  e.eventTime,
		hasTime:    e.hasTime,
		payload:    payload,
		partitions: e.partitions.Clone(),
		ctx:        e.ctx,
	}
}
