package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
)

var (
	ErrConfigRequired    = sterrors.New("shipflow: config is required")
	ErrLoggerRequired    = sterrors.New("shipflow: logger is required")
	ErrTransportRequired = sterrors.New("shipflow: transport is required")
	ErrNotInitialized    = sterrors.New("shipflow: handler is not initialised")
	ErrNoSource          = sterrors.New("shipflow: no source matches the invocation")
	ErrBufferFull        = sterrors.New("shipflow: buffer is full")
	ErrBufferClosed      = sterrors.New("shipflow: buffer is closed")
	ErrBufferNotClosed   = sterrors.New("shipflow: compressed buffer must be closed before clear")
	ErrRecordTooLarge    = sterrors.New("shipflow: record does not fit an empty buffer")
	ErrUnknownType       = sterrors.New("shipflow: unknown type")
)

// domain is implemented by per-item failures that drop a single event
// instead of aborting the batch.
type domain interface {
	domainError()
}

// IsDomain reports whether err (or anything it wraps) is a per-item failure.
func IsDomain(err error) bool {
	var d domain
	return sterrors.As(err, &d)
}

// OperationError is returned by operations and filters that cannot handle one event.
type OperationError struct {
	Op  string
	Err error
}

// NewOperationError builds an OperationError with a formatted cause.
func NewOperationError(op, format string, args ...any) *OperationError {
	return &OperationError{Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *OperationError) Error() string {
	if e.Op == "" {
		return "operation failed: " + e.Err.Error()
	}
	return "operation " + e.Op + " failed: " + e.Err.Error()
}

func (e *OperationError) Unwrap() error { return e.Err }
func (e *OperationError) domainError()  {}

// FieldNotFoundError is returned when a deserialized event has no such field.
type FieldNotFoundError struct {
	Field string
}

func (e *FieldNotFoundError) Error() string { return "field not found: " + e.Field }
func (e *FieldNotFoundError) domainError()  {}

// DeserializationError wraps a raw record that could not be decoded.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string { return "deserialization failed: " + e.Err.Error() }
func (e *DeserializationError) Unwrap() error { return e.Err }
func (e *DeserializationError) domainError()  {}

// SerializationError is the typed failure surfaced by the serializer stage.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string { return "serialization failed: " + e.Err.Error() }
func (e *SerializationError) Unwrap() error { return e.Err }
func (e *SerializationError) domainError()  {}

// TransportError is the failure of a single buffer send.
type TransportError struct {
	Transport string
	Err       error
}

// NewTransportError wraps err for the named transport.
func NewTransportError(transport string, err error) *TransportError {
	return &TransportError{Transport: transport, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BufferFailure identifies one buffer whose delivery attempt failed.
type BufferFailure struct {
	Index      int
	Partitions string
	Err        error
}

func (f BufferFailure) Error() string {
	if f.Partitions == "" {
		return fmt.Sprintf("buffer #%d: %v", f.Index, f.Err)
	}
	return fmt.Sprintf("buffer #%d %s: %v", f.Index, f.Partitions, f.Err)
}

func (f BufferFailure) Unwrap() error { return f.Err }

// DeliveryError aggregates every failed buffer of one delivery round.
type DeliveryError struct {
	Attempted int
	Failures  []BufferFailure
}

func (e *DeliveryError) Error() string {
	first, ok := e.First()
	if !ok {
		return "delivery failed"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "delivery failed for %d of %d buffers: %v", len(e.Failures), e.Attempted, first)
	if len(e.Failures) > 1 {
		fmt.Fprintf(&b, " (and %d more)", len(e.Failures)-1)
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// First returns the earliest failing buffer by index.
func (e *DeliveryError) First() (BufferFailure, bool) {
	if len(e.Failures) == 0 {
		return BufferFailure{}, false
	}
	first := e.Failures[0]
	for _, f := range e.Failures[1:] {
		if f.Index < first.Index {
			first = f
		}
	}
	return first, true
}
