package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrConfigRequired", ErrConfigRequired, "shipflow: config is required"},
		{"ErrBufferFull", ErrBufferFull, "shipflow: buffer is full"},
		{"ErrBufferClosed", ErrBufferClosed, "shipflow: buffer is closed"},
		{"ErrRecordTooLarge", ErrRecordTooLarge, "shipflow: record does not fit an empty buffer"},
		{"ErrNoSource", ErrNoSource, "shipflow: no source matches the invocation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestIsDomain(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"operation", NewOperationError("time", "bad value %q", "x"), true},
		{"field not found", &FieldNotFoundError{Field: "a"}, true},
		{"deserialization", &DeserializationError{Err: errors.New("eof")}, true},
		{"serialization", &SerializationError{Err: errors.New("shape")}, true},
		{"wrapped domain", fmt.Errorf("stage: %w", &FieldNotFoundError{Field: "b"}), true},
		{"plain", errors.New("boom"), false},
		{"transport", NewTransportError("http", errors.New("503")), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDomain(tt.err); got != tt.want {
				t.Errorf("IsDomain() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperationErrorMessage(t *testing.T) {
	err := NewOperationError("partition", "field %s missing", "ts")
	want := "operation partition failed: field ts missing"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDeliveryError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &DeliveryError{
		Attempted: 3,
		Failures: []BufferFailure{
			{Index: 2, Partitions: "a=1", Err: cause},
			{Index: 1, Err: ErrBufferClosed},
		},
	}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the transport cause")
	}
	if !errors.Is(err, ErrBufferClosed) {
		t.Error("expected errors.Is to find the second cause")
	}

	first, ok := err.First()
	if !ok || first.Index != 1 {
		t.Errorf("First() = %+v, %v; want index 1", first, ok)
	}

	want := "delivery failed for 2 of 3 buffers: buffer #1: shipflow: buffer is closed (and 1 more)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := errors.New("timeout")
	err := NewTransportError("opensearch", inner)
	if !errors.Is(err, inner) {
		t.Error("expected wrapped cause")
	}
	if got := err.Error(); got != "transport opensearch: timeout" {
		t.Errorf("Error() = %q", got)
	}
}
