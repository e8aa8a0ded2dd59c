package stats

import (
	"fmt"
	"runtime/debug"
	"time"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
)

const (
	StatTiming  = "timing.ns"
	StatErrors  = "error.count"
	StatSuccess = "success.count"
)

// PanicError is returned when a monitored function panics. It is never a
// domain error, so it aborts the batch.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic in stage: %v", e.Value) }

type monitorOptions struct {
	onDomainError func(error)
}

// MonitorOption customises Monitor.
type MonitorOption func(*monitorOptions)

// WithDomainErrorHandler receives each domain error after it has been counted.
func WithDomainErrorHandler(fn func(error)) MonitorOption {
	return func(o *monitorOptions) { o.onDomainError = fn }
}

// Monitor decorates fn with timing and success/error counting tagged with
// class. A domain error is counted and reported as ok == false with a nil
// error so callers drop the item; any other error is returned unchanged after
// the timer is stopped.
func Monitor[I, O any](reg *Registry, class string, fn func(I) (O, error), opts ...MonitorOption) func(I) (O, bool, error) {
	var o monitorOptions
	for _, opt := range opts {
		opt(&o)
	}
	tag := Tag{Name: "class", Value: class}

	return func(in I) (out O, ok bool, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				var zero O
				out, ok, err = zero, false, &PanicError{Value: r, Stack: debug.Stack()}
			}
			reg.Add(StatTiming, UnitNone, float64(time.Since(start).Nanoseconds()), tag)
		}()

		out, err = fn(in)
		switch {
		case err == nil:
			reg.Add(StatSuccess, UnitCount, 1, tag)
			return out, true, nil
		case sferrors.IsDomain(err):
			reg.Add(StatErrors, UnitCount, 1, tag)
			if o.onDomainError != nil {
				o.onDomainError(err)
			}
			var zero O
			return zero, false, nil
		default:
			var zero O
			return zero, false, err
		}
	}
}
