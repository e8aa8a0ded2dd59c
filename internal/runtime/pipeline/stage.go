// Package pipeline runs events through operation, filter and serializer
// stages. Stages are sequential and lazy: nothing happens until the returned
// sequence is ranged over.
package pipeline

import (
	"fmt"
	"iter"

	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/stats"
)

// Kind is the arity of a stage, fixed at construction.
type Kind int

const (
	KindSingle Kind = iota
	KindMultiplex
	KindFilter
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindMultiplex:
		return "multiplex"
	case KindFilter:
		return "filter"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SingleFunc maps one event to zero or one event. Returning nil drops the
// event without counting an error.
type SingleFunc func(*event.Event) (*event.Event, error)

// MultiplexFunc maps one event to zero or more events.
type MultiplexFunc func(*event.Event) ([]*event.Event, error)

// FilterFunc keeps the event when it returns true.
type FilterFunc func(*event.Event) (bool, error)

// Stage is a tagged variant: exactly one of the function fields is set,
// matching Kind.
type Stage struct {
	name      string
	kind      Kind
	single    SingleFunc
	multiplex MultiplexFunc
	filter    FilterFunc
}

func Single(name string, fn SingleFunc) Stage {
	return Stage{name: name, kind: KindSingle, single: fn}
}

func Multiplex(name string, fn MultiplexFunc) Stage {
	return Stage{name: name, kind: KindMultiplex, multiplex: fn}
}

func Filter(name string, fn FilterFunc) Stage {
	return Stage{name: name, kind: KindFilter, filter: fn}
}

func (s Stage) Name() string { return s.name }
func (s Stage) Kind() Kind   { return s.kind }

// Events turns a slice into a sequence.
func Events(events []*event.Event) iter.Seq2[*event.Event, error] {
	return func(yield func(*event.Event, error) bool) {
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Apply runs stage over in. Domain errors drop the offending event and are
// counted under the stage name; any other error is yielded once and ends the
// sequence. Errors already present in the input are passed through.
func Apply(reg *stats.Registry, stage Stage, in iter.Seq2[*event.Event, error]) iter.Seq2[*event.Event, error] {
	switch stage.kind {
	case KindSingle:
		fn := stats.Monitor(reg, stage.name, stage.single)
		return each(in, func(ev *event.Event, yield func(*event.Event, error) bool) bool {
			out, ok, err := fn(ev)
			if err != nil {
				yield(nil, fmt.Errorf("stage %s: %w", stage.name, err))
				return false
			}
			if !ok || out == nil {
				return true
			}
			return yield(out, nil)
		})
	case KindMultiplex:
		fn := stats.Monitor(reg, stage.name, stage.multiplex)
		return each(in, func(ev *event.Event, yield func(*event.Event, error) bool) bool {
			outs, _, err := fn(ev)
			if err != nil {
				yield(nil, fmt.Errorf("stage %s: %w", stage.name, err))
				return false
			}
			for _, out := range outs {
				if out == nil {
					continue
				}
				if !yield(out, nil) {
					return false
				}
			}
			return true
		})
	case KindFilter:
		fn := stats.Monitor(reg, stage.name, stage.filter)
		return each(in, func(ev *event.Event, yield func(*event.Event, error) bool) bool {
			keep, _, err := fn(ev)
			if err != nil {
				yield(nil, fmt.Errorf("filter %s: %w", stage.name, err))
				return false
			}
			if !keep {
				return true
			}
			return yield(ev, nil)
		})
	default:
		return func(yield func(*event.Event, error) bool) {
			yield(nil, fmt.Errorf("stage %s: unsupported kind %s", stage.name, stage.kind))
		}
	}
}

// Chain applies stages in order.
func Chain(reg *stats.Registry, stages []Stage, in iter.Seq2[*event.Event, error]) iter.Seq2[*event.Event, error] {
	out := in
	for _, stage := range stages {
		out = Apply(reg, stage, out)
	}
	return out
}

// each drives in and hands every event to step. step returns false to stop.
func each(in iter.Seq2[*event.Event, error], step func(*event.Event, func(*event.Event, error) bool) bool) iter.Seq2[*event.Event, error] {
	return func(yield func(*event.Event, error) bool) {
		for ev, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			if !step(ev, yield) {
				return
			}
		}
	}
}
