// Package wrappers builds the envelope an event is shipped in.
package wrappers

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/drblury/shipflow/internal/runtime/cloudevents"
	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/pipeline"
)

// Constructor builds a wrapper from its plugin config.
type Constructor func(cfg config.Plugin) (pipeline.Wrapper, error)

var constructors = map[string]Constructor{
	"passthrough": newPassthrough,
	"basic":       newBasic,
	"cloudevents": newCloudEvents,
}

// New builds the wrapper named by cfg.Type. An empty type is passthrough.
func New(cfg config.Plugin) (pipeline.Wrapper, error) {
	if cfg.Type == "" {
		cfg.Type = "passthrough"
	}
	ctor, ok := constructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: wrapper %q (known: %v)", sferrors.ErrUnknownType, cfg.Type, Types())
	}
	w, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("wrapper %s: %w", cfg.Type, err)
	}
	return w, nil
}

// Types lists the known wrapper types.
func Types() []string {
	return slices.Sorted(maps.Keys(constructors))
}

// Func adapts a function to pipeline.Wrapper.
type Func func(ev *event.Event) (any, error)

func (f Func) Wrap(ev *event.Event) (any, error) { return f(ev) }

func payloadOf(ev *event.Event) any {
	if ev.Payload() == nil {
		return nil
	}
	return ev.Payload().Payload()
}

func newPassthrough(config.Plugin) (pipeline.Wrapper, error) {
	return Func(func(ev *event.Event) (any, error) {
		return payloadOf(ev), nil
	}), nil
}

func newBasic(config.Plugin) (pipeline.Wrapper, error) {
	return basic{now: time.Now}, nil
}

type basic struct {
	now func() time.Time
}

// Wrap renders the event metadata next to its payload.
func (b basic) Wrap(ev *event.Event) (any, error) {
	processed := b.now().UnixMilli()
	ctx := ev.Context()
	ts, _ := ev.EventTime()
	return map[string]any{
		"function_name":    ctx.FunctionName,
		"function_version": ctx.FunctionVersion,
		"processing_time":  processed,
		"arrival_time":     ev.ArrivalTime(),
		"processing_delay": processed - ev.ArrivalTime(),
		"timestamp":        ts,
		"sha1hash":         ev.Hash(),
		"payload":          payloadOf(ev),
	}, nil
}

type cloudEventsSettings struct {
	Type            string `mapstructure:"event_type"`
	DataContentType string `mapstructure:"data_content_type"`
	// SubjectField names a payload field copied into the subject attribute.
	SubjectField string `mapstructure:"subject_field"`
}

func newCloudEvents(cfg config.Plugin) (pipeline.Wrapper, error) {
	s := cloudEventsSettings{Type: "shipflow.event", DataContentType: "application/json"}
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	return Func(func(ev *event.Event) (any, error) {
		source := ev.Context().FunctionARN
		if source == "" {
			source = ev.Context().FunctionName
		}
		if source == "" {
			source = "shipflow"
		}
		ts, _ := ev.EventTime()
		ce := cloudevents.New(s.Type, source, payloadOf(ev)).
			WithTime(cloudevents.FromMillis(ts)).
			WithDataContentType(s.DataContentType).
			WithExtension(cloudevents.ExtSHA1, ev.Hash()).
			WithExtension(cloudevents.ExtArrivalTime, ev.ArrivalTime())
		if v := ev.Context().FunctionVersion; v != "" {
			ce = ce.WithExtension(cloudevents.ExtFunctionVersion, v)
		}
		if id := ev.Context().RequestID; id != "" {
			ce = ce.WithExtension(cloudevents.ExtRequestID, id)
		}
		if s.SubjectField != "" && ev.Payload() != nil {
			if subj, err := ev.Payload().GetFieldAsString(s.SubjectField); err == nil {
				ce = ce.WithSubject(subj)
			}
		}
		return ce.ToMap(), nil
	}), nil
}
