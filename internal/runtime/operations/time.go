package operations

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/payload"
	"github.com/drblury/shipflow/internal/runtime/pipeline"
)

type timeSettings struct {
	TimeField     string `mapstructure:"time_field"`
	TimeFieldType string `mapstructure:"time_field_type"`
}

func newTime(cfg config.Plugin) (pipeline.Stage, error) {
	s := timeSettings{TimeFieldType: "seconds"}
	if err := cfg.Decode(&s); err != nil {
		return pipeline.Stage{}, err
	}
	if s.TimeField == "" {
		return pipeline.Stage{}, errors.New("time_field is required")
	}
	if !validTimeUnit(s.TimeFieldType) {
		return pipeline.Stage{}, fmt.Errorf("time_field_type %q must be seconds or milliseconds", s.TimeFieldType)
	}

	return pipeline.Single("time", func(ev *event.Event) (*event.Event, error) {
		if ev.Payload() == nil {
			return nil, sferrors.NewOperationError("time", "event has no deserialized payload")
		}
		v, err := ev.Payload().GetField(s.TimeField)
		if err != nil {
			return nil, err
		}
		ms, err := timestamp(v, s.TimeFieldType)
		if err != nil {
			return nil, sferrors.NewOperationError("time", "%s: %v", s.TimeField, err)
		}
		ev.SetEventTime(ms)
		return ev, nil
	}), nil
}

func validTimeUnit(unit string) bool {
	return unit == "seconds" || unit == "milliseconds"
}

// timestamp converts a seconds or milliseconds field value into epoch
// milliseconds, normalising the precision by digit count.
func timestamp(v any, unit string) (int64, error) {
	s, ok := payload.AsString(v)
	if !ok {
		return 0, fmt.Errorf("value of type %T is not a timestamp", v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if unit == "seconds" {
		f *= 1000
	}
	return event.ToMilliseconds(int64(f))
}
