package operations

import (
	"errors"
	"maps"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/payload"
	"github.com/drblury/shipflow/internal/runtime/pipeline"
)

type arraySplitSettings struct {
	Path         string   `mapstructure:"path"`
	FieldsToKeep []string `mapstructure:"fields_to_keep"`
}

func newArraySplit(cfg config.Plugin) (pipeline.Stage, error) {
	var s arraySplitSettings
	if err := cfg.Decode(&s); err != nil {
		return pipeline.Stage{}, err
	}
	if s.Path == "" {
		return pipeline.Stage{}, errors.New("path is required")
	}

	return pipeline.Multiplex("array_split", func(ev *event.Event) ([]*event.Event, error) {
		if ev.Payload() == nil {
			return nil, sferrors.NewOperationError("array_split", "event has no deserialized payload")
		}
		v, err := ev.Payload().GetField(s.Path)
		if err != nil {
			return nil, err
		}
		arr, ok := v.([]any)
		if !ok {
			return nil, sferrors.NewOperationError("array_split", "%s is %T, not an array", s.Path, v)
		}
		parent, _ := ev.Payload().Payload().(map[string]any)

		out := make([]*event.Event, 0, len(arr))
		for i, elm := range arr {
			src, ok := elm.(map[string]any)
			if !ok {
				return nil, sferrors.NewOperationError("array_split", "%s[%d] is %T, not an object", s.Path, i, elm)
			}
			obj := maps.Clone(src)
			for _, f := range s.FieldsToKeep {
				if pv, ok := parent[f]; ok {
					obj[f] = pv
				}
			}
			out = append(out, ev.Derive(payload.NewJSON(obj)))
		}
		return out, nil
	}), nil
}
