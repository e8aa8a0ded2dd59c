// Package operations builds the configurable stages of a source's operation
// chain.
package operations

import (
	"fmt"
	"maps"
	"slices"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/pipeline"
)

// Constructor builds a stage from its plugin config.
type Constructor func(cfg config.Plugin) (pipeline.Stage, error)

var constructors = map[string]Constructor{
	"time":                 newTime,
	"partition":            newPartition,
	"drop_field":           newDropField,
	"delete":               newDropField,
	"key_name_replacement": newKeyNameReplacement,
	"lowercase_keys":       newLowercaseKeys,
	"flatten":              newFlatten,
	"url_decode":           newURLDecode,
	"regex_filter":         newRegexFilter,
	"basic_filter":         newBasicFilter,
	"array_split":          newArraySplit,
}

// New builds the stage named by cfg.Type.
func New(cfg config.Plugin) (pipeline.Stage, error) {
	ctor, ok := constructors[cfg.Type]
	if !ok {
		return pipeline.Stage{}, fmt.Errorf("%w: operation %q (known: %v)", sferrors.ErrUnknownType, cfg.Type, Types())
	}
	stage, err := ctor(cfg)
	if err != nil {
		return pipeline.Stage{}, fmt.Errorf("operation %s: %w", cfg.Type, err)
	}
	return stage, nil
}

// Build constructs a whole chain in configuration order.
func Build(cfgs []config.Plugin) ([]pipeline.Stage, error) {
	stages := make([]pipeline.Stage, 0, len(cfgs))
	for i, cfg := range cfgs {
		stage, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("operations[%d]: %w", i, err)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// Types lists the known operation types.
func Types() []string {
	return slices.Sorted(maps.Keys(constructors))
}

// object returns the payload of ev as a JSON object.
func object(op string, ev *event.Event) (map[string]any, error) {
	if ev.Payload() == nil {
		return nil, sferrors.NewOperationError(op, "event has no deserialized payload")
	}
	obj, ok := ev.Payload().Payload().(map[string]any)
	if !ok {
		return nil, sferrors.NewOperationError(op, "payload is %T, not an object", ev.Payload().Payload())
	}
	return obj, nil
}
