package operations

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/pipeline"
)

// PartitionSpec describes how one partition value is derived.
type PartitionSpec struct {
	Name string `mapstructure:"name"`
	// Sources are tried in order; the first present field wins.
	Sources []string `mapstructure:"sources"`
	// Interpreter is string, seconds, milliseconds or static.
	Interpreter string `mapstructure:"interpreter"`
	// Format is a Go time layout for time interpreters and the literal value
	// for static.
	Format       string `mapstructure:"format"`
	StringFormat string `mapstructure:"string_format"`
}

func (s *PartitionSpec) validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Interpreter == "" {
		s.Interpreter = "string"
	}
	if s.StringFormat == "" {
		s.StringFormat = "none"
	}
	switch s.Interpreter {
	case "string", "static":
	case "seconds", "milliseconds":
		if s.Format == "" {
			return fmt.Errorf("%s: format is required for interpreter %s", s.Name, s.Interpreter)
		}
	default:
		return fmt.Errorf("%s: unknown interpreter %q", s.Name, s.Interpreter)
	}
	switch s.StringFormat {
	case "none", "tolower", "toupper":
	default:
		return fmt.Errorf("%s: unknown string_format %q", s.Name, s.StringFormat)
	}
	return nil
}

// interpret turns the raw source value into the partition value. A nil input
// means no source field was present.
func (s *PartitionSpec) interpret(input *string) (*string, error) {
	switch s.Interpreter {
	case "static":
		return event.StringValue(s.Format), nil
	case "string":
		if input == nil {
			return nil, nil
		}
		switch s.StringFormat {
		case "tolower":
			return event.StringValue(strings.ToLower(*input)), nil
		case "toupper":
			return event.StringValue(strings.ToUpper(*input)), nil
		default:
			return input, nil
		}
	default:
		if input == nil || *input == "" {
			return nil, nil
		}
		ms, err := timestamp(*input, s.Interpreter)
		if err != nil {
			return nil, err
		}
		return event.StringValue(time.UnixMilli(ms).UTC().Format(s.Format)), nil
	}
}

type partitionSettings struct {
	Partitions []PartitionSpec `mapstructure:"partition_specs"`
}

func newPartition(cfg config.Plugin) (pipeline.Stage, error) {
	var s partitionSettings
	if err := cfg.Decode(&s); err != nil {
		return pipeline.Stage{}, err
	}
	if len(s.Partitions) == 0 {
		return pipeline.Stage{}, errors.New("partition_specs is required")
	}
	for i := range s.Partitions {
		if err := s.Partitions[i].validate(); err != nil {
			return pipeline.Stage{}, err
		}
	}
	specs := s.Partitions

	return pipeline.Single("partition", func(ev *event.Event) (*event.Event, error) {
		parts := make(event.Partitions, 0, len(specs))
		for i := range specs {
			spec := &specs[i]
			value, err := spec.interpret(firstSource(ev.Payload(), spec.Sources))
			if err != nil {
				return nil, sferrors.NewOperationError("partition", "%s: %v", spec.Name, err)
			}
			parts = append(parts, event.Partition{Name: spec.Name, Value: value})
		}
		ev.SetPartitions(parts)
		return ev, nil
	}), nil
}

func firstSource(p event.Deserialized, sources []string) *string {
	if p == nil {
		return nil
	}
	for _, src := range sources {
		v, err := p.GetFieldAsString(src)
		if err == nil {
			return &v
		}
	}
	return nil
}
