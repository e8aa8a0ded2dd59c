// Package serializers renders wrapped payloads to their wire form.
package serializers

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/jsoncodec"
	"github.com/drblury/shipflow/internal/runtime/pipeline"
)

// Constructor builds a serializer from its plugin config.
type Constructor func(cfg config.Plugin) (pipeline.Serializer, error)

var constructors = map[string]Constructor{
	"string":    newString,
	"json":      newJSON,
	"protojson": newProtoJSON,
}

// New builds the serializer named by cfg.Type.
func New(cfg config.Plugin) (pipeline.Serializer, error) {
	ctor, ok := constructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: serializer %q (known: %v)", sferrors.ErrUnknownType, cfg.Type, Types())
	}
	s, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("serializer %s: %w", cfg.Type, err)
	}
	return s, nil
}

// Types lists the known serializer types.
func Types() []string {
	return slices.Sorted(maps.Keys(constructors))
}

// Func adapts a function to pipeline.Serializer.
type Func func(payload any) (string, error)

func (f Func) Serialize(payload any) (string, error) { return f(payload) }

func unsupported(format string, args ...any) error {
	return &sferrors.SerializationError{Err: fmt.Errorf(format, args...)}
}

func newString(config.Plugin) (pipeline.Serializer, error) {
	return Func(func(payload any) (string, error) {
		switch v := payload.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return "", unsupported("string serializer cannot render %T", payload)
		}
	}), nil
}

type jsonSettings struct {
	Indent string `mapstructure:"indent"`
}

func newJSON(cfg config.Plugin) (pipeline.Serializer, error) {
	var s jsonSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	return Func(func(payload any) (string, error) {
		var (
			out []byte
			err error
		)
		if s.Indent != "" {
			out, err = jsoncodec.MarshalIndent(payload, "", s.Indent)
		} else {
			out, err = jsoncodec.Marshal(payload)
		}
		if err != nil {
			return "", unsupported("%v", err)
		}
		return string(out), nil
	}), nil
}

func newProtoJSON(cfg config.Plugin) (pipeline.Serializer, error) {
	opts := protojson.MarshalOptions{}
	var s struct {
		UseProtoNames bool `mapstructure:"use_proto_names"`
	}
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	opts.UseProtoNames = s.UseProtoNames
	return Func(func(payload any) (string, error) {
		obj, ok := payload.(map[string]any)
		if !ok {
			return "", unsupported("protojson serializer needs an object, got %T", payload)
		}
		st, err := structpb.NewStruct(normalize(obj).(map[string]any))
		if err != nil {
			return "", unsupported("%v", err)
		}
		out, err := opts.Marshal(st)
		if err != nil {
			return "", unsupported("%v", err)
		}
		return string(out), nil
	}), nil
}

// normalize converts values structpb cannot take into ones it can.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalize(child)
		}
		return out
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}
