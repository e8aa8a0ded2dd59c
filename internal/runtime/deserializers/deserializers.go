// Package deserializers turns raw records into payloads stages can address.
package deserializers

import (
	"fmt"
	"maps"
	"slices"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
)

// Deserializer decodes one raw record. Malformed input is reported as
// *errors.DeserializationError so the event is dropped.
type Deserializer interface {
	Deserialize(raw []byte) (event.Deserialized, error)
}

// Func adapts a function to Deserializer.
type Func func(raw []byte) (event.Deserialized, error)

func (f Func) Deserialize(raw []byte) (event.Deserialized, error) { return f(raw) }

// Constructor builds a deserializer from its plugin config.
type Constructor func(cfg config.Plugin) (Deserializer, error)

var constructors = map[string]Constructor{
	"plain": newPlain,
	"json":  newJSON,
	"regex": newRegex,
}

// New builds the deserializer named by cfg.Type.
func New(cfg config.Plugin) (Deserializer, error) {
	ctor, ok := constructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: deserializer %q (known: %v)", sferrors.ErrUnknownType, cfg.Type, Types())
	}
	d, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("deserializer %s: %w", cfg.Type, err)
	}
	return d, nil
}

// Types lists the known deserializer types.
func Types() []string {
	return slices.Sorted(maps.Keys(constructors))
}
