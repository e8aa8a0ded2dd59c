package deserializers

import (
	"github.com/drblury/shipflow/internal/runtime/config"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/payload"
)

func newPlain(config.Plugin) (Deserializer, error) {
	return Func(func(raw []byte) (event.Deserialized, error) {
		return payload.NewText(string(raw)), nil
	}), nil
}
