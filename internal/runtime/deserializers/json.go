package deserializers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/jsoncodec"
	"github.com/drblury/shipflow/internal/runtime/payload"
)

// NestedField names a string field that may carry an embedded JSON object,
// optionally preceded by free text that is kept in PrefixField.
type NestedField struct {
	Field       string `mapstructure:"field"`
	PrefixField string `mapstructure:"prefix_field"`
}

type jsonSettings struct {
	NestedFieldConfigs   []NestedField `mapstructure:"nested_field_configs"`
	RootNodeOverridePath string        `mapstructure:"root_node_override_path"`
}

type jsonDeserializer struct {
	nested   []NestedField
	rootPath string
}

func newJSON(cfg config.Plugin) (Deserializer, error) {
	var s jsonSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	for _, n := range s.NestedFieldConfigs {
		if n.Field == "" {
			return nil, errors.New("nested_field_configs: field is required")
		}
	}
	return &jsonDeserializer{nested: s.NestedFieldConfigs, rootPath: s.RootNodeOverridePath}, nil
}

func (d *jsonDeserializer) Deserialize(raw []byte) (event.Deserialized, error) {
	v, err := jsoncodec.UnmarshalValue(raw)
	if err != nil {
		return nil, &sferrors.DeserializationError{Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &sferrors.DeserializationError{Err: errors.New("event is not a json object")}
	}

	for _, n := range d.nested {
		str, ok := obj[n.Field].(string)
		if !ok {
			continue
		}
		nested, prefix, ok := extractNested(str)
		if !ok {
			continue
		}
		obj[n.Field] = nested
		if n.PrefixField != "" {
			obj[n.PrefixField] = prefix
		}
	}

	p := payload.NewJSON(obj)
	if d.rootPath != "" {
		root, err := p.GetField(d.rootPath)
		if err != nil {
			return nil, &sferrors.DeserializationError{Err: fmt.Errorf("%s path not found in object", d.rootPath)}
		}
		rootObj, ok := root.(map[string]any)
		if !ok {
			return nil, &sferrors.DeserializationError{Err: fmt.Errorf("%s is not an object", d.rootPath)}
		}
		p.Replace(rootObj)
	}
	return p, nil
}

// extractNested parses the JSON object starting at the first '{' in s.
func extractNested(s string) (map[string]any, string, bool) {
	i := strings.IndexByte(s, '{')
	if i < 0 {
		return nil, "", false
	}
	v, err := jsoncodec.UnmarshalValue([]byte(s[i:]))
	if err != nil {
		return nil, "", false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, "", false
	}
	return obj, s[:i], true
}
