package deserializers

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/payload"
)

// RegexField maps one capture group to a typed field.
type RegexField struct {
	Name string `mapstructure:"name"`
	// Type is string (default), number or boolean.
	Type string `mapstructure:"type"`
}

type regexSettings struct {
	Regex  string       `mapstructure:"regex"`
	Fields []RegexField `mapstructure:"fields"`
}

type regexDeserializer struct {
	re     *regexp.Regexp
	fields []RegexField
}

func newRegex(cfg config.Plugin) (Deserializer, error) {
	var s regexSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	if s.Regex == "" {
		return nil, errors.New("regex is required")
	}
	re, err := regexp.Compile(`^(?:` + s.Regex + `)$`)
	if err != nil {
		return nil, err
	}
	for _, f := range s.Fields {
		switch f.Type {
		case "", "string", "number", "boolean":
		default:
			return nil, fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
		}
	}
	return &regexDeserializer{re: re, fields: s.Fields}, nil
}

func (d *regexDeserializer) Deserialize(raw []byte) (event.Deserialized, error) {
	m := d.re.FindSubmatch(raw)
	if m == nil {
		return nil, &sferrors.DeserializationError{Err: errors.New("raw event does not match regex")}
	}

	obj := make(map[string]any, len(d.fields))
	for i, f := range d.fields {
		if i+1 >= len(m) {
			break
		}
		s := string(m[i+1])
		switch f.Type {
		case "number":
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, &sferrors.DeserializationError{Err: fmt.Errorf("field %s: %w", f.Name, err)}
			}
			obj[f.Name] = n
		case "boolean":
			b, _ := strconv.ParseBool(s)
			obj[f.Name] = b
		default:
			obj[f.Name] = s
		}
	}
	return payload.NewJSON(obj), nil
}
