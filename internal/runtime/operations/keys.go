package operations

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/pipeline"
)

type dropFieldSettings struct {
	Field  string   `mapstructure:"field"`
	Fields []string `mapstructure:"fields"`
}

func newDropField(cfg config.Plugin) (pipeline.Stage, error) {
	var s dropFieldSettings
	if err := cfg.Decode(&s); err != nil {
		return pipeline.Stage{}, err
	}
	fields := s.Fields
	if s.Field != "" {
		fields = append([]string{s.Field}, fields...)
	}
	if len(fields) == 0 {
		return pipeline.Stage{}, errors.New("field is required")
	}

	return pipeline.Single(cfg.Type, func(ev *event.Event) (*event.Event, error) {
		if ev.Payload() == nil {
			return nil, sferrors.NewOperationError(cfg.Type, "event has no deserialized payload")
		}
		for _, f := range fields {
			err := ev.Payload().DeleteField(f)
			var nf *sferrors.FieldNotFoundError
			if err != nil && !errors.As(err, &nf) {
				return nil, err
			}
		}
		return ev, nil
	}), nil
}

type keyNameReplacementSettings struct {
	Regex       string `mapstructure:"regex"`
	Replacement string `mapstructure:"replacement"`
	Drop        bool   `mapstructure:"drop"`
}

func newKeyNameReplacement(cfg config.Plugin) (pipeline.Stage, error) {
	var s keyNameReplacementSettings
	if err := cfg.Decode(&s); err != nil {
		return pipeline.Stage{}, err
	}
	if s.Regex == "" {
		return pipeline.Stage{}, errors.New("regex is required")
	}
	re, err := regexp.Compile(s.Regex)
	if err != nil {
		return pipeline.Stage{}, err
	}

	rename := func(key string) (string, bool) {
		if !re.MatchString(key) {
			return key, true
		}
		if s.Drop {
			return "", false
		}
		return re.ReplaceAllString(key, s.Replacement), true
	}
	return payloadStage("key_name_replacement", func(obj map[string]any) {
		rewriteKeys(obj, rename)
	}), nil
}

func newLowercaseKeys(config.Plugin) (pipeline.Stage, error) {
	lower := func(key string) (string, bool) { return strings.ToLower(key), true }
	return payloadStage("lowercase_keys", func(obj map[string]any) {
		rewriteKeys(obj, lower)
	}), nil
}

type flattenSettings struct {
	Separator string `mapstructure:"separator"`
}

func newFlatten(cfg config.Plugin) (pipeline.Stage, error) {
	s := flattenSettings{Separator: "."}
	if err := cfg.Decode(&s); err != nil {
		return pipeline.Stage{}, err
	}
	return payloadStage("flatten", func(obj map[string]any) {
		for k, v := range obj {
			switch v.(type) {
			case map[string]any, []any:
				delete(obj, k)
				flattenInto(obj, k, v, s.Separator)
			}
		}
	}), nil
}

type urlDecodeSettings struct {
	Fields []string `mapstructure:"fields"`
	Times  int      `mapstructure:"times"`
}

func newURLDecode(cfg config.Plugin) (pipeline.Stage, error) {
	s := urlDecodeSettings{Times: 1}
	if err := cfg.Decode(&s); err != nil {
		return pipeline.Stage{}, err
	}
	if len(s.Fields) == 0 {
		return pipeline.Stage{}, errors.New("fields is required")
	}
	if s.Times < 1 {
		return pipeline.Stage{}, errors.New("times must be at least 1")
	}

	return pipeline.Single("url_decode", func(ev *event.Event) (*event.Event, error) {
		if ev.Payload() == nil {
			return ev, nil
		}
		for _, f := range s.Fields {
			v, err := ev.Payload().GetFieldAsString(f)
			if err != nil {
				continue
			}
			decoded, ok := unescape(v, s.Times)
			if !ok {
				continue
			}
			if err := ev.Payload().SetField(f, decoded); err != nil {
				return nil, err
			}
		}
		return ev, nil
	}), nil
}

func unescape(v string, times int) (string, bool) {
	for range times {
		d, err := url.QueryUnescape(v)
		if err != nil {
			return "", false
		}
		v = d
	}
	return v, true
}

// payloadStage runs fn on the event's JSON object in place.
func payloadStage(name string, fn func(map[string]any)) pipeline.Stage {
	return pipeline.Single(name, func(ev *event.Event) (*event.Event, error) {
		obj, err := object(name, ev)
		if err != nil {
			return nil, err
		}
		fn(obj)
		return ev, nil
	})
}

// rewriteKeys renames every key of obj and of the objects nested in it. A
// rename returning false drops the key with its value.
func rewriteKeys(obj map[string]any, rename func(string) (string, bool)) {
	type entry struct {
		key string
		val any
	}
	entries := make([]entry, 0, len(obj))
	for k, v := range obj {
		entries = append(entries, entry{k, v})
	}
	clear(obj)
	for _, e := range entries {
		key, keep := rename(e.key)
		if !keep {
			continue
		}
		rewriteValue(e.val, rename)
		obj[key] = e.val
	}
}

func rewriteValue(v any, rename func(string) (string, bool)) {
	switch val := v.(type) {
	case map[string]any:
		rewriteKeys(val, rename)
	case []any:
		for _, item := range val {
			rewriteValue(item, rename)
		}
	}
}

// flattenInto writes v into obj under prefix-joined keys. Array elements are
// numbered from 1.
func flattenInto(obj map[string]any, prefix string, v any, sep string) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			flattenInto(obj, prefix+sep+k, child, sep)
		}
	case []any:
		for i, child := range val {
			flattenInto(obj, prefix+sep+strconv.Itoa(i+1), child, sep)
		}
	default:
		obj[prefix] = val
	}
}
