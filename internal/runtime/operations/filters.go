package operations

import (
	"errors"
	"regexp"

	"github.com/drblury/shipflow/internal/runtime/config"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/pipeline"
)

type regexFilterSettings struct {
	Regex string `mapstructure:"regex"`
	Path  string `mapstructure:"path"`
	// Exclude drops matching events; otherwise non-matching events are dropped.
	Exclude bool `mapstructure:"exclude"`
}

func newRegexFilter(cfg config.Plugin) (pipeline.Stage, error) {
	s := regexFilterSettings{Exclude: true}
	if err := cfg.Decode(&s); err != nil {
		return pipeline.Stage{}, err
	}
	if s.Regex == "" || s.Path == "" {
		return pipeline.Stage{}, errors.New("regex and path are required")
	}
	re, err := regexp.Compile(`^(?:` + s.Regex + `)$`)
	if err != nil {
		return pipeline.Stage{}, err
	}

	return pipeline.Filter("regex_filter", func(ev *event.Event) (bool, error) {
		if ev.Payload() == nil {
			return false, nil
		}
		found := false
		if v, err := ev.Payload().GetFieldAsString(s.Path); err == nil {
			found = re.MatchString(v)
		}
		return s.Exclude != found, nil
	}), nil
}

type basicFilterSettings struct {
	Pass bool `mapstructure:"pass"`
}

func newBasicFilter(cfg config.Plugin) (pipeline.Stage, error) {
	s := basicFilterSettings{Pass: true}
	if err := cfg.Decode(&s); err != nil {
		return pipeline.Stage{}, err
	}
	return pipeline.Filter("basic_filter", func(*event.Event) (bool, error) {
		return s.Pass, nil
	}), nil
}
