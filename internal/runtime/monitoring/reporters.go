package monitoring

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/stats"
)

// Constructor builds a reporter from its config.
type Constructor func(cfg config.Reporter, logger logging.ServiceLogger) (Reporter, error)

var constructors = map[string]Constructor{
	"cloudwatch_emf": newEMF,
	"prometheus":     newPrometheus,
	"log":            newLog,
}

// NewReporter builds the reporter named by cfg.Type with its stat filters.
func NewReporter(cfg config.Reporter, logger logging.ServiceLogger) (Reporter, error) {
	ctor, ok := constructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: reporter %q (known: %v)", sferrors.ErrUnknownType, cfg.Type, Types())
	}
	r, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("reporter %s: %w", cfg.Type, err)
	}
	return Filtered(r, cfg.StatFilters), nil
}

// Build constructs every configured reporter.
func Build(cfgs []config.Reporter, logger logging.ServiceLogger) ([]Reporter, error) {
	out := make([]Reporter, 0, len(cfgs))
	for i, cfg := range cfgs {
		r, err := NewReporter(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("reporters[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Types lists the known reporter types.
func Types() []string {
	return slices.Sorted(maps.Keys(constructors))
}

type logReporter struct {
	logger logging.ServiceLogger
}

func newLog(_ config.Reporter, logger logging.ServiceLogger) (Reporter, error) {
	if logger == nil {
		return nil, sferrors.ErrLoggerRequired
	}
	return &logReporter{logger: logger}, nil
}

func (r *logReporter) Name() string { return "log" }

func (r *logReporter) Report(_ context.Context, invokeTime time.Time, in []stats.Stat) error {
	for _, s := range in {
		fields := logging.LogFields{
			"stat":        s.Name,
			"value":       s.Value,
			"unit":        string(s.Unit),
			"invoke_time": invokeTime.UnixMilli(),
		}
		for _, t := range s.Tags {
			fields["tag."+t.Name] = t.Value
		}
		r.logger.Info("stat", fields)
	}
	return nil
}
