package monitoring

import (
	"context"
	"time"

	"github.com/drblury/shipflow/internal/runtime/config"
	"github.com/drblury/shipflow/internal/runtime/stats"
)

func matches(f config.StatFilter, s stats.Stat) bool {
	if f.ReportZeros != nil && !*f.ReportZeros && s.Value != 0 {
		return false
	}
	if f.Name != "" && f.Name != s.Name {
		return false
	}
	for name, value := range f.Tags {
		if v, ok := s.Tag(name); !ok || v != value {
			return false
		}
	}
	return true
}

// Filter removes every stat matched by one of filters.
func Filter(in []stats.Stat, filters []config.StatFilter) []stats.Stat {
	if len(filters) == 0 {
		return in
	}
	out := make([]stats.Stat, 0, len(in))
	for _, s := range in {
		dropped := false
		for _, f := range filters {
			if matches(f, s) {
				dropped = true
				break
			}
		}
		if !dropped {
			out = append(out, s)
		}
	}
	return out
}

type filtered struct {
	Reporter
	filters []config.StatFilter
}

// Filtered applies filters before handing stats to r.
func Filtered(r Reporter, filters []config.StatFilter) Reporter {
	if len(filters) == 0 {
		return r
	}
	return &filtered{Reporter: r, filters: filters}
}

func (f *filtered) Report(ctx context.Context, invokeTime time.Time, in []stats.Stat) error {
	return f.Reporter.Report(ctx, invokeTime, Filter(in, f.filters))
}
