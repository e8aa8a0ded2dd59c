// Package monitoring reports the stats of one invocation through the
// configured reporters.
package monitoring

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/drblury/shipflow/internal/runtime/stats"
)

// Reporter publishes the stats of one invocation.
type Reporter interface {
	Name() string
	Report(ctx context.Context, invokeTime time.Time, stats []stats.Stat) error
}

// Monitor owns the global tags and reporters of a process and writes the
// stats of each invocation once.
type Monitor struct {
	tags       []stats.Tag
	reporters  []Reporter
	invokeTime time.Time
	now        func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTags adds tags to every reported stat. A stat's own tag wins over a
// global tag of the same name.
func WithTags(tags ...stats.Tag) Option {
	return func(m *Monitor) { m.tags = append(m.tags, tags...) }
}

func WithReporters(reporters ...Reporter) Option {
	return func(m *Monitor) { m.reporters = append(m.reporters, reporters...) }
}

func withClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func New(opts ...Option) *Monitor {
	m := &Monitor{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin marks the start of an invocation.
func (m *Monitor) Begin() time.Time {
	m.invokeTime = m.now()
	return m.invokeTime
}

// InvokeTime is the start of the current invocation.
func (m *Monitor) InvokeTime() time.Time { return m.invokeTime }

func (m *Monitor) Reporters() []Reporter { return m.reporters }

// Write tags the snapshot of reg and hands it to every reporter. Reporter
// failures are joined; one failing reporter does not stop the others.
func (m *Monitor) Write(ctx context.Context, reg *stats.Registry) error {
	if len(m.reporters) == 0 {
		return nil
	}
	invoke := m.invokeTime
	if invoke.IsZero() {
		invoke = m.now()
	}
	snapshot := m.tagged(reg.Snapshot())

	var errs []error
	for _, r := range m.reporters {
		if err := r.Report(ctx, invoke, snapshot); err != nil {
			errs = append(errs, fmt.Errorf("reporter %s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Monitor) tagged(in []stats.Stat) []stats.Stat {
	if len(m.tags) == 0 {
		return in
	}
	out := make([]stats.Stat, len(in))
	for i, s := range in {
		tags := slices.Clone(s.Tags)
		for _, g := range m.tags {
			if _, ok := s.Tag(g.Name); !ok {
				tags = append(tags, g)
			}
		}
		slices.SortFunc(tags, func(a, b stats.Tag) int { return cmp.Compare(a.Name, b.Name) })
		s.Tags = tags
		out[i] = s
	}
	return out
}
