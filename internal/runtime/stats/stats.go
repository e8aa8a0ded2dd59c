// Package stats keeps the invocation-scoped counters and timers every stage
// reports into.
package stats

import (
	"slices"
	"strings"
	"sync"
)

// Unit names follow the CloudWatch embedded metric units.
type Unit string

const (
	UnitNone         Unit = "None"
	UnitCount        Unit = "Count"
	UnitMilliseconds Unit = "Milliseconds"
	UnitBytes        Unit = "Bytes"
)

// Tag is a name/value pair attached to a stat.
type Tag struct {
	Name  string
	Value string
}

// Stat is a named, tagged value read once per invocation.
type Stat struct {
	Name  string
	Value float64
	Unit  Unit
	Tags  []Tag
}

// Tag returns the value for name.
func (s Stat) Tag(name string) (string, bool) {
	for _, t := range s.Tags {
		if t.Name == name {
			return t.Value, true
		}
	}
	return "", false
}

type entry struct {
	stat Stat
}

// Registry accumulates stats for one invocation. Reset must be called before
// each batch when the surrounding process is reused.
type Registry struct {
	mu    sync.Mutex
	stats map[string]*entry
	order []string
}

func NewRegistry() *Registry {
	return &Registry{stats: make(map[string]*entry)}
}

// Add increments the stat identified by name and tags, creating it at zero.
func (r *Registry) Add(name string, unit Unit, delta float64, tags ...Tag) {
	r.update(name, unit, tags, func(s *Stat) { s.Value += delta })
}

// Set overwrites the stat identified by name and tags.
func (r *Registry) Set(name string, unit Unit, value float64, tags ...Tag) {
	r.update(name, unit, tags, func(s *Stat) { s.Value = value })
}

func (r *Registry) update(name string, unit Unit, tags []Tag, fn func(*Stat)) {
	tags = normalize(tags)
	key := statKey(name, tags)

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.stats[key]
	if !ok {
		e = &entry{stat: Stat{Name: name, Unit: unit, Tags: tags}}
		r.stats[key] = e
		r.order = append(r.order, key)
	}
	fn(&e.stat)
}

// Value returns the current value of a stat, zero when it was never touched.
func (r *Registry) Value(name string, tags ...Tag) float64 {
	key := statKey(name, normalize(tags))
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.stats[key]; ok {
		return e.stat.Value
	}
	return 0
}

// Snapshot returns a copy of every stat in creation order.
func (r *Registry) Snapshot() []Stat {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stat, 0, len(r.order))
	for _, key := range r.order {
		s := r.stats[key].stat
		s.Tags = slices.Clone(s.Tags)
		out = append(out, s)
	}
	return out
}

// Reset drops every stat so the next invocation starts from zero.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.stats)
	r.order = r.order[:0]
}

// normalize sorts tags by name and keeps the last value for duplicate names.
func normalize(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]int, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if i, ok := seen[t.Name]; ok {
			out[i].Value = t.Value
			continue
		}
		seen[t.Name] = len(out)
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Tag) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func statKey(name string, tags []Tag) string {
	var b strings.Builder
	b.WriteString(name)
	for _, t := range tags {
		b.WriteByte(0x1f)
		b.WriteString(t.Name)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}
