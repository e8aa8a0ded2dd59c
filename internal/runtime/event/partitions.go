package event

import "strings"

// Partition is one named value of a partition tuple. A nil Value means the
// source field was absent, which is distinct from an empty string.
type Partition struct {
	Name  string
	Value *string
}

// Partitions is an ordered partition tuple in configuration order.
type Partitions []Partition

// StringValue returns a pointer to a copy of v.
func StringValue(v string) *string { return &v }

// Get returns the value for name and whether the name is present in the tuple.
func (p Partitions) Get(name string) (*string, bool) {
	for _, part := range p {
		if part.Name == name {
			return part.Value, true
		}
	}
	return nil, false
}

// Key is a stable grouping key: equal tuples produce equal keys.
func (p Partitions) Key() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for i, part := range p {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(part.Name)
		if part.Value == nil {
			b.WriteString("\x00")
			continue
		}
		b.WriteByte('=')
		b.WriteString(*part.Value)
	}
	return b.String()
}

func (p Partitions) String() string {
	parts := make([]string, len(p))
	for i, part := range p {
		v := "null"
		if part.Value != nil {
			v = *part.Value
		}
		parts[i] = part.Name + "=" + v
	}
	return strings.Join(parts, ",")
}

func (p Partitions) Clone() Partitions {
	if p == nil {
		return nil
	}
	out := make(Partitions, len(p))
	for i, part := range p {
		out[i] = Partition{Name: part.Name}
		if part.Value != nil {
			out[i].Value = StringValue(*part.Value)
		}
	}
	return out
}
