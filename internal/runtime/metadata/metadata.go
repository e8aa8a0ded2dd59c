// Package metadata describes a delivered buffer as string headers that sinks
// attach to their messages, requests or objects.
package metadata

import (
	"maps"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/shipflow/transport"
)

// Keys set by ForBuffer.
const (
	KeyContentEncoding = "content_encoding"
	KeyRecords         = "records"
	KeyPartitions      = "partitions"
)

// Metadata is a flat set of headers.
type Metadata map[string]string

// New constructs a Metadata map from alternating key/value pairs. A trailing
// key without value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// ForBuffer returns the record count, content encoding and partition key of
// buf. Empty values are left out.
func ForBuffer(buf *transport.Buffer) Metadata {
	md := Metadata{KeyRecords: strconv.Itoa(buf.Records())}
	if enc := buf.ContentEncoding(); enc != "" {
		md[KeyContentEncoding] = enc
	}
	if p := buf.Partitions(); len(p) > 0 {
		md[KeyPartitions] = p.String()
	}
	return md
}

// Clone returns a shallow copy. The copy of a nil map is empty, not nil.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	maps.Copy(out, m)
	return out
}

// With returns a copy that also holds key.
func (m Metadata) With(key, value string) Metadata {
	out := m.Clone()
	out[key] = value
	return out
}

// Without returns a copy lacking keys.
func (m Metadata) Without(keys ...string) Metadata {
	out := m.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Rename returns a copy where every key found in names is replaced by its
// mapped value. Keys not in names are dropped, so the result only carries
// headers the receiver understands.
func (m Metadata) Rename(names map[string]string) Metadata {
	out := make(Metadata, len(names))
	for k, v := range m {
		if name, ok := names[k]; ok {
			out[name] = v
		}
	}
	return out
}

// ToWatermill converts the headers into Watermill message metadata.
func (m Metadata) ToWatermill() message.Metadata {
	out := make(message.Metadata, len(m))
	maps.Copy(out, m)
	return out
}
