package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/transport"
)

func TestNewIgnoresDanglingKey(t *testing.T) {
	md := New("a", "1", "b")
	assert.Equal(t, Metadata{"a": "1"}, md)
}

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1"}
	clone := original.With("b", "2")
	clone["a"] = "changed"

	assert.Equal(t, Metadata{"a": "1"}, original)
	assert.NotNil(t, Metadata(nil).Clone())
}

func TestWithoutAndRename(t *testing.T) {
	md := Metadata{KeyRecords: "3", KeyPartitions: "day=1", "other": "x"}

	assert.Equal(t, Metadata{KeyRecords: "3", "other": "x"}, md.Without(KeyPartitions))
	assert.Equal(t, Metadata{"X-Records": "3"}, md.Rename(map[string]string{KeyRecords: "X-Records"}))
	assert.Len(t, md, 3)
}

func TestForBuffer(t *testing.T) {
	buf, err := transport.NewBuffer(transport.BufferOptions{Codec: transport.CodecGzip, MaxBytes: 1024})
	require.NoError(t, err)
	require.NoError(t, buf.Add([]byte("a")))
	require.NoError(t, buf.Add([]byte("b")))
	buf.SetPartitions(event.Partitions{{Name: "day", Value: event.StringValue("2024-01-01")}})

	md := ForBuffer(buf)
	assert.Equal(t, "2", md[KeyRecords])
	assert.Equal(t, "gzip", md[KeyContentEncoding])
	assert.Equal(t, "day=2024-01-01", md[KeyPartitions])

	wm := md.ToWatermill()
	assert.Equal(t, "2", wm.Get(KeyRecords))
}

func TestForBufferPlain(t *testing.T) {
	buf, err := transport.NewBuffer(transport.BufferOptions{MaxBytes: 1024})
	require.NoError(t, err)

	md := ForBuffer(buf)
	assert.Equal(t, Metadata{KeyRecords: "0"}, md)
}
