package cloudevents

import (
	"testing"
	"time"

	"github.com/drblury/shipflow/internal/runtime/jsoncodec"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	data := map[string]any{"key": "value"}
	evt := New("shipflow.event", "arn:aws:lambda:us-east-1:123:function:ship", data)

	assert.Equal(t, SpecVersion, evt.SpecVersion)
	assert.Equal(t, "shipflow.event", evt.Type)
	assert.Equal(t, data, evt.Data)
	assert.True(t, evt.Time.IsZero())
	_, err := ulid.Parse(evt.ID)
	assert.NoError(t, err)
	assert.NoError(t, evt.Validate())
}

func TestWithExtensionDoesNotAlias(t *testing.T) {
	base := New("t", "s", nil).WithExtension(ExtSHA1, "abc")
	other := base.WithExtension(ExtSHA1, "def")

	assert.Equal(t, "abc", SHA1(base))
	assert.Equal(t, "def", SHA1(other))
	assert.Nil(t, base.GetExtension("missing"))
}

func TestValidate(t *testing.T) {
	evt := Event{SpecVersion: "0.3"}.WithExtension("Bad_Name", 1)
	err := evt.Validate()
	require.Error(t, err)
	for _, msg := range []string{"specversion", "type is required", "source is required", "id is required", "Bad_Name"} {
		assert.Contains(t, err.Error(), msg)
	}
}

func TestToMapFlattensExtensions(t *testing.T) {
	evt := New("t", "s", map[string]any{"a": 1}).
		WithTime(time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)).
		WithSubject("subj").
		WithDataContentType("application/json").
		WithExtension(ExtArrivalTime, int64(1700000000000))

	m := evt.ToMap()
	assert.Equal(t, "2024-01-02T03:04:05.006Z", m["time"])
	assert.Equal(t, "subj", m["subject"])
	assert.Equal(t, "application/json", m["datacontenttype"])
	assert.Equal(t, int64(1700000000000), m[ExtArrivalTime])
	assert.Equal(t, int64(1700000000000), ArrivalTime(evt))

	raw, err := jsoncodec.Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"arrivaltime":1700000000000`)
	assert.NotContains(t, string(raw), "extensions")
}

func TestFromMillis(t *testing.T) {
	assert.True(t, FromMillis(0).IsZero())
	assert.Equal(t, "2023-11-14T22:13:20.123Z", FormatTime(FromMillis(1700000000123)))
	assert.Equal(t, "", FormatTime(time.Time{}))
}
