package deserializers

import (
	"testing"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownType(t *testing.T) {
	_, err := New(config.Plugin{Type: "avro"})
	assert.ErrorIs(t, err, sferrors.ErrUnknownType)
	assert.Equal(t, []string{"json", "plain", "regex"}, Types())
}

func TestPlain(t *testing.T) {
	d, err := New(config.Plugin{Type: "plain"})
	require.NoError(t, err)

	p, err := d.Deserialize([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", p.Payload())
}

func TestJSON(t *testing.T) {
	d, err := New(config.Plugin{Type: "json"})
	require.NoError(t, err)

	p, err := d.Deserialize([]byte(`{"a":{"b":"c"},"ts":1700000000}`))
	require.NoError(t, err)
	v, err := p.GetFieldAsString("$.a.b")
	require.NoError(t, err)
	assert.Equal(t, "c", v)

	for _, bad := range []string{`not json`, `[1,2]`, `"str"`} {
		_, err := d.Deserialize([]byte(bad))
		var de *sferrors.DeserializationError
		assert.ErrorAs(t, err, &de, bad)
	}
}

func TestJSONNestedFields(t *testing.T) {
	d, err := New(config.Plugin{Type: "json", Settings: map[string]any{
		"nested_field_configs": []any{
			map[string]any{"field": "message", "prefix_field": "message_prefix"},
			map[string]any{"field": "other"},
		},
	}})
	require.NoError(t, err)

	p, err := d.Deserialize([]byte(`{"message":"INFO app: {\"user\":\"bob\"}","other":"no json here"}`))
	require.NoError(t, err)

	user, err := p.GetFieldAsString("message.user")
	require.NoError(t, err)
	assert.Equal(t, "bob", user)

	prefix, err := p.GetFieldAsString("message_prefix")
	require.NoError(t, err)
	assert.Equal(t, "INFO app: ", prefix)

	other, err := p.GetFieldAsString("other")
	require.NoError(t, err)
	assert.Equal(t, "no json here", other)
}

func TestJSONRootOverride(t *testing.T) {
	d, err := New(config.Plugin{Type: "json", Settings: map[string]any{"root_node_override_path": "$.detail"}})
	require.NoError(t, err)

	p, err := d.Deserialize([]byte(`{"detail":{"x":"1"},"meta":"m"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": "1"}, p.Payload())

	_, err = d.Deserialize([]byte(`{"meta":"m"}`))
	assert.True(t, sferrors.IsDomain(err))
}

func TestJSONRejectsBadNestedConfig(t *testing.T) {
	_, err := New(config.Plugin{Type: "json", Settings: map[string]any{
		"nested_field_configs": []any{map[string]any{"prefix_field": "p"}},
	}})
	assert.Error(t, err)
}

func TestRegex(t *testing.T) {
	d, err := New(config.Plugin{Type: "regex", Settings: map[string]any{
		"regex": `(\w+) (\d+) (true|false)`,
		"fields": []any{
			map[string]any{"name": "word"},
			map[string]any{"name": "num", "type": "number"},
			map[string]any{"name": "flag", "type": "boolean"},
		},
	}})
	require.NoError(t, err)

	p, err := d.Deserialize([]byte("hello 42 true"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"word": "hello", "num": 42.0, "flag": true}, p.Payload())

	_, err = d.Deserialize([]byte("hello 42 true trailing"))
	assert.True(t, sferrors.IsDomain(err))
}

func TestRegexConfigErrors(t *testing.T) {
	_, err := New(config.Plugin{Type: "regex"})
	assert.Error(t, err)
	_, err = New(config.Plugin{Type: "regex", Settings: map[string]any{"regex": "("}})
	assert.Error(t, err)
	_, err = New(config.Plugin{Type: "regex", Settings: map[string]any{
		"regex":  ".*",
		"fields": []any{map[string]any{"name": "x", "type": "date"}},
	}})
	assert.Error(t, err)
}
