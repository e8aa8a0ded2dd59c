package serializers

import (
	"encoding/json"
	"testing"

	"github.com/drblury/shipflow/internal/runtime/config"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, typ string, settings map[string]any) func(any) (string, error) {
	t.Helper()
	s, err := New(config.Plugin{Type: typ, Settings: settings})
	require.NoError(t, err)
	return s.Serialize
}

func TestNewUnknown(t *testing.T) {
	_, err := New(config.Plugin{Type: "avro"})
	assert.ErrorIs(t, err, sferrors.ErrUnknownType)
	assert.Equal(t, []string{"json", "protojson", "string"}, Types())
}

func TestString(t *testing.T) {
	ser := build(t, "string", nil)

	out, err := ser("foo")
	require.NoError(t, err)
	assert.Equal(t, "foo", out)

	_, err = ser(map[string]any{"a": 1})
	var serr *sferrors.SerializationError
	assert.ErrorAs(t, err, &serr)
	assert.True(t, sferrors.IsDomain(err))
}

func TestJSON(t *testing.T) {
	ser := build(t, "json", nil)
	out, err := ser(map[string]any{"a": json.Number("1"), "b": []any{"x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":["x"]}`, out)

	pretty := build(t, "json", map[string]any{"indent": "  "})
	out, err = pretty(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, out)
	assert.Contains(t, out, "\n  ")
}

func TestProtoJSON(t *testing.T) {
	ser := build(t, "protojson", nil)
	out, err := ser(map[string]any{"n": json.Number("12"), "f": json.Number("1.5"), "nested": map[string]any{"ok": true}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":12,"f":1.5,"nested":{"ok":true}}`, out)

	_, err = ser("not an object")
	assert.True(t, sferrors.IsDomain(err))
}
