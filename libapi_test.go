package shipflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlugins(t *testing.T) {
	RegisterTransports()
	plugins := Plugins()

	assert.Contains(t, plugins["deserializer"], "json")
	assert.Contains(t, plugins["serializer"], "string")
	assert.Contains(t, plugins["wrapper"], "passthrough")
	assert.Contains(t, plugins["transport"], "kafka")
	assert.Contains(t, plugins["transport"], "s3")
	assert.NotEmpty(t, plugins["operation"])
	assert.NotEmpty(t, plugins["reporter"])
}

func TestNewHandlerRequiresConfig(t *testing.T) {
	_, err := NewHandler(nil, Dependencies{})
	assert.ErrorIs(t, err, ErrConfigRequired)
}

func TestParseConfigDefaults(t *testing.T) {
	conf, err := ParseConfig(map[string]any{
		"sources": []any{map[string]any{
			"name":         "logs",
			"source_regex": ".*",
			"deserializer": map[string]any{"type": "plain"},
		}},
		"transport": map[string]any{"type": "devnull"},
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig().Serializer.Type, conf.Serializer.Type)
	assert.True(t, conf.Handler.FailOnException)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.log")
	path := filepath.Join(dir, "shipflow.yaml")
	body := "logging:\n  level: error\n" +
		"sources:\n  - name: logs\n    source_regex: \"queue\"\n    deserializer:\n      type: plain\n" +
		"serializer:\n  type: string\n" +
		"transport:\n  type: file\n  path: " + out + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	batch := Batch{SourceID: "arn:aws:sqs:eu-west-1:1:queue", Records: []Record{
		{Data: []byte("a")},
		{Data: []byte("b")},
	}}
	require.NoError(t, Run(context.Background(), path, Invocation{FunctionName: "test"}, batch))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
}

func TestRunNoSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shipflow.yaml")
	body := "logging:\n  level: error\n" +
		"sources:\n  - name: logs\n    source_regex: \"^kinesis$\"\n    deserializer:\n      type: plain\n" +
		"transport:\n  type: devnull\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	err := Run(context.Background(), path, Invocation{SourceID: "queue"}, Batch{})
	assert.True(t, errors.Is(err, ErrNoSource))
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	data, err := Marshal(payload)
	require.NoError(t, err)

	var back map[string]string
	require.NoError(t, Unmarshal(data, &back))
	assert.Equal(t, payload, back)
}
