package transport

import (
	"context"
	"errors"
	"testing"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSink struct {
	Base
}

func (capturingSink) SendBatch(context.Context, *Buffer) error { return nil }

func captureBuilder(got *Config) Builder {
	return func(_ context.Context, cfg Config, _ logging.ServiceLogger) (Transport, error) {
		*got = cfg
		return capturingSink{Base: NewBase(cfg)}, nil
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.NotNil(t, reg.builders)
	assert.NotNil(t, reg.capabilities)
	assert.Empty(t, reg.Names())
}

func TestRegistryRegisterAndNames(t *testing.T) {
	reg := NewRegistry()
	var got Config
	reg.Register("zeta", captureBuilder(&got))
	reg.Register("alpha", captureBuilder(&got))

	assert.True(t, reg.Has("zeta"))
	assert.False(t, reg.Has("missing"))
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
	assert.True(t, reg.GetCapabilities("alpha").SupportsCompression)
	assert.Equal(t, "missing", reg.GetCapabilities("missing").Name)
}

func TestRegistryBuild(t *testing.T) {
	logger := logging.NewDiscardLogger()

	t.Run("unknown", func(t *testing.T) {
		_, err := NewRegistry().Build(context.Background(), Config{Type: "nope"}, logger)
		assert.ErrorIs(t, err, sferrors.ErrUnknownType)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewRegistry().Build(context.Background(), Config{}, logger)
		assert.Error(t, err)
	})

	t.Run("logger required", func(t *testing.T) {
		_, err := NewRegistry().Build(context.Background(), Config{Type: "x"}, nil)
		assert.ErrorIs(t, err, sferrors.ErrLoggerRequired)
	})

	t.Run("applies capabilities", func(t *testing.T) {
		reg := NewRegistry()
		var got Config
		reg.RegisterWithCapabilities("sns", captureBuilder(&got), SNSCapabilities)

		tr, err := reg.Build(context.Background(), Config{Type: "sns", MaxBufferBytes: 1 << 30, Compression: CodecGzip}, logger)
		require.NoError(t, err)
		assert.Equal(t, 256*1024, got.MaxBufferBytes)
		assert.Equal(t, CodecNone, got.Compression)
		assert.NotNil(t, tr)
	})

	t.Run("builder error", func(t *testing.T) {
		reg := NewRegistry()
		boom := errors.New("boom")
		reg.Register("bad", func(context.Context, Config, logging.ServiceLogger) (Transport, error) { return nil, boom })
		_, err := reg.Build(context.Background(), Config{Type: "bad"}, logger)
		assert.ErrorIs(t, err, boom)
	})
}

func TestDefaultRegistryHelpers(t *testing.T) {
	original := DefaultRegistry
	DefaultRegistry = NewRegistry()
	t.Cleanup(func() { DefaultRegistry = original })

	var got Config
	Register("one", captureBuilder(&got))
	RegisterWithCapabilities("two", captureBuilder(&got), S3Capabilities)

	_, err := Build(context.Background(), Config{Type: "two"}, logging.NewDiscardLogger())
	require.NoError(t, err)
	assert.True(t, got.Partitioned)
	assert.Equal(t, []string{"one", "two"}, DefaultRegistry.Names())
}
