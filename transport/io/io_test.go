package io

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func closedBuffer(t *testing.T, tr transport.Transport, records ...string) *transport.Buffer {
	t.Helper()
	buf, err := tr.NewBuffer()
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, buf.Add([]byte(r)))
	}
	require.NoError(t, buf.Close())
	return buf
}

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()
	assert.Equal(t, []string{"devnull", "file", "stdout"}, transport.DefaultRegistry.Names())
	assert.False(t, transport.DefaultRegistry.GetCapabilities(StdoutName).SupportsCompression)
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.log")
	cfg := transport.Config{Type: FileName, Settings: map[string]any{"path": path}}

	tr, err := BuildFile(context.Background(), cfg, logging.NewDiscardLogger())
	require.NoError(t, err)
	require.NoError(t, tr.SendBatch(context.Background(), closedBuffer(t, tr, "a", "b")))
	require.NoError(t, tr.SendBatch(context.Background(), closedBuffer(t, tr, "c")))
	require.NoError(t, tr.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(data))
}

func TestFileSinkConcurrentBuffersDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	tr, err := BuildFile(context.Background(), transport.Config{Type: FileName, Settings: map[string]any{"path": path}}, logging.NewDiscardLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		buf := closedBuffer(t, tr, "xxxx", "yyyy")
		go func() {
			defer wg.Done()
			assert.NoError(t, tr.SendBatch(context.Background(), buf))
		}()
	}
	wg.Wait()
	require.NoError(t, tr.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("xxxx\nyyyy\n"), 8), data)
}

func TestStdoutSinkDecodes(t *testing.T) {
	var out bytes.Buffer
	original := Stdout
	Stdout = &out
	t.Cleanup(func() { Stdout = original })

	tr, err := BuildStdout(context.Background(), transport.Config{Type: StdoutName, Compression: transport.CodecSnappy}, logging.NewDiscardLogger())
	require.NoError(t, err)
	require.NoError(t, tr.SendBatch(context.Background(), closedBuffer(t, tr, "hello")))
	assert.Equal(t, "hello\n", out.String())
}

func TestDevNull(t *testing.T) {
	tr, err := BuildDevNull(context.Background(), transport.Config{Type: DevNullName}, logging.NewDiscardLogger())
	require.NoError(t, err)
	assert.NoError(t, tr.SendBatch(context.Background(), closedBuffer(t, tr, "gone")))
	assert.NoError(t, tr.Close())
}

func TestWriterFailure(t *testing.T) {
	w := NewWriter(transport.Config{Type: "custom"}, "custom", failingWriter{}, false)
	err := w.SendBatch(context.Background(), closedBuffer(t, w, "x"))

	var terr *sferrors.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "custom", terr.Transport)
}
