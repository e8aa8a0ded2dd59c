// Package io provides the local sinks: file appends buffers to a file,
// stdout writes decoded buffers to standard output and devnull discards them.
package io

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
)

// Names used to register the sinks.
const (
	FileName    = "file"
	StdoutName  = "stdout"
	DevNullName = "devnull"
)

// DefaultFilePath is the default file path if none is specified.
const DefaultFilePath = "shipflow.log"

// Stdout is where the stdout sink writes. Tests replace it.
var Stdout io.Writer = os.Stdout

type fileSettings struct {
	Path string `mapstructure:"path"`
}

// Register registers the local sinks with the default registry.
func Register() {
	transport.RegisterWithCapabilities(FileName, BuildFile, transport.FileCapabilities)
	transport.RegisterWithCapabilities(StdoutName, BuildStdout, transport.StdoutCapabilities)
	transport.RegisterWithCapabilities(DevNullName, BuildDevNull, transport.DevNullCapabilities)
}

// Writer writes every buffer to an io.Writer. Writes are serialised so
// concurrent workers never interleave buffers.
type Writer struct {
	transport.Base
	name   string
	mu     sync.Mutex
	w      io.Writer
	decode bool
	closer io.Closer
}

// NewWriter returns a sink writing to w. With decode set compressed buffers
// are inflated before they are written.
func NewWriter(cfg transport.Config, name string, w io.Writer, decode bool) *Writer {
	return &Writer{Base: transport.NewBase(cfg), name: name, w: w, decode: decode}
}

func (s *Writer) SendBatch(_ context.Context, buf *transport.Buffer) error {
	data := buf.Bytes()
	if s.decode {
		var err error
		if data, err = buf.Decode(); err != nil {
			return sferrors.NewTransportError(s.name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return sferrors.NewTransportError(s.name, err)
	}
	return nil
}

func (s *Writer) Close() error {
	if s.closer == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closer.Close()
}

// BuildFile opens the configured file for appending.
func BuildFile(_ context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	var s fileSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, err
	}
	if s.Path == "" {
		s.Path = DefaultFilePath
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	logger.Debug("Opened output file", logging.LogFields{"path": s.Path})

	w := NewWriter(cfg, FileName, f, false)
	w.closer = f
	return w, nil
}

// BuildStdout writes decoded buffers to Stdout.
func BuildStdout(_ context.Context, cfg transport.Config, _ logging.ServiceLogger) (transport.Transport, error) {
	if Stdout == nil {
		return nil, errors.New("stdout: no writer")
	}
	return NewWriter(cfg, StdoutName, Stdout, true), nil
}

// BuildDevNull discards every buffer.
func BuildDevNull(_ context.Context, cfg transport.Config, _ logging.ServiceLogger) (transport.Transport, error) {
	return NewWriter(cfg, DevNullName, io.Discard, false), nil
}
