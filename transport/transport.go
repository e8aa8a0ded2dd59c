// Package transport defines the sink contract, the size-bounded buffer sinks
// receive, and the name-keyed registry sink packages register with. Each sink
// lives in its own sub-package and registers itself from Register.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/logging"
)

// DefaultThreads is the worker pool size when none is configured.
const DefaultThreads = 5

// Transport delivers finished buffers to one sink.
type Transport interface {
	NewBuffer() (*Buffer, error)
	// SendBatch delivers buf. The buffer is closed by the caller beforehand.
	SendBatch(ctx context.Context, buf *Buffer) error
	MaxThreads() int
	Close() error
}

// Partitioner is implemented by sinks that decide partitioning themselves.
// Its answer overrides the configured flag.
type Partitioner interface {
	Partitioned() bool
}

// RecordEncoder is implemented by sinks that frame each record themselves,
// for example by prefixing a bulk action line.
type RecordEncoder interface {
	EncodeRecord(ev *event.Event, serialized string) ([]byte, error)
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger logging.ServiceLogger) (Transport, error)

// Config is the sink-independent part of transport configuration. Sink
// specific keys stay in Settings and are decoded by the sink with Decode.
type Config struct {
	Type           string         `mapstructure:"type"`
	Threads        int            `mapstructure:"threads"`
	MaxBufferBytes int            `mapstructure:"max_buffer_size"`
	MaxRecords     int            `mapstructure:"max_records"`
	Compression    Codec          `mapstructure:"compression"`
	Separator      *string        `mapstructure:"separator"`
	Partitioned    bool           `mapstructure:"partitioned"`
	Settings       map[string]any `mapstructure:",remain"`
}

// Validate reports every problem with the config at once.
func (c Config) Validate() error {
	var errs []error
	if c.Type == "" {
		errs = append(errs, errors.New("transport type is required"))
	}
	if c.Threads < 0 {
		errs = append(errs, fmt.Errorf("threads must not be negative, got %d", c.Threads))
	}
	if c.MaxBufferBytes < 0 {
		errs = append(errs, fmt.Errorf("max_buffer_size must not be negative, got %d", c.MaxBufferBytes))
	}
	if c.MaxRecords < 0 {
		errs = append(errs, fmt.Errorf("max_records must not be negative, got %d", c.MaxRecords))
	}
	if err := c.Compression.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// BufferOptions derives buffer settings. The separator defaults to a newline.
func (c Config) BufferOptions() BufferOptions {
	sep := []byte("\n")
	if c.Separator != nil {
		sep = []byte(*c.Separator)
	}
	codec := c.Compression
	if codec == "" {
		codec = CodecNone
	}
	return BufferOptions{
		MaxBytes:   c.MaxBufferBytes,
		MaxRecords: c.MaxRecords,
		Separator:  sep,
		Codec:      codec,
	}
}

// Decode copies the sink specific settings into out.
func (c Config) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToWeakSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(c.Settings); err != nil {
		return fmt.Errorf("%s settings: %w", c.Type, err)
	}
	return nil
}

// Base implements the config driven part of Transport. Sinks embed it and
// provide SendBatch.
type Base struct {
	cfg Config
}

func NewBase(cfg Config) Base { return Base{cfg: cfg} }

func (b Base) NewBuffer() (*Buffer, error) { return NewBuffer(b.cfg.BufferOptions()) }

func (b Base) MaxThreads() int {
	if b.cfg.Threads <= 0 {
		return DefaultThreads
	}
	return b.cfg.Threads
}

func (b Base) Partitioned() bool { return b.cfg.Partitioned }
func (b Base) Close() error      { return nil }
func (b Base) Config() Config    { return b.cfg }

// IsPartitioned reports whether t needs one buffer per partition tuple.
func IsPartitioned(t Transport) bool {
	if p, ok := t.(Partitioner); ok {
		return p.Partitioned()
	}
	return false
}
