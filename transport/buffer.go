package transport

import (
	"bytes"
	"fmt"
	"io"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
)

// DefaultMaxBufferBytes bounds a buffer when no size is configured.
const DefaultMaxBufferBytes = 5 * 1024 * 1024

// BufferOptions configures a Buffer.
type BufferOptions struct {
	// MaxBytes bounds the bytes written to the sink. Zero means DefaultMaxBufferBytes.
	MaxBytes int
	// MaxRecords bounds the record count. Zero means unbounded.
	MaxRecords int
	Separator  []byte
	Codec      Codec
}

// Buffer assembles one network payload. A buffer is owned by one goroutine at
// a time and is not safe for concurrent use.
type Buffer struct {
	opts       BufferOptions
	sink       bytes.Buffer
	compressor io.WriteCloser
	records    int
	raw        int
	closed     bool
	partitions event.Partitions
}

func NewBuffer(opts BufferOptions) (*Buffer, error) {
	if err := opts.Codec.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBufferBytes
	}
	return &Buffer{opts: opts}, nil
}

// Add appends record and the separator. It fails with ErrBufferFull, leaving
// the buffer untouched, when the record would exceed a bound, and with
// ErrRecordTooLarge when the record could never fit an empty buffer.
func (b *Buffer) Add(record []byte) error {
	if b.closed {
		return sferrors.ErrBufferClosed
	}
	need := len(record) + len(b.opts.Separator)
	if need > b.opts.MaxBytes {
		return sferrors.ErrRecordTooLarge
	}
	if b.opts.MaxRecords > 0 && b.records >= b.opts.MaxRecords {
		return sferrors.ErrBufferFull
	}
	if b.sink.Len()+need > b.opts.MaxBytes {
		return sferrors.ErrBufferFull
	}

	w, err := b.writer()
	if err != nil {
		return err
	}
	if _, err := w.Write(record); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if len(b.opts.Separator) > 0 {
		if _, err := w.Write(b.opts.Separator); err != nil {
			return fmt.Errorf("write separator: %w", err)
		}
	}
	b.records++
	b.raw += need
	return nil
}

func (b *Buffer) writer() (io.Writer, error) {
	spec, ok := codecs[b.opts.Codec]
	if !ok {
		return &b.sink, nil
	}
	if b.compressor == nil {
		c, err := spec.writer(&b.sink)
		if err != nil {
			return nil, fmt.Errorf("open %s stream: %w", b.opts.Codec, err)
		}
		b.compressor = c
	}
	return b.compressor, nil
}

func (b *Buffer) IsEmpty() bool { return b.records == 0 }

// Size is the number of bytes written to the sink so far. With compression
// this lags behind until Close flushes the stream.
func (b *Buffer) Size() int { return b.sink.Len() }

// Records is the number of records added.
func (b *Buffer) Records() int { return b.records }

// RawSize is the uncompressed byte count including separators.
func (b *Buffer) RawSize() int { return b.raw }

// Close finalises the compression stream. Later calls are no-ops.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.compressor != nil {
		if err := b.compressor.Close(); err != nil {
			return fmt.Errorf("close %s stream: %w", b.opts.Codec, err)
		}
	}
	return nil
}

func (b *Buffer) Closed() bool { return b.closed }

// Clear empties the buffer for reuse. A compressed buffer with an open stream
// must be closed first.
func (b *Buffer) Clear() error {
	if b.compressor != nil && !b.closed {
		return sferrors.ErrBufferNotClosed
	}
	b.sink.Reset()
	b.compressor = nil
	b.records = 0
	b.raw = 0
	b.closed = false
	return nil
}

// Bytes returns the sink contents. Callers close the buffer first so the
// compressed stream is complete.
func (b *Buffer) Bytes() []byte { return b.sink.Bytes() }

// Decode returns the uncompressed contents of a closed buffer.
func (b *Buffer) Decode() ([]byte, error) {
	if b.compressor != nil && !b.closed {
		return nil, sferrors.ErrBufferNotClosed
	}
	if b.compressor == nil {
		return bytes.Clone(b.sink.Bytes()), nil
	}
	return b.opts.Codec.Decompress(b.sink.Bytes())
}

func (b *Buffer) Codec() Codec                 { return b.opts.Codec }
func (b *Buffer) ContentEncoding() string      { return b.opts.Codec.ContentEncoding() }
func (b *Buffer) Separator() []byte            { return b.opts.Separator }
func (b *Buffer) Partitions() event.Partitions { return b.partitions }

// SetPartitions tags the buffer with the tuple of every record it holds.
func (b *Buffer) SetPartitions(p event.Partitions) { b.partitions = p }
