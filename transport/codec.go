package transport

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names the streaming compressor a buffer writes through.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecGzip   Codec = "gzip"
	CodecZstd   Codec = "zstd"
	CodecSnappy Codec = "snappy"
	CodecLZ4    Codec = "lz4"
)

type codecSpec struct {
	encoding  string
	extension string
	writer    func(io.Writer) (io.WriteCloser, error)
	reader    func(io.Reader) (io.Reader, error)
}

var codecs = map[Codec]codecSpec{
	CodecGzip: {
		encoding:  "gzip",
		extension: ".gz",
		writer:    func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil },
		reader:    func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) },
	},
	CodecZstd: {
		encoding:  "zstd",
		extension: ".zst",
		writer:    func(w io.Writer) (io.WriteCloser, error) { return zstd.NewWriter(w) },
		reader: func(r io.Reader) (io.Reader, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		},
	},
	CodecSnappy: {
		encoding:  "x-snappy-framed",
		extension: ".sz",
		writer:    func(w io.Writer) (io.WriteCloser, error) { return snappy.NewBufferedWriter(w), nil },
		reader:    func(r io.Reader) (io.Reader, error) { return snappy.NewReader(r), nil },
	},
	CodecLZ4: {
		encoding:  "x-lz4",
		extension: ".lz4",
		writer:    func(w io.Writer) (io.WriteCloser, error) { return lz4.NewWriter(w), nil },
		reader:    func(r io.Reader) (io.Reader, error) { return lz4.NewReader(r), nil },
	},
}

// Validate reports whether c is a known codec. The empty codec means none.
func (c Codec) Validate() error {
	if c == "" || c == CodecNone {
		return nil
	}
	if _, ok := codecs[c]; !ok {
		return fmt.Errorf("unknown compression %q", string(c))
	}
	return nil
}

// Compressed reports whether c writes through a compressor.
func (c Codec) Compressed() bool {
	_, ok := codecs[c]
	return ok
}

// ContentEncoding is the HTTP Content-Encoding value for c, empty when uncompressed.
func (c Codec) ContentEncoding() string { return codecs[c].encoding }

// Extension is the file suffix for c, empty when uncompressed.
func (c Codec) Extension() string { return codecs[c].extension }

// Decompress reads the whole compressed payload.
func (c Codec) Decompress(data []byte) ([]byte, error) {
	spec, ok := codecs[c]
	if !ok {
		return bytes.Clone(data), nil
	}
	r, err := spec.reader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}
	return io.ReadAll(r)
}
