package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilitiesApply(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		in   Config
		want Config
	}{
		{
			name: "unlimited keeps config",
			caps: Capabilities{Name: "x", SupportsCompression: true},
			in:   Config{MaxBufferBytes: 100, Compression: CodecZstd},
			want: Config{MaxBufferBytes: 100, Compression: CodecZstd},
		},
		{
			name: "clamps unset size",
			caps: KafkaCapabilities,
			in:   Config{},
			want: Config{MaxBufferBytes: 1000000},
		},
		{
			name: "keeps smaller size",
			caps: KafkaCapabilities,
			in:   Config{MaxBufferBytes: 10},
			want: Config{MaxBufferBytes: 10},
		},
		{
			name: "clamps records",
			caps: Capabilities{MaxRecords: 500, SupportsCompression: true},
			in:   Config{MaxRecords: 1000},
			want: Config{MaxRecords: 500},
		},
		{
			name: "forces partitioning",
			caps: S3Capabilities,
			in:   Config{},
			want: Config{Partitioned: true},
		},
		{
			name: "disables compression",
			caps: StdoutCapabilities,
			in:   Config{Compression: CodecGzip},
			want: Config{Compression: CodecNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.Apply(tt.in))
		})
	}
}
