package transport

// Capabilities describes the limits and features of a sink.
type Capabilities struct {
	Name string

	// MaxPayloadBytes is the largest request the sink accepts (0 = unlimited).
	// Buffers are never configured larger than this.
	MaxPayloadBytes int

	// MaxRecords is the largest record count per request (0 = unlimited).
	MaxRecords int

	// RequiresPartitioning forces one buffer per partition tuple.
	RequiresPartitioning bool

	// SupportsCompression reports whether the sink accepts compressed payloads.
	// When false any configured compression is switched off.
	SupportsCompression bool
}

// Apply clamps cfg to the sink's limits.
func (c Capabilities) Apply(cfg Config) Config {
	if c.MaxPayloadBytes > 0 && (cfg.MaxBufferBytes <= 0 || cfg.MaxBufferBytes > c.MaxPayloadBytes) {
		cfg.MaxBufferBytes = c.MaxPayloadBytes
	}
	if c.MaxRecords > 0 && (cfg.MaxRecords <= 0 || cfg.MaxRecords > c.MaxRecords) {
		cfg.MaxRecords = c.MaxRecords
	}
	if c.RequiresPartitioning {
		cfg.Partitioned = true
	}
	if !c.SupportsCompression && cfg.Compression.Compressed() {
		cfg.Compression = CodecNone
	}
	return cfg
}

// Predefined capability sets for the built-in sinks.
var (
	StdoutCapabilities = Capabilities{Name: "stdout"}

	DevNullCapabilities = Capabilities{Name: "devnull", SupportsCompression: true}

	FileCapabilities = Capabilities{Name: "file", SupportsCompression: true}

	ChannelCapabilities = Capabilities{Name: "channel", SupportsCompression: true}

	HTTPCapabilities = Capabilities{Name: "http", SupportsCompression: true}

	// KafkaCapabilities stays under the default broker message.max.bytes.
	KafkaCapabilities = Capabilities{Name: "kafka", MaxPayloadBytes: 1000000, SupportsCompression: true}

	RabbitMQCapabilities = Capabilities{Name: "rabbitmq", SupportsCompression: true}

	NATSCapabilities = Capabilities{Name: "nats", MaxPayloadBytes: 1024 * 1024, SupportsCompression: true}

	JetStreamCapabilities = Capabilities{Name: "jetstream", MaxPayloadBytes: 1024 * 1024, SupportsCompression: true}

	// SNS and SQS cap a message at 256 KiB and carry text bodies only.
	SNSCapabilities = Capabilities{Name: "sns", MaxPayloadBytes: 256 * 1024}
	SQSCapabilities = Capabilities{Name: "sqs", MaxPayloadBytes: 256 * 1024}

	S3Capabilities = Capabilities{Name: "s3", RequiresPartitioning: true, SupportsCompression: true}

	OpenSearchCapabilities = Capabilities{Name: "opensearch", MaxPayloadBytes: 10 * 1024 * 1024, SupportsCompression: true}
)
