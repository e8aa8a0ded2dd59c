package shipflow

import (
	"context"

	configpkg "github.com/drblury/shipflow/internal/runtime/config"
	"github.com/drblury/shipflow/internal/runtime/deserializers"
	errspkg "github.com/drblury/shipflow/internal/runtime/errors"
	eventpkg "github.com/drblury/shipflow/internal/runtime/event"
	handlerpkg "github.com/drblury/shipflow/internal/runtime/handler"
	idspkg "github.com/drblury/shipflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/shipflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/monitoring"
	"github.com/drblury/shipflow/internal/runtime/operations"
	"github.com/drblury/shipflow/internal/runtime/serializers"
	statspkg "github.com/drblury/shipflow/internal/runtime/stats"
	"github.com/drblury/shipflow/internal/runtime/wrappers"
	transportpkg "github.com/drblury/shipflow/transport"
	"github.com/drblury/shipflow/transport/transports"
)

type (
	Config         = configpkg.Config
	SourceConfig   = configpkg.Source
	PluginConfig   = configpkg.Plugin
	ReporterConfig = configpkg.Reporter
	StatFilter     = configpkg.StatFilter

	Handler      = handlerpkg.Handler
	Dependencies = handlerpkg.Dependencies
	Invocation   = handlerpkg.Invocation
	Record       = handlerpkg.Record
	Batch        = handlerpkg.Batch

	Event             = eventpkg.Event
	InvocationContext = eventpkg.InvocationContext
	Partition         = eventpkg.Partition
	Partitions        = eventpkg.Partitions

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	Stat          = statspkg.Stat
	StatTag       = statspkg.Tag
	StatsRegistry = statspkg.Registry
	Reporter      = monitoring.Reporter

	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
	Buffer                = transportpkg.Buffer
	Codec                 = transportpkg.Codec

	OperationError       = errspkg.OperationError
	FieldNotFoundError   = errspkg.FieldNotFoundError
	DeserializationError = errspkg.DeserializationError
	SerializationError   = errspkg.SerializationError
	TransportError       = errspkg.TransportError
	DeliveryError        = errspkg.DeliveryError
	BufferFailure        = errspkg.BufferFailure
)

var (
	DefaultConfig  = configpkg.Default
	LoadConfig     = configpkg.Load
	ParseConfig    = configpkg.Parse
	ResolveConfig  = configpkg.Resolve
	ValidateConfig = configpkg.ValidateConfig

	NewHandler  = handlerpkg.New
	DecodeEvent = handlerpkg.DecodeEvent

	// RegisterTransports registers every built-in sink with DefaultTransportRegistry.
	RegisterTransports       = transports.RegisterAll
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	NewTransportRegistry     = transportpkg.NewRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	NewTransportBase         = transportpkg.NewBase

	NewLogger            = loggingpkg.New
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewDiscardLogger     = loggingpkg.NewDiscardLogger

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	CreateULID = idspkg.CreateULID
	IsDomain   = errspkg.IsDomain

	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired
	ErrTransportRequired = errspkg.ErrTransportRequired
	ErrNoSource          = errspkg.ErrNoSource
	ErrBufferFull        = errspkg.ErrBufferFull
	ErrBufferClosed      = errspkg.ErrBufferClosed
	ErrRecordTooLarge    = errspkg.ErrRecordTooLarge
	ErrUnknownType       = errspkg.ErrUnknownType
)

// Compression codecs accepted by TransportConfig.Compression.
const (
	CodecNone   = transportpkg.CodecNone
	CodecGzip   = transportpkg.CodecGzip
	CodecZstd   = transportpkg.CodecZstd
	CodecSnappy = transportpkg.CodecSnappy
	CodecLZ4    = transportpkg.CodecLZ4
)

// Plugins lists the registered type names per pluggable concern.
func Plugins() map[string][]string {
	return map[string][]string{
		"deserializer": deserializers.Types(),
		"operation":    operations.Types(),
		"wrapper":      wrappers.Types(),
		"serializer":   serializers.Types(),
		"reporter":     monitoring.Types(),
		"transport":    transportpkg.DefaultRegistry.Names(),
	}
}

// Run loads the config at path, processes one batch and closes the handler.
// It is meant for one-shot use; long-lived hosts should keep a Handler.
func Run(ctx context.Context, path string, inv Invocation, batch Batch) error {
	conf, err := configpkg.Load(path)
	if err != nil {
		return err
	}
	RegisterTransports()
	h, err := handlerpkg.New(conf, handlerpkg.Dependencies{})
	if err != nil {
		return err
	}
	defer h.Close()
	if inv.SourceID == "" {
		inv.SourceID = batch.SourceID
	}
	return h.Process(ctx, inv, batch.All())
}
