// Package handler runs one invocation: it matches the source, pushes every
// record through the configured stages and delivers the survivors.
package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/shipflow/internal/runtime/config"
	"github.com/drblury/shipflow/internal/runtime/delivery"
	"github.com/drblury/shipflow/internal/runtime/deserializers"
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/ids"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/monitoring"
	"github.com/drblury/shipflow/internal/runtime/operations"
	"github.com/drblury/shipflow/internal/runtime/pipeline"
	"github.com/drblury/shipflow/internal/runtime/serializers"
	"github.com/drblury/shipflow/internal/runtime/stats"
	"github.com/drblury/shipflow/internal/runtime/wrappers"
	"github.com/drblury/shipflow/transport"
)

const tracerName = "github.com/drblury/shipflow/handler"

// Invocation stat names, each tagged with the source name.
const (
	StatEventCount = "event.count"
	StatSpoutLag   = "spout.lag.ms"
	StatSourceLag  = "source.lag.ms"
	StatRuntime    = "runtime.ns"

	StatDecompressFailed = "decompress.error.count"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Invocation identifies the function run and the upstream source of a batch.
type Invocation struct {
	FunctionName    string
	FunctionVersion string
	FunctionARN     string
	RequestID       string
	SourceID        string
}

// Record is one raw upstream record.
type Record struct {
	Data        []byte
	ArrivalTime time.Time
}

// Dependencies holds the optional collaborators of a Handler. Leave fields
// nil to use the defaults.
type Dependencies struct {
	Logger     logging.ServiceLogger
	Transports *transport.Registry
	// Reporters are used in addition to the configured ones.
	Reporters  []monitoring.Reporter
	Now        func() time.Time
}

type source struct {
	name         string
	match        *regexp.Regexp
	contains     []string
	patterns     []*regexp.Regexp
	deserializer deserializers.Deserializer
	stages       []pipeline.Stage
}

// Handler is built once per process and runs invocations one at a time.
type Handler struct {
	conf *config.Config
	deps Dependencies

	mu          sync.Mutex
	initialized bool
	logger      logging.ServiceLogger
	sources     []*source
	wrapper     pipeline.Wrapper
	serializer  pipeline.Serializer
	transport   transport.Transport
	monitor     *monitoring.Monitor
	sampler     *monitoring.RuntimeSampler
	reg         *stats.Registry
	tracer      trace.Tracer
}

// New validates conf and returns an uninitialised handler.
func New(conf *config.Config, deps Dependencies) (*Handler, error) {
	if conf == nil {
		return nil, sferrors.ErrConfigRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Logger == nil {
		logger, err := logging.New(nil, conf.Logging.Level, conf.Logging.Format)
		if err != nil {
			return nil, err
		}
		deps.Logger = logger
	}
	if deps.Transports == nil {
		deps.Transports = transport.DefaultRegistry
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{
		conf:   conf,
		deps:   deps,
		logger: deps.Logger,
		reg:    stats.NewRegistry(),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Init builds sources, wrapper, serializer, transport and reporters. It runs
// once; later calls are no-ops.
func (h *Handler) Init(ctx context.Context, inv Invocation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.init(ctx, inv)
}

func (h *Handler) init(ctx context.Context, inv Invocation) error {
	if h.initialized {
		return nil
	}

	identity := logging.Identity{
		FunctionName:    inv.FunctionName,
		FunctionVersion: inv.FunctionVersion,
		Alias:           logging.AliasFromARN(inv.FunctionARN),
	}
	logger := identity.Apply(h.deps.Logger)

	sources, err := buildSources(h.conf.Sources)
	if err != nil {
		return err
	}
	wrapper, err := wrappers.New(h.conf.Wrapper)
	if err != nil {
		return err
	}
	serializer, err := serializers.New(h.conf.Serializer)
	if err != nil {
		return err
	}
	reporters, err := monitoring.Build(h.conf.Reporters, logger)
	if err != nil {
		return err
	}
	t, err := h.deps.Transports.Build(ctx, h.conf.Transport, logger)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	h.logger = logger
	h.sources = sources
	h.wrapper = wrapper
	h.serializer = serializer
	h.transport = t
	h.monitor = monitoring.New(
		monitoring.WithTags(
			stats.Tag{Name: "functionName", Value: inv.FunctionName},
			stats.Tag{Name: "functionVersion", Value: inv.FunctionVersion},
		),
		monitoring.WithReporters(append(reporters, h.deps.Reporters...)...),
	)
	h.sampler = monitoring.NewRuntimeSampler()
	h.initialized = true

	logger.Info("Handler initialised", logging.LogFields{
		"sources":   len(sources),
		"transport": h.conf.Transport.Type,
		"reporters": len(reporters) + len(h.deps.Reporters),
	})
	return nil
}

func buildSources(cfgs []config.Source) ([]*source, error) {
	out := make([]*source, 0, len(cfgs))
	for _, cfg := range cfgs {
		src := &source{name: cfg.Name, contains: cfg.ContainsStrings}
		var err error
		if src.match, err = regexp.Compile(cfg.SourceRegex); err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
		}
		for _, p := range cfg.RegexPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
			}
			src.patterns = append(src.patterns, re)
		}
		if src.deserializer, err = deserializers.New(cfg.Deserializer); err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
		}
		if src.stages, err = operations.Build(cfg.Operations); err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
		}
		out = append(out, src)
	}
	return out, nil
}

// Stats returns the registry of the last invocation.
func (h *Handler) Stats() *stats.Registry { return h.reg }

// Close releases the transport.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.transport == nil {
		return nil
	}
	return h.transport.Close()
}

func (h *Handler) findSource(id string) (*source, error) {
	for _, src := range h.sources {
		if src.match.MatchString(id) {
			return src, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", sferrors.ErrNoSource, id)
}

// Process runs one batch to completion. With fail_on_exception disabled a
// failed batch is logged and reported as success.
func (h *Handler) Process(ctx context.Context, inv Invocation, records iter.Seq[Record]) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.init(ctx, inv); err != nil {
		return err
	}
	inv.RequestID = ids.RequestID(inv.RequestID)

	ctx, span := h.tracer.Start(ctx, "shipflow.Process", trace.WithAttributes(
		attribute.String("shipflow.source_id", inv.SourceID),
		attribute.String("shipflow.request_id", inv.RequestID),
	))
	defer span.End()

	err := h.process(ctx, inv, records)
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.logger.Error("Function failure occurred", err, logging.LogFields{"request_id": inv.RequestID})
	if h.conf.Handler.FailOnException {
		return err
	}
	h.logger.Warn("Unrecoverable error ignored, batch reported as processed", logging.LogFields{"request_id": inv.RequestID})
	return nil
}

type tally struct {
	count         int
	oldestArrival int64
	oldestEvent   int64
}

func (h *Handler) process(ctx context.Context, inv Invocation, records iter.Seq[Record]) error {
	h.reg.Reset()
	start := h.monitor.Begin()

	src, err := h.findSource(inv.SourceID)
	if err != nil {
		return err
	}
	logger := h.logger.With(logging.LogFields{"request_id": inv.RequestID, "source": src.name})

	begin := h.deps.Now().UnixMilli()
	t := &tally{oldestArrival: begin, oldestEvent: begin}
	defer h.writeStats(ctx, logger, src.name, t, start)

	ictx := &event.InvocationContext{
		FunctionName:    inv.FunctionName,
		FunctionVersion: inv.FunctionVersion,
		FunctionARN:     inv.FunctionARN,
		RequestID:       inv.RequestID,
		SourceID:        inv.SourceID,
	}

	coord := delivery.NewCoordinator(h.transport,
		delivery.WithName(h.conf.Transport.Type),
		delivery.WithHooks(delivery.LoggingHooks(logger).Merge(delivery.StatsHooks(h.reg))),
	)
	sender := delivery.NewSender(h.transport, coord, h.reg, logger)
	serializer := pipeline.NewSerializerStage(h.reg, h.wrapper, h.serializer, pipeline.SerializationPolicy(h.conf.Handler.SerializationFailure))

	events := pipeline.Chain(h.reg, src.stages, h.deserialize(src, ictx, records, t))
	for ev, err := range events {
		if err == nil {
			err = h.ship(ctx, serializer, sender, ev)
		}
		if err != nil {
			return errors.Join(err, coord.Wait())
		}
	}
	return sender.Flush(ctx)
}

func (h *Handler) ship(ctx context.Context, serializer *pipeline.SerializerStage, sender *delivery.Sender, ev *event.Event) error {
	ok, err := serializer.Serialize(ev)
	if err != nil || !ok {
		return err
	}
	return sender.Add(ctx, ev)
}

// deserialize yields the deserialized events of a batch. Records caught by the
// source's raw filters are skipped; records that fail to decode are dropped
// and counted by the deserializer stat.
func (h *Handler) deserialize(src *source, ictx *event.InvocationContext, records iter.Seq[Record], t *tally) iter.Seq2[*event.Event, error] {
	decode := stats.Monitor(h.reg, "deserializer", func(ev *event.Event) (*event.Event, error) {
		p, err := src.deserializer.Deserialize(ev.Raw())
		if err != nil {
			return nil, err
		}
		ev.SetPayload(p)
		return ev, nil
	})

	return func(yield func(*event.Event, error) bool) {
		for rec := range records {
			t.count++
			data := rec.Data
			if h.conf.Handler.DecompressGzip && bytes.HasPrefix(data, gzipMagic) {
				inflated, err := transport.CodecGzip.Decompress(data)
				if err != nil {
					h.logger.Warn("Dropping record that failed to inflate", logging.LogFields{"error": err.Error()})
					h.reg.Add(StatDecompressFailed, stats.UnitCount, 1, stats.Tag{Name: "source", Value: src.name})
					continue
				}
				data = inflated
			}
			if src.skip(data) {
				continue
			}

			arrival := rec.ArrivalTime
			if arrival.IsZero() {
				arrival = h.deps.Now()
			}
			ev, ok, err := decode(event.New(data, arrival, ictx))
			if err != nil {
				yield(nil, fmt.Errorf("deserializer: %w", err))
				return
			}
			if !ok {
				continue
			}
			t.observe(ev)
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// skip reports whether raw contains one of the excluded strings or matches
// one of the excluded patterns.
func (s *source) skip(raw []byte) bool {
	if len(s.contains) == 0 && len(s.patterns) == 0 {
		return false
	}
	str := string(raw)
	for _, c := range s.contains {
		if strings.Contains(str, c) {
			return true
		}
	}
	for _, p := range s.patterns {
		if p.MatchString(str) {
			return true
		}
	}
	return false
}

func (t *tally) observe(ev *event.Event) {
	t.oldestArrival = min(t.oldestArrival, ev.ArrivalTime())
	ts, ok := ev.EventTime()
	if !ok {
		ts = ev.ArrivalTime()
	}
	t.oldestEvent = min(t.oldestEvent, ts)
}

func (h *Handler) writeStats(ctx context.Context, logger logging.ServiceLogger, name string, t *tally, start time.Time) {
	now := h.deps.Now().UnixMilli()
	tag := stats.Tag{Name: "source", Value: name}
	h.reg.Set(StatEventCount, stats.UnitCount, float64(t.count), tag)
	h.reg.Set(StatSpoutLag, stats.UnitMilliseconds, float64(now-t.oldestArrival), tag)
	h.reg.Set(StatSourceLag, stats.UnitMilliseconds, float64(now-t.oldestEvent), tag)
	h.reg.Set(StatRuntime, stats.UnitNone, float64(time.Since(start).Nanoseconds()), tag)

	if err := h.monitor.Write(ctx, h.reg); err != nil {
		logger.Error("Failed to report stats", err, nil)
	}
	logger.Debug("Runtime usage", h.sampler.Sample().Fields())
}
