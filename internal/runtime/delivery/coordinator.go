// Package delivery assigns serialized events to buffers and sends finished
// buffers to a transport through a bounded worker pool.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/stats"
	"github.com/drblury/shipflow/transport"
)

const tracerName = "github.com/drblury/shipflow/delivery"

// Coordinator sends buffers concurrently, at most MaxThreads at a time. A
// failed send never cancels its siblings; Wait reports every failure of the
// round at once. There is no retry: the host redrives the whole batch.
type Coordinator struct {
	transport transport.Transport
	name      string
	hooks     BatchHooks
	tracer    trace.Tracer

	mu        sync.Mutex
	group     *errgroup.Group
	attempted int
	failures  []sferrors.BufferFailure
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithHooks installs lifecycle hooks, merged after any already installed.
func WithHooks(hooks BatchHooks) Option {
	return func(c *Coordinator) { c.hooks = c.hooks.Merge(hooks) }
}

// WithName sets the transport name used in hooks, spans and errors.
func WithName(name string) Option {
	return func(c *Coordinator) { c.name = name }
}

func NewCoordinator(t transport.Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		transport: t,
		name:      fmt.Sprintf("%T", t),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver sends every buffer and blocks until all have succeeded or failed.
func (c *Coordinator) Deliver(ctx context.Context, buffers []*transport.Buffer) error {
	for _, buf := range buffers {
		c.Dispatch(ctx, buf)
	}
	return c.Wait()
}

// Dispatch hands buf to a worker and returns its 1-based index in the round.
// It blocks while every worker is busy. The caller must not touch buf again.
func (c *Coordinator) Dispatch(ctx context.Context, buf *transport.Buffer) int {
	c.mu.Lock()
	if c.group == nil {
		c.group = &errgroup.Group{}
		c.group.SetLimit(max(c.transport.MaxThreads(), 1))
	}
	c.attempted++
	index := c.attempted
	group := c.group
	c.mu.Unlock()

	group.Go(func() error {
		if err := c.send(ctx, index, buf); err != nil {
			c.record(sferrors.BufferFailure{Index: index, Partitions: buf.Partitions().String(), Err: err})
		}
		return nil
	})
	return index
}

// Wait blocks until every dispatched buffer is settled, then starts a new
// round. It returns a *errors.DeliveryError when any buffer failed.
func (c *Coordinator) Wait() error {
	c.mu.Lock()
	group := c.group
	c.mu.Unlock()
	if group != nil {
		_ = group.Wait()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	attempted, failures := c.attempted, c.failures
	c.group, c.attempted, c.failures = nil, 0, nil

	if len(failures) == 0 {
		return nil
	}
	return &sferrors.DeliveryError{Attempted: attempted, Failures: failures}
}

func (c *Coordinator) record(f sferrors.BufferFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, f)
}

func (c *Coordinator) send(ctx context.Context, index int, buf *transport.Buffer) (err error) {
	ctx, span := c.tracer.Start(ctx, "shipflow.SendBatch")
	defer span.End()

	if err := buf.Close(); err != nil {
		return err
	}

	bctx := BatchContext{
		Transport:  c.name,
		Index:      index,
		Partitions: buf.Partitions(),
		Records:    buf.Records(),
		Bytes:      buf.Size(),
		Context:    ctx,
		StartedAt:  time.Now(),
	}
	span.SetAttributes(
		attribute.String("shipflow.transport", c.name),
		attribute.Int("shipflow.buffer.index", index),
		attribute.Int("shipflow.buffer.records", bctx.Records),
		attribute.Int("shipflow.buffer.bytes", bctx.Bytes),
		attribute.String("shipflow.buffer.partitions", buf.Partitions().String()),
	)
	if c.hooks.OnBatchStart != nil {
		c.hooks.OnBatchStart(bctx)
	}

	defer func() {
		if r := recover(); r != nil {
			err = &stats.PanicError{Value: r, Stack: debug.Stack()}
		}
		bctx.Duration = time.Since(bctx.StartedAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if c.hooks.OnBatchError != nil {
				c.hooks.OnBatchError(bctx, err)
			}
			return
		}
		if c.hooks.OnBatchDone != nil {
			c.hooks.OnBatchDone(bctx)
		}
	}()

	if err := c.transport.SendBatch(ctx, buf); err != nil {
		var terr *sferrors.TransportError
		if errors.As(err, &terr) {
			return err
		}
		return sferrors.NewTransportError(c.name, err)
	}
	return buf.Clear()
}
