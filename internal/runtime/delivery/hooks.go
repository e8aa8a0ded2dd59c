package delivery

import (
	"context"
	"time"

	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/stats"
)

// BatchContext describes one buffer send to hooks.
type BatchContext struct {
	Transport  string
	Index      int
	Partitions event.Partitions
	Records    int
	Bytes      int
	Context    context.Context
	StartedAt  time.Time
	// Duration is only set in OnBatchDone and OnBatchError.
	Duration time.Duration
}

// BatchHooks defines callbacks for the buffer send lifecycle. Nil hooks are
// skipped. Hooks run on worker goroutines and must be safe for concurrent use.
type BatchHooks struct {
	OnBatchStart func(ctx BatchContext)
	OnBatchDone  func(ctx BatchContext)
	OnBatchError func(ctx BatchContext, err error)
}

// Merge combines two hook sets. The hooks from other run after those of h.
func (h BatchHooks) Merge(other BatchHooks) BatchHooks {
	return BatchHooks{
		OnBatchStart: chain(h.OnBatchStart, other.OnBatchStart),
		OnBatchDone:  chain(h.OnBatchDone, other.OnBatchDone),
		OnBatchError: chainError(h.OnBatchError, other.OnBatchError),
	}
}

func chain(a, b func(BatchContext)) func(BatchContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx BatchContext) {
		a(ctx)
		b(ctx)
	}
}

func chainError(a, b func(BatchContext, error)) func(BatchContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx BatchContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// LoggingHooks logs every send at debug level and failures at error level.
func LoggingHooks(logger logging.ServiceLogger) BatchHooks {
	fields := func(ctx BatchContext) logging.LogFields {
		f := logging.LogFields{
			"transport": ctx.Transport,
			"buffer":    ctx.Index,
			"records":   ctx.Records,
			"bytes":     ctx.Bytes,
		}
		if len(ctx.Partitions) > 0 {
			f["partitions"] = ctx.Partitions.String()
		}
		if ctx.Duration > 0 {
			f["duration_ms"] = ctx.Duration.Milliseconds()
		}
		return f
	}
	return BatchHooks{
		OnBatchStart: func(ctx BatchContext) {
			logger.Debug("Sending buffer", fields(ctx))
		},
		OnBatchDone: func(ctx BatchContext) {
			logger.Debug("Buffer sent", fields(ctx))
		},
		OnBatchError: func(ctx BatchContext, err error) {
			logger.Error("Buffer send failed", err, fields(ctx))
		},
	}
}

// Stat names recorded by StatsHooks.
const (
	StatBatchSuccess = "transport.batch.success.count"
	StatBatchError   = "transport.batch.error.count"
	StatBatchBytes   = "transport.bytes"
	StatBatchRecords = "transport.record.count"
	StatSendTime     = "transport.send.ms"
)

// StatsHooks records per-send stats into reg, tagged with the transport name.
func StatsHooks(reg *stats.Registry) BatchHooks {
	return BatchHooks{
		OnBatchDone: func(ctx BatchContext) {
			tag := stats.Tag{Name: "transport", Value: ctx.Transport}
			reg.Add(StatBatchSuccess, stats.UnitCount, 1, tag)
			reg.Add(StatBatchBytes, stats.UnitBytes, float64(ctx.Bytes), tag)
			reg.Add(StatBatchRecords, stats.UnitCount, float64(ctx.Records), tag)
			reg.Add(StatSendTime, stats.UnitMilliseconds, float64(ctx.Duration.Milliseconds()), tag)
		},
		OnBatchError: func(ctx BatchContext, _ error) {
			reg.Add(StatBatchError, stats.UnitCount, 1, stats.Tag{Name: "transport", Value: ctx.Transport})
		},
	}
}
