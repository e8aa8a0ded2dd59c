package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/internal/runtime/stats"
	"github.com/drblury/shipflow/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	transport.Base
	failOn      string
	sinkErr     error
	delay       time.Duration
	partitioned bool

	mu       sync.Mutex
	sent     []string
	attempts []string

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFake(cfg transport.Config) *fakeTransport {
	return &fakeTransport{Base: transport.NewBase(cfg)}
}

func (f *fakeTransport) Partitioned() bool { return f.partitioned }

func (f *fakeTransport) SendBatch(_ context.Context, buf *transport.Buffer) error {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(f.delay)

	decoded, err := buf.Decode()
	if err != nil {
		return err
	}
	body := string(decoded)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, body)
	if f.failOn != "" && body == f.failOn {
		if f.sinkErr != nil {
			return f.sinkErr
		}
		return errors.New("sink unavailable")
	}
	f.sent = append(f.sent, body)
	return nil
}

func newBufferWith(t *testing.T, tr transport.Transport, records ...string) *transport.Buffer {
	t.Helper()
	buf, err := tr.NewBuffer()
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, buf.Add([]byte(r)))
	}
	return buf
}

func TestCoordinatorFailureDoesNotCancelSiblings(t *testing.T) {
	tr := newFake(transport.Config{Threads: 2})
	tr.failOn = "b\n"
	tr.delay = 5 * time.Millisecond

	coord := NewCoordinator(tr, WithName("fake"))
	err := coord.Deliver(context.Background(), []*transport.Buffer{
		newBufferWith(t, tr, "a"),
		newBufferWith(t, tr, "b"),
		newBufferWith(t, tr, "c"),
	})

	var derr *sferrors.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 3, derr.Attempted)
	require.Len(t, derr.Failures, 1)
	assert.Equal(t, 2, derr.Failures[0].Index)

	var terr *sferrors.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "fake", terr.Transport)

	assert.ElementsMatch(t, []string{"a\n", "b\n", "c\n"}, tr.attempts)
	assert.ElementsMatch(t, []string{"a\n", "c\n"}, tr.sent)
}

func TestCoordinatorKeepsSinkTransportError(t *testing.T) {
	tr := newFake(transport.Config{Threads: 1})
	tr.failOn = "a\n"
	tr.sinkErr = sferrors.NewTransportError("s3", errors.New("access denied"))

	err := NewCoordinator(tr, WithName("s3")).Deliver(context.Background(), []*transport.Buffer{
		newBufferWith(t, tr, "a"),
	})
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(err.Error(), "transport s3:"), err.Error())

	var terr *sferrors.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "access denied", terr.Err.Error())
}

func TestCoordinatorBoundsConcurrency(t *testing.T) {
	tr := newFake(transport.Config{Threads: 2})
	tr.delay = 10 * time.Millisecond

	var bufs []*transport.Buffer
	for range 8 {
		bufs = append(bufs, newBufferWith(t, tr, "x"))
	}
	require.NoError(t, NewCoordinator(tr).Deliver(context.Background(), bufs))

	assert.LessOrEqual(t, tr.maxInflight.Load(), int32(2))
	assert.Len(t, tr.sent, 8)
}

func TestCoordinatorClearsSentBuffers(t *testing.T) {
	tr := newFake(transport.Config{Threads: 1, Compression: transport.CodecGzip})
	buf := newBufferWith(t, tr, "foo")

	require.NoError(t, NewCoordinator(tr).Deliver(context.Background(), []*transport.Buffer{buf}))
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, []string{"foo\n"}, tr.sent)
}

func TestCoordinatorStartsNewRoundAfterWait(t *testing.T) {
	tr := newFake(transport.Config{Threads: 1})
	tr.failOn = "bad\n"
	coord := NewCoordinator(tr)

	coord.Dispatch(context.Background(), newBufferWith(t, tr, "bad"))
	require.Error(t, coord.Wait())

	assert.Equal(t, 1, coord.Dispatch(context.Background(), newBufferWith(t, tr, "good")))
	assert.NoError(t, coord.Wait())
	assert.NoError(t, coord.Wait(), "empty round")
}

type panickingTransport struct{ transport.Base }

func (panickingTransport) SendBatch(context.Context, *transport.Buffer) error { panic("nil client") }

func TestCoordinatorRecoversSendPanic(t *testing.T) {
	tr := panickingTransport{Base: transport.NewBase(transport.Config{Threads: 1})}
	err := NewCoordinator(tr).Deliver(context.Background(), []*transport.Buffer{newBufferWith(t, tr, "x")})

	var pe *stats.PanicError
	require.ErrorAs(t, err, &pe)
}

func TestCoordinatorHooks(t *testing.T) {
	tr := newFake(transport.Config{Threads: 1})
	tr.failOn = "b\n"
	reg := stats.NewRegistry()

	var mu sync.Mutex
	var started, done, failed []int
	hooks := BatchHooks{
		OnBatchStart: func(ctx BatchContext) { mu.Lock(); started = append(started, ctx.Index); mu.Unlock() },
		OnBatchDone:  func(ctx BatchContext) { mu.Lock(); done = append(done, ctx.Index); mu.Unlock() },
		OnBatchError: func(ctx BatchContext, _ error) { mu.Lock(); failed = append(failed, ctx.Index); mu.Unlock() },
	}

	coord := NewCoordinator(tr,
		WithName("fake"),
		WithHooks(hooks),
		WithHooks(StatsHooks(reg)),
		WithHooks(LoggingHooks(logging.NewDiscardLogger())),
	)
	err := coord.Deliver(context.Background(), []*transport.Buffer{
		newBufferWith(t, tr, "a"),
		newBufferWith(t, tr, "b"),
	})
	require.Error(t, err)

	assert.Equal(t, []int{1, 2}, started)
	assert.Equal(t, []int{1}, done)
	assert.Equal(t, []int{2}, failed)

	tag := stats.Tag{Name: "transport", Value: "fake"}
	assert.Equal(t, 1.0, reg.Value(StatBatchSuccess, tag))
	assert.Equal(t, 1.0, reg.Value(StatBatchError, tag))
	assert.Equal(t, 1.0, reg.Value(StatBatchRecords, tag))
	assert.Equal(t, 2.0, reg.Value(StatBatchBytes, tag))
}

func TestBatchHooksMerge(t *testing.T) {
	var calls []string
	a := BatchHooks{OnBatchStart: func(BatchContext) { calls = append(calls, "a") }}
	b := BatchHooks{
		OnBatchStart: func(BatchContext) { calls = append(calls, "b") },
		OnBatchError: func(BatchContext, error) { calls = append(calls, "b-err") },
	}

	merged := a.Merge(b)
	merged.OnBatchStart(BatchContext{})
	merged.OnBatchError(BatchContext{}, errors.New("x"))
	assert.Nil(t, merged.OnBatchDone)
	assert.Equal(t, []string{"a", "b", "b-err"}, calls)
}

func serializedEvent(t *testing.T, body string, partitions event.Partitions) *event.Event {
	t.Helper()
	ev := event.New([]byte(body), time.Now(), nil)
	ev.SetPartitions(partitions)
	require.NoError(t, ev.SetSerialized(body))
	return ev
}

func part(name string, value *string) event.Partitions {
	return event.Partitions{{Name: name, Value: value}}
}

func TestSenderGroupsByPartition(t *testing.T) {
	tr := newFake(transport.Config{Threads: 1})
	tr.partitioned = true
	reg := stats.NewRegistry()
	sender := NewSender(tr, NewCoordinator(tr), reg, logging.NewDiscardLogger())
	require.True(t, sender.Partitioned())

	ctx := context.Background()
	require.NoError(t, sender.Add(ctx, serializedEvent(t, "one", part("a", event.StringValue("1")))))
	require.NoError(t, sender.Add(ctx, serializedEvent(t, "two", part("a", event.StringValue("2")))))
	require.NoError(t, sender.Add(ctx, serializedEvent(t, "uno", part("a", event.StringValue("1")))))
	require.NoError(t, sender.Add(ctx, serializedEvent(t, "none", part("a", nil))))

	require.NoError(t, sender.Flush(ctx))
	assert.Equal(t, []string{"one\nuno\n", "two\n", "none\n"}, tr.sent)
}

func TestSenderUnpartitionedSharesBuffer(t *testing.T) {
	tr := newFake(transport.Config{Threads: 1})
	sender := NewSender(tr, NewCoordinator(tr), stats.NewRegistry(), logging.NewDiscardLogger())

	ctx := context.Background()
	require.NoError(t, sender.Add(ctx, serializedEvent(t, "foo", part("a", event.StringValue("1")))))
	require.NoError(t, sender.Add(ctx, serializedEvent(t, "bar", part("a", event.StringValue("2")))))
	require.NoError(t, sender.Flush(ctx))

	assert.Equal(t, []string{"foo\nbar\n"}, tr.sent)
}

func TestSenderRotatesFullBuffers(t *testing.T) {
	tr := newFake(transport.Config{Threads: 1, MaxBufferBytes: 8})
	reg := stats.NewRegistry()
	sender := NewSender(tr, NewCoordinator(tr), reg, logging.NewDiscardLogger())

	ctx := context.Background()
	for _, body := range []string{"aaa", "bbb", "ccc", "toolongrecord", "ddd"} {
		require.NoError(t, sender.Add(ctx, serializedEvent(t, body, nil)))
	}
	require.NoError(t, sender.Flush(ctx))

	assert.ElementsMatch(t, []string{"aaa\nbbb\n", "ccc\nddd\n"}, tr.sent)
	assert.Equal(t, 1.0, reg.Value(StatRecordDropped))
}

func TestSenderRejectsUnserializedEvents(t *testing.T) {
	tr := newFake(transport.Config{Threads: 1})
	sender := NewSender(tr, NewCoordinator(tr), stats.NewRegistry(), logging.NewDiscardLogger())
	assert.Error(t, sender.Add(context.Background(), event.New([]byte("x"), time.Now(), nil)))
}

func TestSenderFlushReportsFailures(t *testing.T) {
	tr := newFake(transport.Config{Threads: 2})
	tr.partitioned = true
	tr.failOn = "b\n"
	sender := NewSender(tr, NewCoordinator(tr), stats.NewRegistry(), logging.NewDiscardLogger())

	ctx := context.Background()
	require.NoError(t, sender.Add(ctx, serializedEvent(t, "a", part("k", event.StringValue("a")))))
	require.NoError(t, sender.Add(ctx, serializedEvent(t, "b", part("k", event.StringValue("b")))))

	err := sender.Flush(ctx)
	var derr *sferrors.DeliveryError
	require.ErrorAs(t, err, &derr)
	first, ok := derr.First()
	require.True(t, ok)
	assert.Equal(t, "k=b", first.Partitions)
}

type framingTransport struct {
	*fakeTransport
}

func (framingTransport) EncodeRecord(ev *event.Event, serialized string) ([]byte, error) {
	if serialized == "skip" {
		return nil, sferrors.NewOperationError("frame", "refused")
	}
	return []byte("<" + serialized + ">"), nil
}

func TestSenderUsesRecordEncoder(t *testing.T) {
	tr := framingTransport{fakeTransport: newFake(transport.Config{Threads: 1})}
	reg := stats.NewRegistry()
	sender := NewSender(tr, NewCoordinator(tr), reg, logging.NewDiscardLogger())

	ctx := context.Background()
	require.NoError(t, sender.Add(ctx, serializedEvent(t, "a", nil)))
	require.NoError(t, sender.Add(ctx, serializedEvent(t, "skip", nil)))
	require.NoError(t, sender.Flush(ctx))

	assert.Equal(t, []string{"<a>\n"}, tr.sent)
	assert.Equal(t, 1.0, reg.Value(StatRecordDropped))
}
