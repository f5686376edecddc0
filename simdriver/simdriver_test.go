package simdriver

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlink-go/tlink/task"
)

func newTestDriver() *Driver {
	return New(0, time.Millisecond, rand.New(rand.NewSource(1)))
}

func connect(t *testing.T, ctx context.Context, d *Driver) {
	_, err := task.RunInline(func(h *task.Handle) (struct{}, error) {
		res, err := task.Await(h, d.Connect(ctx))
		if err != nil {
			return struct{}{}, err
		}
		require.True(t, res.Ok())
		return struct{}{}, nil
	})
	require.NoError(t, err)
}

func TestConnectReadWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()
	connect(t, ctx, d)

	_, err := task.RunInline(func(h *task.Handle) (struct{}, error) {
		res, err := task.Await(h, d.WriteFrom(ctx, "conveyor.speed", []byte("7")))
		if err != nil {
			return struct{}{}, err
		}
		require.True(t, res.Ok())
		return struct{}{}, nil
	})
	require.NoError(t, err)

	readBack, err := task.RunInline(func(h *task.Handle) ([]byte, error) {
		res, err := task.Await(h, d.ReadInto(ctx, "conveyor.speed"))
		if err != nil {
			return nil, err
		}
		return res.Value, res.Err
	})
	require.NoError(t, err)
	assert.Equal(t, "7", string(readBack))
}

func TestReadWithoutConnectFails(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()

	res, err := task.RunInline(func(h *task.Handle) (bool, error) {
		r, err := task.Await(h, d.ReadInto(ctx, "x"))
		return r.Ok(), err
	})
	require.NoError(t, err)
	assert.False(t, res)
}

func TestSubscribeReceivesWritesThenUnsubscribeSync(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()
	connect(t, ctx, d)

	delivered := make(chan []byte, 1)
	subID, err := task.RunInline(func(h *task.Handle) (int64, error) {
		res, err := task.Await(h, d.SubscribeRaw(ctx, "tank.level"))
		if err != nil {
			return 0, err
		}
		if res.Err != nil {
			return 0, res.Err
		}
		go func() {
			v, _ := res.Value.Channel.Next(ctx, nil)
			delivered <- v
		}()
		_, werr := task.Await(h, d.WriteFrom(ctx, "tank.level", []byte("55")))
		return res.Value.ID, werr
	})
	require.NoError(t, err)

	select {
	case v := <-delivered:
		assert.Equal(t, []byte("55"), v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscription notification")
	}

	require.NoError(t, d.UnsubscribeSync(subID))
	assert.Error(t, d.UnsubscribeSync(subID), "second unsubscribe of the same id must fail")
}

func TestSubscribeRawLogsCorrelationID(t *testing.T) {
	ctx := context.Background()
	var buf bufferWriter
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	d := New(0, time.Millisecond, rand.New(rand.NewSource(1)), WithLogger(logger))
	connect(t, ctx, d)

	_, err := task.RunInline(func(h *task.Handle) (struct{}, error) {
		_, err := task.Await(h, d.SubscribeRaw(ctx, "press.pressure"))
		return struct{}{}, err
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "correlation_id")
}

type bufferWriter struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (w *bufferWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *bufferWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
