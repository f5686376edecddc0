package rawchan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlink-go/tlink/executor"
	"github.com/tlink-go/tlink/task"
)

func TestPushBuffersWhenNoWaiters(t *testing.T) {
	ch := New()
	ch.Push([]byte("a"))
	ch.Push([]byte("b"))

	v, ok := ch.Next(context.Background(), nil)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), v)

	v, ok = ch.Next(context.Background(), nil)
	require.True(t, ok)
	assert.Equal(t, []byte("b"), v)
}

func TestNextObservesClose(t *testing.T) {
	ch := New()
	ch.Close()

	_, ok := ch.Next(context.Background(), nil)
	assert.False(t, ok)
}

func TestCloseWakesPendingWaiter(t *testing.T) {
	ch := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := ch.Next(context.Background(), nil)
		done <- ok
	}()

	for ch.WaiterCount() < 1 {
	}
	ch.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Next to observe close")
	}
}

func TestBroadcastDeliversToEveryWaiter(t *testing.T) {
	ch := New(WithMode(Broadcast))
	results := make(chan []byte, 3)
	for i := 0; i < 3; i++ {
		go func() {
			v, _ := ch.Next(context.Background(), nil)
			results <- v
		}()
	}
	for ch.WaiterCount() < 3 {
	}
	ch.Push([]byte{42})

	for i := 0; i < 3; i++ {
		v := <-results
		assert.Equal(t, []byte{42}, v)
	}
}

func TestBroadcastOnlyReachesRegisteredWaiter(t *testing.T) {
	ch := New(WithMode(Broadcast))
	result := make(chan []byte, 1)
	go func() {
		v, _ := ch.Next(context.Background(), nil)
		result <- v
	}()
	for ch.WaiterCount() < 1 {
	}
	ch.Push([]byte{99})

	v := <-result
	assert.Equal(t, []byte{99}, v)
	assert.Equal(t, 0, ch.WaiterCount())
}

func TestLoadBalancerFairness(t *testing.T) {
	ch := New(WithMode(LoadBalancer))
	type delivery struct {
		idx     int
		payload []byte
	}
	results := make(chan delivery, 3)
	registered := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			registered <- struct{}{}
			v, _ := ch.Next(context.Background(), nil)
			results <- delivery{i, v}
		}()
	}
	for i := 0; i < 3; i++ {
		<-registered
	}
	for ch.WaiterCount() < 3 {
	}

	ch.Push([]byte{10})
	ch.Push([]byte{20})
	ch.Push([]byte{30})

	var got []byte
	for i := 0; i < 3; i++ {
		d := <-results
		got = append(got, d.payload[0])
	}
	assert.ElementsMatch(t, []byte{10, 20, 30}, got)
}

func TestCancellationRemovesWaiterAndLeavesBufferEmpty(t *testing.T) {
	ch := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := ch.Next(ctx, nil)
		done <- ok
	}()
	for ch.WaiterCount() < 1 {
	}
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation")
	}

	ch.Push([]byte("late"))
	v, ok := ch.Next(context.Background(), nil)
	require.True(t, ok)
	assert.Equal(t, []byte("late"), v)
}

func TestTryNextReturnsBufferedPayloadWithoutBlocking(t *testing.T) {
	ch := New()
	_, ok := ch.TryNext()
	assert.False(t, ok)

	ch.Push([]byte("buffered"))
	v, ok := ch.TryNext()
	require.True(t, ok)
	assert.Equal(t, []byte("buffered"), v)

	_, ok = ch.TryNext()
	assert.False(t, ok)
}

func TestTryNextDoesNotConsumeARegisteredWaiter(t *testing.T) {
	ch := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := ch.Next(context.Background(), nil)
		done <- ok
	}()
	for ch.WaiterCount() < 1 {
	}

	_, ok := ch.TryNext()
	assert.False(t, ok, "TryNext must not steal a payload meant for a registered waiter")

	ch.Push([]byte("direct"))
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for registered waiter to receive the push")
	}
}

func TestWithBufferCapacityDoesNotLimitBuffering(t *testing.T) {
	ch := New(WithBufferCapacity(1))
	ch.Push([]byte("a"))
	ch.Push([]byte("b"))
	ch.Push([]byte("c"))

	for _, want := range []string{"a", "b", "c"} {
		v, ok := ch.Next(context.Background(), nil)
		require.True(t, ok)
		assert.Equal(t, []byte(want), v)
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("broadcast")
	require.NoError(t, err)
	assert.Equal(t, Broadcast, mode)

	mode, err = ParseMode("loadbalancer")
	require.NoError(t, err)
	assert.Equal(t, LoadBalancer, mode)

	_, err = ParseMode("bogus")
	assert.Error(t, err)
}

// TestPushAfterExecutorDeathDropsWaiterSilently is scenario S5: a consumer
// task suspended on Next, bound to an Executor that is then destroyed
// (Close'd), must not crash a later Push and must never be resumed.
func TestPushAfterExecutorDeathDropsWaiterSilently(t *testing.T) {
	exec := executor.New()
	go exec.Run()

	ch := New()
	consumer := task.New(func(h *task.Handle) (struct{}, error) {
		ch.Next(context.Background(), h)
		return struct{}{}, nil
	})
	task.Spawn(exec, consumer)

	for ch.WaiterCount() < 1 {
	}
	exec.Close()

	assert.NotPanics(t, func() { ch.Push([]byte("x")) })

	time.Sleep(50 * time.Millisecond)
	assert.False(t, consumer.Completed(), "orphaned waiter must never be resumed")
	exec.Stop()
}
