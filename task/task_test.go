package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlink-go/tlink/executor"
)

func TestRunInlineReturnsValue(t *testing.T) {
	v, err := RunInline(func(h *Handle) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRunInlinePropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := RunInline(func(h *Handle) (int, error) {
		return 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestRunInlineRecoversPanic(t *testing.T) {
	_, err := RunInline(func(h *Handle) (int, error) {
		panic("kaboom")
	})
	require.Error(t, err)
}

func TestAwaitChildTaskInline(t *testing.T) {
	v, err := RunInline(func(h *Handle) (int, error) {
		child := New(func(ch *Handle) (int, error) { return 7, nil })
		return Await(h, child)
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestTaskIsLazyUntilAwaited(t *testing.T) {
	ran := false
	child := New(func(h *Handle) (int, error) {
		ran = true
		return 1, nil
	})
	time.Sleep(10 * time.Millisecond)
	assert.False(t, ran, "task body must not run before it is started")

	_, _ = RunInline(func(h *Handle) (int, error) {
		return Await(h, child)
	})
	assert.True(t, ran)
}

func TestSpawnRunsOnExecutor(t *testing.T) {
	exec := executor.New()
	go exec.Run()
	defer exec.Stop()

	result := New(func(h *Handle) (int, error) {
		assert.Equal(t, exec, h.Executor())
		return 99, nil
	})
	Spawn(exec, result)

	v, err := result.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestAwaitCarriesDownExecutor(t *testing.T) {
	exec := executor.New()
	go exec.Run()
	defer exec.Stop()

	parent := New(func(h *Handle) (bool, error) {
		child := New(func(ch *Handle) (*executor.Executor, error) {
			return ch.Executor(), nil
		})
		got, err := Await(h, child)
		return got == exec, err
	})
	Spawn(exec, parent)

	ok, err := parent.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAwaitMultipleChildrenInOrder(t *testing.T) {
	exec := executor.New()
	go exec.Run()
	defer exec.Stop()

	parent := New(func(h *Handle) ([]int, error) {
		var out []int
		for i := 0; i < 3; i++ {
			i := i
			child := New(func(ch *Handle) (int, error) { return i, nil })
			v, err := Await(h, child)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	})
	Spawn(exec, parent)

	out, err := parent.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, out)
}
