package eventloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(8, nil)
	go l.Run(context.Background())
	t.Cleanup(l.Stop)
	return l
}

func TestTasksRunInPostOrder(t *testing.T) {
	l := startLoop(t)
	var order []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { order = append(order, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestDoReturnsTaskError(t *testing.T) {
	l := startLoop(t)
	sentinel := errors.New("nope")
	err := l.Do(context.Background(), func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}

func TestPanicDoesNotKillLoop(t *testing.T) {
	l := startLoop(t)
	l.Post(func() { panic("boom") })

	err := l.Do(context.Background(), func() error { panic("again") })
	require.Error(t, err)

	var ran atomic.Bool
	require.NoError(t, l.Do(context.Background(), func() error {
		ran.Store(true)
		return nil
	}))
	assert.True(t, ran.Load())
}

func TestTaskCanPostToOwnLoop(t *testing.T) {
	l := startLoop(t)
	var second atomic.Bool
	require.NoError(t, l.Do(context.Background(), func() error {
		l.Post(func() { second.Store(true) })
		return nil
	}))
	assert.Eventually(t, second.Load, time.Second, 5*time.Millisecond)
}

func TestPostAfterStop(t *testing.T) {
	l := New(1, nil)
	go l.Run(context.Background())
	l.Stop()
	<-l.Done()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(context.Background(), func() error { return nil }), ErrStopped)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	l := New(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestDoHonoursContext(t *testing.T) {
	l := startLoop(t)
	block := make(chan struct{})
	l.Post(func() { <-block })
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
