package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startThread(t *testing.T, cfg Config) *Thread {
	t.Helper()
	th := New(cfg)
	th.Start()
	t.Cleanup(func() { _ = th.Stop(context.Background()) })
	return th
}

func TestThread_RunsInOrder(t *testing.T) {
	th := startThread(t, Config{Name: "order"})

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, th.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, th.Do(context.Background(), func() {}))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestThread_Call(t *testing.T) {
	th := startThread(t, Config{})

	n, err := Call(context.Background(), th, func() (int, error) { return 55, nil })
	require.NoError(t, err)
	assert.Equal(t, 55, n)

	boom := errors.New("boom")
	_, err = Call(context.Background(), th, func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestThread_RecoversPanic(t *testing.T) {
	th := startThread(t, Config{})

	err := th.Do(context.Background(), func() { panic("bad script") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad script")

	require.NoError(t, th.Post(func() { panic("posted") }))
	assert.NoError(t, th.Do(context.Background(), func() {}))
}

func TestThread_TasksNeverOverlap(t *testing.T) {
	th := startThread(t, Config{})

	var active, maxActive int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = th.Do(context.Background(), func() {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxActive)
}

func TestThread_NotStarted(t *testing.T) {
	th := New(Config{})
	assert.ErrorIs(t, th.Post(func() {}), ErrNotStarted)
	assert.ErrorIs(t, th.Do(context.Background(), func() {}), ErrNotStarted)
	assert.NoError(t, th.Stop(context.Background()))
}

func TestThread_StopDrainsQueue(t *testing.T) {
	th := New(Config{QueueSize: 8})
	th.Start()

	release := make(chan struct{})
	ran := 0
	require.NoError(t, th.Post(func() { <-release }))
	for i := 0; i < 3; i++ {
		require.NoError(t, th.Post(func() { ran++ }))
	}

	stopped := make(chan error, 1)
	go func() { stopped <- th.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return errors.Is(th.Post(func() {}), ErrStopped)
	}, time.Second, time.Millisecond)
	close(release)

	require.NoError(t, <-stopped)
	assert.Equal(t, 3, ran)
	assert.ErrorIs(t, th.Do(context.Background(), func() {}), ErrStopped)
	assert.NoError(t, th.Stop(context.Background()))
}

func TestThread_QueueFull(t *testing.T) {
	th := startThread(t, Config{QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, th.Post(func() { close(started); <-release }))
	<-started
	require.NoError(t, th.Post(func() {}))

	assert.ErrorIs(t, th.Post(func() {}), ErrQueueFull)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, th.Do(ctx, func() {}), context.DeadlineExceeded)
	close(release)
}
