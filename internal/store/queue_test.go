package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int](2)

	for i := 0; i < 20; i++ {
		require.True(t, q.Push(i))
	}
	assert.Equal(t, 20, q.Len())

	for i := 0; i < 20; i++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)

	stats := q.Stats()
	assert.Equal(t, int64(20), stats.TotalIn)
	assert.Equal(t, int64(20), stats.TotalOut)
	assert.Greater(t, stats.ResizeCount, 0)
}

func TestQueue_WrapAround(t *testing.T) {
	q := NewQueue[int](8)

	// Interleave pushes and pops so head passes tail before growth.
	next := 0
	for round := 0; round < 10; round++ {
		for i := 0; i < 4; i++ {
			q.Push(round*4 + i)
		}
		for i := 0; i < 3; i++ {
			v, ok := q.TryPop()
			require.True(t, ok)
			assert.Equal(t, next, v)
			next++
		}
	}

	rest := q.Drain(0)
	for _, v := range rest {
		assert.Equal(t, next, v)
		next++
	}
	assert.Equal(t, 40, next)
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue[string](4)
	q.Push("a")
	q.Push("b")
	q.Push("c")

	assert.Equal(t, []string{"a", "b"}, q.Drain(2))
	assert.Equal(t, []string{"c"}, q.Drain(0))
	assert.Nil(t, q.Drain(0))
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue[int](1)

	var wg sync.WaitGroup
	wg.Add(1)
	var got int
	var ok bool
	go func() {
		defer wg.Done()
		got, ok = q.Pop(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)
	wg.Wait()

	assert.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestQueue_CloseDrainsThenStops(t *testing.T) {
	q := NewQueue[int](4)
	q.Push(1)
	q.Close()

	assert.False(t, q.Push(2))

	v, ok := q.Pop(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = q.Pop(context.Background())
	assert.False(t, ok)
}

func TestQueue_PopContextCancel(t *testing.T) {
	q := NewQueue[int](4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool)
	go func() {
		_, ok := q.Pop(ctx)
		done <- ok
	}()

	cancel()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after cancel")
	}
}
