package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New(16)
	go h.Run(context.Background())
	t.Cleanup(h.Stop)
	return h
}

func TestHub(t *testing.T) {
	t.Run("steps run in submission order", func(t *testing.T) {
		h := startHub(t)
		var got []int
		for i := 0; i < 100; i++ {
			i := i
			require.True(t, h.Do(func() { got = append(got, i) }))
		}
		require.NoError(t, h.Call(context.Background(), func() {}))

		require.Len(t, got, 100)
		for i, v := range got {
			assert.Equal(t, i, v)
		}
	})

	t.Run("steps never interleave", func(t *testing.T) {
		h := startHub(t)
		counter := 0
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = h.Call(context.Background(), func() {
					v := counter
					time.Sleep(time.Microsecond)
					counter = v + 1
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, counter)
	})

	t.Run("panic does not stop the loop", func(t *testing.T) {
		h := startHub(t)
		require.NoError(t, h.Call(context.Background(), func() { panic("boom") }))

		ran := false
		require.NoError(t, h.Call(context.Background(), func() { ran = true }))
		assert.True(t, ran)
	})

	t.Run("submissions fail after stop", func(t *testing.T) {
		h := New(1)
		go h.Run(context.Background())
		h.Stop()
		<-h.Done()

		assert.False(t, h.Do(func() {}))
		assert.ErrorIs(t, h.Call(context.Background(), func() {}), ErrStopped)
	})

	t.Run("context cancellation stops run", func(t *testing.T) {
		h := New(1)
		ctx, cancel := context.WithCancel(context.Background())
		go h.Run(ctx)
		cancel()

		select {
		case <-h.Done():
		case <-time.After(time.Second):
			t.Fatal("hub did not stop")
		}
	})

	t.Run("call honours caller context", func(t *testing.T) {
		h := startHub(t)
		release := make(chan struct{})
		require.True(t, h.Do(func() { <-release }))
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, h.Call(ctx, func() {}), context.DeadlineExceeded)
	})
}
