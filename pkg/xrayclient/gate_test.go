package xrayclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_ReturnsResult(t *testing.T) {
	g := newGate()
	boom := errors.New("boom")

	err := g.do(context.Background(), func() error { return boom })
	assert.ErrorIs(t, err, boom)

	n, err := withGate(context.Background(), g, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestGate_ReleasedOnPanic(t *testing.T) {
	g := newGate()

	assert.Panics(t, func() {
		_ = g.do(context.Background(), func() error { panic("boom") })
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, g.do(ctx, func() error { return nil }))
}

func TestGate_CancelWhileWaiting(t *testing.T) {
	g := newGate()
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = g.do(context.Background(), func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ran := false
	go func() {
		done <- g.do(ctx, func() error {
			ran = true
			return nil
		})
	}()

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)

	close(release)
	assert.NoError(t, g.do(context.Background(), func() error { return nil }))
}

func TestGate_SerializesCriticalSections(t *testing.T) {
	g := newGate()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.do(context.Background(), func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}
