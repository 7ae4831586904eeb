package dispatcher

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chaos-mesh/toda/internal/injector"
	"github.com/chaos-mesh/toda/internal/passthroughfs"
)

func newTestDispatcher(t *testing.T, maxBlocking int) *Dispatcher {
	t.Helper()
	fs := passthroughfs.New(t.TempDir(), injector.NewPipeline(nil))
	return New(fs, maxBlocking, log.New(nopWriter{}, "", 0))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestAcquireBoundsConcurrency(t *testing.T) {
	d := newTestDispatcher(t, 1)

	release, err := d.acquire(context.Background())
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := d.acquire(context.Background())
	assert.NoError(t, err)
	release2()
}

func TestTracedRunsFnAndReturnsItsError(t *testing.T) {
	d := newTestDispatcher(t, 4)
	var ran bool
	err := d.traced("noop", func() error { ran = true; return nil })
	assert.NoError(t, err)
	assert.True(t, ran)
}

func TestAcquireAllowsConcurrentSlots(t *testing.T) {
	d := newTestDispatcher(t, 2)
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := d.acquire(context.Background())
			results <- err
			if err == nil {
				defer release()
			}
		}()
	}
	wg.Wait()
	close(results)
	for err := range results {
		assert.NoError(t, err)
	}
}
