package injector

import (
	"context"
	"sync"
	"time"

	"github.com/chaos-mesh/toda/internal/filter"
)

// Latency blocks matching operations for a fixed duration, cancellable via
// Interrupt so a pending sleep doesn't delay teardown.
type Latency struct {
	baseInjector

	duration time.Duration
	filter   *filter.Filter

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewLatency builds a Latency injector for the given duration and filter.
func NewLatency(duration time.Duration, f *filter.Filter) *Latency {
	return &Latency{duration: duration, filter: f}
}

func (l *Latency) Pre(ctx context.Context, method filter.Method, path string) error {
	if !l.filter.Match(method, path) {
		return nil
	}

	sleepCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	timer := time.NewTimer(l.duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-sleepCtx.Done():
	}

	l.mu.Lock()
	l.cancel = nil
	l.mu.Unlock()

	return nil
}

// Interrupt cancels a latency wait currently in progress, if any.
func (l *Latency) Interrupt() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
}

var _ Injector = (*Latency)(nil)
