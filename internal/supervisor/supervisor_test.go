package supervisor

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chaos-mesh/toda/internal/ptrace"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Config{Path: t.TempDir()}, logger, nil)
	s.engine = ptrace.NewEngine()
	return s
}

func TestStatusStartsHealthy(t *testing.T) {
	s := newTestSupervisor(t)
	assert.NoError(t, s.Status())
}

func TestSetUnhealthyLatchesFirstError(t *testing.T) {
	s := newTestSupervisor(t)
	s.setUnhealthy(errors.New("first"))
	s.setUnhealthy(errors.New("second"))
	assert.EqualError(t, s.Status(), "first")
}

func TestRequestShutdownIsIdempotent(t *testing.T) {
	s := newTestSupervisor(t)
	s.RequestShutdown("a")
	s.RequestShutdown("b")

	select {
	case <-s.shutdown:
	default:
		t.Fatal("shutdown channel was not closed")
	}
}

func TestIsUseOfClosedListener(t *testing.T) {
	assert.True(t, isUseOfClosedListener(errors.New("use of closed network connection")))
	assert.False(t, isUseOfClosedListener(errors.New("some other error")))
	assert.False(t, isUseOfClosedListener(nil))
}
