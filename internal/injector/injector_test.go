package injector

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-mesh/toda/internal/filter"
	"github.com/chaos-mesh/toda/internal/fsreply"
)

func mustFilter(t *testing.T, conf filter.Config) *filter.Filter {
	t.Helper()
	f, err := filter.Build(conf)
	require.NoError(t, err)
	return f
}

func TestLatencySleepsAndInterrupts(t *testing.T) {
	f := mustFilter(t, filter.Config{Percent: 100})
	l := NewLatency(time.Hour, f)

	done := make(chan error, 1)
	go func() { done <- l.Pre(context.Background(), filter.Read, "/x") }()

	// Give the goroutine a moment to register its cancel func, then
	// interrupt it instead of waiting an hour.
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.cancel != nil
	}, time.Second, time.Millisecond)

	l.Interrupt()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("latency injector did not unblock on Interrupt")
	}
}

func TestLatencyNoMatchReturnsImmediately(t *testing.T) {
	f := mustFilter(t, filter.Config{Percent: 0})
	l := NewLatency(time.Hour, f)
	err := l.Pre(context.Background(), filter.Read, "/x")
	assert.NoError(t, err)
}

func TestFaultAlwaysPicksSoleErrno(t *testing.T) {
	f := mustFilter(t, filter.Config{Percent: 100})
	fi := NewFault(f, []WeightedErrno{{Errno: 5, Weight: 1}})

	err := fi.Pre(context.Background(), filter.Read, "/x")
	require.Error(t, err)

	var errno syscall.Errno
	require.True(t, errors.As(err, &errno))
	assert.Equal(t, syscall.Errno(5), errno)
}

func TestFaultZeroWeightSumNoInject(t *testing.T) {
	f := mustFilter(t, filter.Config{Percent: 100})
	fi := NewFault(f, nil)
	assert.NoError(t, fi.Pre(context.Background(), filter.Read, "/x"))
}

func TestAttrOverrideAppliesOnlyRequestedFields(t *testing.T) {
	f := mustFilter(t, filter.Config{Percent: 100})
	size := uint64(42)
	kind := fsreply.KindRegularFile
	a := NewAttrOverride(f, AttrFields{Size: &size, Kind: &kind})

	reply := &fsreply.Reply{Attr: &fsreply.AttrReply{Attr: fsreply.Attr{Ino: 7, Size: 1}}}
	a.PostReply(filter.Getattr, "/x", reply)

	assert.EqualValues(t, 42, reply.Attr.Attr.Size)
	assert.Equal(t, fsreply.KindRegularFile, reply.Attr.Attr.Kind)
	assert.EqualValues(t, 7, reply.Attr.Attr.Ino, "untouched fields must survive")
}

func TestMistakeZeroFillCorruptsWithinBounds(t *testing.T) {
	f := mustFilter(t, filter.Config{Percent: 100})
	m := NewMistake(f, MistakeZero, 4, 2)

	data := make([]byte, 16)
	for i := range data {
		data[i] = 0xFF
	}
	m.PreWriteData("/x", data)

	zeroed := 0
	for _, b := range data {
		if b == 0 {
			zeroed++
		}
	}
	assert.Greater(t, zeroed, 0)
	assert.LessOrEqual(t, zeroed, 8)
}

func TestMistakeNoMatchLeavesDataAlone(t *testing.T) {
	f := mustFilter(t, filter.Config{Percent: 0})
	m := NewMistake(f, MistakeZero, 4, 2)

	data := []byte{1, 2, 3, 4}
	orig := append([]byte(nil), data...)
	m.PreWriteData("/x", data)
	assert.Equal(t, orig, data)
}

func TestPipelineFirstFaultWins(t *testing.T) {
	neverMatch := mustFilter(t, filter.Config{Percent: 0})
	alwaysMatch := mustFilter(t, filter.Config{Percent: 100})

	first := NewFault(neverMatch, []WeightedErrno{{Errno: 2, Weight: 1}})
	second := NewFault(alwaysMatch, []WeightedErrno{{Errno: 13, Weight: 1}})

	p := NewPipeline([]Injector{first, second})
	err := p.Pre(context.Background(), filter.Read, "/x")
	require.Error(t, err)
}

func TestPipelineSwapReplacesInjectors(t *testing.T) {
	p := NewPipeline(nil)
	assert.NoError(t, p.Pre(context.Background(), filter.Read, "/x"))

	alwaysMatch := mustFilter(t, filter.Config{Percent: 100})
	p.Swap([]Injector{NewFault(alwaysMatch, []WeightedErrno{{Errno: 5, Weight: 1}})})
	assert.Error(t, p.Pre(context.Background(), filter.Read, "/x"))
}
