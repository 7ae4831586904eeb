package ptrace

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-mesh/toda/internal/errs"
)

func TestDecodeResultSuccess(t *testing.T) {
	res := decodeResult(42)
	assert.Equal(t, uint64(42), res.raw)
	assert.Zero(t, res.errno)
}

func TestDecodeResultNegativeErrno(t *testing.T) {
	// -EIO as the kernel would return it in rax: uint64(-5).
	res := decodeResult(uint64(int64(-5)))
	assert.Equal(t, syscall.Errno(5), res.errno)
}

func TestDecodeResultLargeUnsignedValueIsNotMistakenForErrno(t *testing.T) {
	// A legitimate large return value (e.g. a pointer from mmap) must not be
	// misread as a negative errno.
	res := decodeResult(0x00007fff00000000)
	assert.Zero(t, res.errno)
}

func TestSetArgsPlacesValuesInSysVOrder(t *testing.T) {
	var regs syscall.PtraceRegs
	setArgs(&regs, []uint64{1, 2, 3, 4, 5, 6})

	assert.EqualValues(t, 1, regs.Rdi)
	assert.EqualValues(t, 2, regs.Rsi)
	assert.EqualValues(t, 3, regs.Rdx)
	assert.EqualValues(t, 4, regs.R10)
	assert.EqualValues(t, 5, regs.R8)
	assert.EqualValues(t, 6, regs.R9)
}

func TestTooManyArgsRejected(t *testing.T) {
	e := NewEngine()
	_, err := e.Syscall(1, 0, 1, 2, 3, 4, 5, 6, 7)
	assert.Error(t, err)
}

func TestDetachUntrackedPidIsNoop(t *testing.T) {
	e := NewEngine()
	assert.NoError(t, e.Detach(999))
}

func TestTraceNonexistentPidIsSkippable(t *testing.T) {
	// A pid with no /proc/<pid>/task directory has either already exited or
	// never existed; Trace must report this as a skippable "gone" tracee
	// rather than a hard failure so replacers skip it and keep going.
	e := NewEngine()
	err := e.Trace(1 << 30)
	require.Error(t, err)
	assert.True(t, errs.Skippable(err))
}
