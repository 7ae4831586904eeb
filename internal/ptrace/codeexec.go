package ptrace

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/errs"
)

// pageSize is assumed fixed at the common x86-64 value; toda only targets
// that architecture (the replacers emit x86-64 machine code directly).
const pageSize = 4096

// WithMmap allocates a RWX anonymous private mapping of at least len bytes
// in the tracee, invokes f with its address, then unmaps it regardless of
// whether f returns an error.
func (e *Engine) WithMmap(tid int, length int, f func(addr uintptr) error) error {
	size := uint64((length + pageSize - 1) &^ (pageSize - 1))
	if size == 0 {
		size = pageSize
	}

	addr, err := e.Syscall(tid, unixSysMmap,
		0, size,
		uint64(unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC),
		uint64(unix.MAP_PRIVATE|unix.MAP_ANONYMOUS),
		^uint64(0), // fd = -1
		0,
	)
	if err != nil {
		return &errs.TraceeError{Pid: tid, Op: "mmap", Err: err}
	}

	ferr := f(uintptr(addr))

	if _, err := e.Syscall(tid, unixSysMunmap, uint64(addr), size); err != nil && ferr == nil {
		return &errs.TraceeError{Pid: tid, Op: "munmap", Err: err}
	}
	return ferr
}

// writeMemory copies data into the tracee's address space at addr using
// process_vm_writev, the standard zero-copy cross-process write primitive
// (the same one ptrace-based tools use instead of word-at-a-time POKEDATA
// for anything larger than a few bytes).
func writeMemory(tid int, addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &data[0], Len: uint64(len(data))}}
	remote := []unix.RemoteIovec{{Base: addr, Len: len(data)}}
	n, err := unix.ProcessVMWritev(tid, local, remote, 0)
	if err != nil {
		return err
	}
	if n != len(data) {
		return syscall.EIO
	}
	return nil
}

// WriteAt copies data into the tracee's address space at addr, for callers
// that need to stage a buffer (a path string, a code blob) before invoking
// a syscall against it.
func (e *Engine) WriteAt(tid int, addr uintptr, data []byte) error {
	return writeMemory(tid, addr, data)
}

// CodeGenerator produces a code blob given the base address it will be
// loaded at (needed because absolute jumps/pointers inside the blob must
// reference addresses within the same mmap) and must end the blob with an
// int3 trap.
type CodeGenerator func(addr uintptr) []byte

// RunCodes mmaps a scratch executable region, asks gen to produce code for
// that address, writes it, points RIP at the region's start, resumes the
// tracee, and waits for the int3 trap the generator is required to emit.
// Signals other than SIGTRAP cause a resume-and-wait retry. The tracee's
// original registers and RIP are restored on every exit path.
func (e *Engine) RunCodes(tid int, maxLen int, gen CodeGenerator) error {
	var saved syscall.PtraceRegs
	if err := syscall.PtraceGetRegs(tid, &saved); err != nil {
		return &errs.TraceeError{Pid: tid, Op: "getregs", Err: err}
	}
	defer syscall.PtraceSetRegs(tid, &saved)

	return e.WithMmap(tid, maxLen, func(addr uintptr) error {
		code := gen(addr)
		if err := writeMemory(tid, addr, code); err != nil {
			return &errs.TraceeError{Pid: tid, Op: "write code", Err: err}
		}

		work := saved
		work.Rip = uint64(addr)
		if err := syscall.PtraceSetRegs(tid, &work); err != nil {
			return &errs.TraceeError{Pid: tid, Op: "setregs", Err: err}
		}

		for {
			if err := syscall.PtraceCont(tid, 0); err != nil {
				return &errs.TraceeError{Pid: tid, Op: "cont", Err: err}
			}
			var ws unix.WaitStatus
			if _, err := unix.Wait4(tid, &ws, 0, nil); err != nil {
				return &errs.TraceeError{Pid: tid, Op: "wait", Err: err}
			}
			if ws.Stopped() && ws.StopSignal() == syscall.SIGTRAP {
				return nil
			}
			// Non-SIGTRAP stop: resume and keep waiting for our trap.
		}
	})
}

// Chdir writes a null-terminated copy of path into a scratch mmap in the
// tracee and invokes chdir(2) against it.
func (e *Engine) Chdir(tid int, path string) error {
	buf := append([]byte(path), 0)
	return e.WithMmap(tid, len(buf), func(addr uintptr) error {
		if err := writeMemory(tid, addr, buf); err != nil {
			return &errs.TraceeError{Pid: tid, Op: "write path", Err: err}
		}
		if _, err := e.Syscall(tid, unixSysChdir, uint64(addr)); err != nil {
			return &errs.TraceeError{Pid: tid, Op: "chdir", Err: err}
		}
		return nil
	})
}

// x86-64 syscall numbers used directly by the engine's own helper calls
// (as opposed to the replacer-generated code blobs, which carry their own
// constants via internal/asm callers).
const (
	unixSysMmap   = 9
	unixSysMunmap = 11
	unixSysChdir  = 80
)
