// Package ptrace implements the tracee registry and syscall/code injection
// primitives the replacers build on: attach-converge over every task of a
// process, save-restore register syscall injection, and straight-line code
// execution via a scratch executable mmap.
package ptrace

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/errs"
)

// waitOptAll mirrors __WALL: wait for state changes in any child,
// regardless of whether it's a "clone" child, matching multi-threaded
// targets whose tasks aren't direct syscall.Wait4 children of this process.
const waitOptAll = 0x40000000

// tracee is one attached OS thread (task) and its reference count.
type tracee struct {
	refCount int
}

// Engine is the process-wide registry of traced pids, refcounted so that
// multiple replacers can share the same tracee without racing attach/detach.
type Engine struct {
	mu      sync.Mutex
	traced  map[int]*tracee // keyed by tid (task id == pid for single-threaded)
	process map[int][]int   // pid -> tids attached under it, for detach-all
}

// NewEngine builds an empty Engine.
func NewEngine() *Engine {
	return &Engine{traced: make(map[int]*tracee), process: make(map[int][]int)}
}

func listTasks(pid int) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join("/proc", strconv.Itoa(pid), "task"))
	if err != nil {
		return nil, err
	}
	tids := make([]int, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	return tids, nil
}

// Trace attaches to every task of pid, re-enumerating until a pass
// discovers no new tasks (handles threads spawned mid-attach). A pid
// already traced only has its refcount bumped.
func (e *Engine) Trace(pid int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.process[pid]; ok && len(existing) > 0 {
		for _, tid := range existing {
			e.traced[tid].refCount++
		}
		return nil
	}

	attached := make(map[int]bool)
	first := true
	for {
		tids, err := listTasks(pid)
		if err != nil {
			if first {
				return &errs.TraceeGoneError{Pid: pid, Err: err}
			}
			break
		}

		discoveredNew := false
		for _, tid := range tids {
			if attached[tid] {
				continue
			}
			discoveredNew = true

			if err := syscall.PtraceAttach(tid); err != nil {
				if err == syscall.ESRCH || err == syscall.EPERM {
					// task became a zombie or exited between enumeration
					// and attach; tolerated per spec.
					continue
				}
				if first {
					return &errs.TraceeError{Pid: pid, Op: "attach", Err: err}
				}
				continue
			}

			var ws unix.WaitStatus
			if _, err := unix.Wait4(tid, &ws, waitOptAll, nil); err != nil {
				continue
			}

			attached[tid] = true
			e.traced[tid] = &tracee{refCount: 1}
		}

		first = false
		if !discoveredNew {
			break
		}
	}

	if len(attached) == 0 {
		// Either the task list was empty (process already gone by the time
		// we listed it) or every attach attempt hit ESRCH/EPERM-zombie: both
		// mean the tracee vanished during attachment, which replacers must
		// skip rather than abort on.
		return &errs.TraceeGoneError{Pid: pid, Err: syscall.ESRCH}
	}

	tids := make([]int, 0, len(attached))
	for tid := range attached {
		tids = append(tids, tid)
	}
	e.process[pid] = tids
	return nil
}

// Detach decrements pid's refcount; at zero it detaches every task that
// Trace recorded for pid. /proc/<pid>/task is not listed again, so only the
// tasks attached by Trace are detached. Tasks that exited during tracing
// (ESRCH on detach) are ignored.
func (e *Engine) Detach(pid int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tids, ok := e.process[pid]
	if !ok {
		return nil
	}

	// All tasks of a process share the same refcount lifecycle: detach is
	// keyed on the leader pid, so decrement every task together.
	allZero := true
	for _, tid := range tids {
		t, ok := e.traced[tid]
		if !ok {
			continue
		}
		t.refCount--
		if t.refCount > 0 {
			allZero = false
		}
	}
	if !allZero {
		return nil
	}

	for _, tid := range tids {
		if err := syscall.PtraceDetach(tid); err != nil && err != syscall.ESRCH {
			// Best-effort: log-and-continue semantics live with the caller;
			// here we just don't let one stuck task block the rest.
			continue
		}
		delete(e.traced, tid)
	}
	delete(e.process, pid)
	return nil
}

// syscallResult is the rax value and whether it encodes a negative errno.
type syscallResult struct {
	raw   uint64
	errno syscall.Errno
}

func decodeResult(raw uint64) syscallResult {
	signed := int64(raw)
	if signed < 0 && signed > -4096 {
		return syscallResult{raw: raw, errno: syscall.Errno(-signed)}
	}
	return syscallResult{raw: raw}
}

// maxSyscallArgs bounds the number of registers the SysV ABI dedicates to
// syscall arguments.
const maxSyscallArgs = 6

// Syscall performs a save-restore of the tracee's general-purpose registers
// and RIP, writes a two-byte `syscall` instruction at the current RIP,
// single-steps past it, and restores the saved state. It returns RAX, or -1
// and the decoded syscall.Errno when RAX is a negative error code.
func (e *Engine) Syscall(tid int, nr uint64, args ...uint64) (int64, error) {
	if len(args) > maxSyscallArgs {
		return 0, &errs.TraceeError{Pid: tid, Op: "syscall", Err: errTooManyArgs}
	}

	var saved syscall.PtraceRegs
	if err := syscall.PtraceGetRegs(tid, &saved); err != nil {
		return 0, &errs.TraceeError{Pid: tid, Op: "getregs", Err: err}
	}

	work := saved
	work.Rax = nr
	setArgs(&work, args)

	// Two-byte `syscall` instruction (0x0F 0x05) written at the current RIP;
	// restored after the single step regardless of outcome.
	origText, err := peekText(tid, uintptr(saved.Rip), 2)
	if err != nil {
		return 0, &errs.TraceeError{Pid: tid, Op: "peektext", Err: err}
	}
	if err := pokeText(tid, uintptr(saved.Rip), []byte{0x0F, 0x05}); err != nil {
		return 0, &errs.TraceeError{Pid: tid, Op: "poketext", Err: err}
	}
	defer pokeText(tid, uintptr(saved.Rip), origText)
	defer syscall.PtraceSetRegs(tid, &saved)

	if err := syscall.PtraceSetRegs(tid, &work); err != nil {
		return 0, &errs.TraceeError{Pid: tid, Op: "setregs", Err: err}
	}

	if err := syscall.PtraceSingleStep(tid); err != nil {
		return 0, &errs.TraceeError{Pid: tid, Op: "singlestep", Err: err}
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(tid, &ws, 0, nil); err != nil {
		return 0, &errs.TraceeError{Pid: tid, Op: "wait", Err: err}
	}

	var after syscall.PtraceRegs
	if err := syscall.PtraceGetRegs(tid, &after); err != nil {
		return 0, &errs.TraceeError{Pid: tid, Op: "getregs-after", Err: err}
	}

	res := decodeResult(after.Rax)
	if res.errno != 0 {
		return -1, res.errno
	}
	return int64(after.Rax), nil
}

func setArgs(regs *syscall.PtraceRegs, args []uint64) {
	slots := []*uint64{&regs.Rdi, &regs.Rsi, &regs.Rdx, &regs.R10, &regs.R8, &regs.R9}
	for i, a := range args {
		*slots[i] = a
	}
}

func peekText(tid int, addr uintptr, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := syscall.PtracePeekText(tid, addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func pokeText(tid int, addr uintptr, data []byte) error {
	_, err := syscall.PtracePokeText(tid, addr, data)
	return err
}

var errTooManyArgs = &tooManyArgsError{}

type tooManyArgsError struct{}

func (*tooManyArgsError) Error() string { return "too many syscall arguments (max 6)" }
