package replacer

import (
	"log/slog"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/errs"
	"github.com/chaos-mesh/toda/internal/ptrace"
)

// x86-64 syscall numbers FdReplacer injects one at a time via engine.Syscall.
const (
	sysFcntl  = 72
	sysOpen   = 2
	sysLseek  = 8
	sysDup2   = 33
	sysClose  = 3
	sysF_GETFL = unix.F_GETFL
)

type fdRewrite struct {
	fd      int
	newPath string
}

// FdReplacer rewrites every open file descriptor under detectPath to point
// at the corresponding path under newPath, preserving fd number, seek
// position, and O_APPEND/O_CLOEXEC flags (carried via F_GETFL).
type FdReplacer struct {
	fs         procfs.FS
	engine     *ptrace.Engine
	logger     *slog.Logger
	detectPath string
	newPath    string
	batches    map[int][]fdRewrite // pid -> rewrites
}

// NewFdReplacer builds an FdReplacer.
func NewFdReplacer(fs procfs.FS, engine *ptrace.Engine, logger *slog.Logger) *FdReplacer {
	return &FdReplacer{fs: fs, engine: engine, logger: logger}
}

func (r *FdReplacer) Prepare(detectPath, newPath string) error {
	r.detectPath = detectPath
	r.newPath = newPath
	r.batches = make(map[int][]fdRewrite)

	procs, err := listOtherPids(r.fs)
	if err != nil {
		return err
	}

	for _, p := range procs {
		fds, err := p.FileDescriptors()
		if err != nil {
			continue // process may have exited; skip it
		}
		targets, err := p.FileDescriptorTargets()
		if err != nil || len(targets) != len(fds) {
			continue
		}

		var batch []fdRewrite
		for i, fd := range fds {
			rewritten, ok := rebuild(targets[i], r.detectPath, r.newPath)
			if !ok {
				continue
			}
			batch = append(batch, fdRewrite{fd: int(fd), newPath: rewritten})
		}
		if len(batch) > 0 {
			r.batches[p.PID] = batch
		}
	}
	return nil
}

func (r *FdReplacer) Run() error {
	for pid, batch := range r.batches {
		if err := r.engine.Trace(pid); err != nil {
			if errs.Skippable(err) {
				r.logger.Warn("fd replacer: tracee gone", "pid", pid, "error", err)
				continue
			}
			return err
		}

		for _, rw := range batch {
			if err := r.rewriteOne(pid, rw); err != nil {
				r.logger.Warn("fd replacer: rewrite failed", "pid", pid, "fd", rw.fd, "error", err)
			}
		}

		if err := r.engine.Detach(pid); err != nil {
			r.logger.Warn("fd replacer: detach failed", "pid", pid, "error", err)
		}
	}
	return nil
}

// rewriteOne performs the six steps of spec.md §4.2 as separate injected
// syscalls (no code blob): get flags, open the new path, read+restore seek
// position, dup2 onto the original fd number, close the scratch fd.
func (r *FdReplacer) rewriteOne(pid int, rw fdRewrite) error {
	flags, err := r.engine.Syscall(pid, sysFcntl, uint64(rw.fd), uint64(sysF_GETFL))
	if err != nil {
		return err
	}

	pathBytes := append([]byte(rw.newPath), 0)
	return r.engine.WithMmap(pid, len(pathBytes), func(addr uintptr) error {
		if err := writeMemoryVia(r.engine, pid, addr, pathBytes); err != nil {
			return err
		}

		newFd, err := r.engine.Syscall(pid, sysOpen, uint64(addr), uint64(flags), 0)
		if err != nil {
			return err
		}

		pos, err := r.engine.Syscall(pid, sysLseek, uint64(rw.fd), 0, uint64(unix.SEEK_CUR))
		if err != nil {
			pos = 0
		}
		if _, err := r.engine.Syscall(pid, sysLseek, uint64(newFd), uint64(pos), uint64(unix.SEEK_SET)); err != nil {
			return err
		}

		if _, err := r.engine.Syscall(pid, sysDup2, uint64(newFd), uint64(rw.fd)); err != nil {
			return err
		}

		_, err = r.engine.Syscall(pid, sysClose, uint64(newFd))
		return err
	})
}

// writeMemoryVia writes data into the tracee at addr. FdReplacer drives the
// rewrite step by step through engine.Syscall — rather than a single
// internal/asm code blob — because each step's result (current flags, the
// new fd, the seek position) must come back into Go before the next step's
// arguments can be formed; that round-trip is exactly what run_codes isn't
// suited for. MmapReplacer, where no intermediate result crosses back into
// Go before the blob finishes, uses internal/asm directly instead.
func writeMemoryVia(engine *ptrace.Engine, pid int, addr uintptr, data []byte) error {
	return engine.WriteAt(pid, addr, data)
}
