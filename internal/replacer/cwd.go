package replacer

import (
	"log/slog"
	"sort"

	"github.com/prometheus/procfs"

	"github.com/chaos-mesh/toda/internal/errs"
	"github.com/chaos-mesh/toda/internal/ptrace"
)

// CwdReplacer chdir's every process whose current directory resolves
// beneath detectPath to the corresponding directory beneath newPath.
type CwdReplacer struct {
	fs     procfs.FS
	engine *ptrace.Engine
	logger *slog.Logger

	detectPath string
	newPath    string
	targets    map[int]string // pid -> rewritten cwd
}

// NewCwdReplacer builds a CwdReplacer.
func NewCwdReplacer(fs procfs.FS, engine *ptrace.Engine, logger *slog.Logger) *CwdReplacer {
	return &CwdReplacer{fs: fs, engine: engine, logger: logger}
}

func (r *CwdReplacer) Prepare(detectPath, newPath string) error {
	r.detectPath = detectPath
	r.newPath = newPath
	r.targets = make(map[int]string)

	procs, err := listOtherPids(r.fs)
	if err != nil {
		return err
	}

	for _, p := range procs {
		cwd, err := cwdOf(p)
		if err != nil {
			continue // process exited or cwd unreadable; skip
		}
		if rewritten, ok := rebuild(cwd, r.detectPath, r.newPath); ok {
			r.targets[p.PID] = rewritten
		}
	}
	return nil
}

func (r *CwdReplacer) Run() error {
	// Deterministic order only to keep behavior reproducible in tests; the
	// spec doesn't require any particular process ordering.
	pids := make([]int, 0, len(r.targets))
	for pid := range r.targets {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	for _, pid := range pids {
		newCwd := r.targets[pid]

		if err := r.engine.Trace(pid); err != nil {
			if errs.Skippable(err) {
				r.logger.Warn("cwd replacer: tracee gone", "pid", pid, "error", err)
				continue
			}
			return err
		}

		if err := r.engine.Chdir(pid, newCwd); err != nil {
			r.logger.Warn("cwd replacer: chdir failed", "pid", pid, "error", err)
		}

		if err := r.engine.Detach(pid); err != nil {
			r.logger.Warn("cwd replacer: detach failed", "pid", pid, "error", err)
		}
	}
	return nil
}

// cwdOf resolves a process's current working directory. procfs.Proc has no
// direct Cwd accessor, so this reads the /proc/<pid>/cwd symlink the same
// way Proc's own fd-target helpers resolve /proc/<pid>/fd/N.
func cwdOf(p procfs.Proc) (string, error) {
	return procCwdReadlink(p.PID)
}
