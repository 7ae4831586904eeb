// Package replacer implements the three process-state rewriters that make
// an already-running process transparently start traversing the new FUSE
// mount in place of the original path: open file descriptors, current
// working directories, and memory mappings.
package replacer

import (
	"os"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/chaos-mesh/toda/internal/errs"
)

// Replacer rewrites references to detectPath into newPath across every
// process in the PID namespace other than this one.
type Replacer interface {
	Prepare(detectPath, newPath string) error
	Run() error
}

// UnionReplacer runs every member replacer in sequence, collecting the
// first hard failure (attach/detach failures); per-object rewrite failures
// are the member replacers' own responsibility to log and skip.
type UnionReplacer struct {
	members []Replacer
}

// NewUnionReplacer builds a UnionReplacer over the given replacers, in
// prepare/run order.
func NewUnionReplacer(members ...Replacer) *UnionReplacer {
	return &UnionReplacer{members: members}
}

func (u *UnionReplacer) Prepare(detectPath, newPath string) error {
	for _, m := range u.members {
		if err := m.Prepare(detectPath, newPath); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnionReplacer) Run() error {
	for _, m := range u.members {
		if err := m.Run(); err != nil {
			return err
		}
	}
	return nil
}

// listOtherPids enumerates every pid in /proc except this process's own,
// the way each replacer in original_source walks procfs directly rather
// than going through a cached process table.
func listOtherPids(fs procfs.FS) ([]procfs.Proc, error) {
	self := os.Getpid()
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, &errs.TraceeError{Op: "enumerate /proc", Err: err}
	}

	others := make([]procfs.Proc, 0, len(procs))
	for _, p := range procs {
		if p.PID == self {
			continue
		}
		others = append(others, p)
	}
	return others, nil
}

// rebuild reports the suffix of target beyond detectPath, joined onto
// newPath, the way every replacer rebuilds a rewritten destination path.
func rebuild(target, detectPath, newPath string) (string, bool) {
	if !strings.HasPrefix(target, detectPath) {
		return "", false
	}
	suffix := strings.TrimPrefix(target, detectPath)
	return newPath + suffix, true
}
