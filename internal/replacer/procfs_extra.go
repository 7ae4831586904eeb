package replacer

import (
	"os"
	"path/filepath"
	"strconv"
)

// procCwdReadlink resolves /proc/<pid>/cwd. prometheus/procfs exposes
// fd-target resolution via Proc.FileDescriptorTargets but has no equivalent
// helper for cwd, so this one symlink read stays on stdlib os.Readlink
// rather than mixing library and manual /proc access for the same concern.
func procCwdReadlink(pid int) (string, error) {
	return os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "cwd"))
}
