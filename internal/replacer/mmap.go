package replacer

import (
	"log/slog"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/asm"
	"github.com/chaos-mesh/toda/internal/errs"
	"github.com/chaos-mesh/toda/internal/ptrace"
)

const (
	sysMmapNr  = 9
	sysMunmap  = 11
	sysOpenNr  = 2
	sysCloseNr = 3
)

type mmapRewrite struct {
	addr    uintptr
	length  uint64
	prot    int
	flags   int
	offset  int64
	newPath string
}

// MmapReplacer rewrites every memory mapping backed by a file under
// detectPath so it instead backs onto the corresponding file under newPath,
// preserving address, length, protection, and sharing semantics.
type MmapReplacer struct {
	fs     procfs.FS
	engine *ptrace.Engine
	logger *slog.Logger

	detectPath string
	newPath    string
	batches    map[int][]mmapRewrite
}

// NewMmapReplacer builds an MmapReplacer.
func NewMmapReplacer(fs procfs.FS, engine *ptrace.Engine, logger *slog.Logger) *MmapReplacer {
	return &MmapReplacer{fs: fs, engine: engine, logger: logger}
}

func (r *MmapReplacer) Prepare(detectPath, newPath string) error {
	r.detectPath = detectPath
	r.newPath = newPath
	r.batches = make(map[int][]mmapRewrite)

	procs, err := listOtherPids(r.fs)
	if err != nil {
		return err
	}

	for _, p := range procs {
		maps, err := p.ProcMaps()
		if err != nil {
			continue
		}

		var batch []mmapRewrite
		for _, m := range maps {
			if m.Pathname == "" {
				continue
			}
			rewritten, ok := rebuild(m.Pathname, r.detectPath, r.newPath)
			if !ok {
				continue
			}
			batch = append(batch, mmapRewrite{
				addr:    uintptr(m.StartAddr),
				length:  uint64(m.EndAddr - m.StartAddr),
				prot:    protFromPerms(m.Perms),
				flags:   flagsFromPerms(m.Perms),
				offset:  int64(m.Offset),
				newPath: rewritten,
			})
		}
		if len(batch) > 0 {
			r.batches[p.PID] = batch
		}
	}
	return nil
}

func (r *MmapReplacer) Run() error {
	for pid, batch := range r.batches {
		if err := r.engine.Trace(pid); err != nil {
			if errs.Skippable(err) {
				r.logger.Warn("mmap replacer: tracee gone", "pid", pid, "error", err)
				continue
			}
			return err
		}

		// Map order is preserved by iterating batch in its original
		// /proc/<pid>/maps order (appended in Prepare), so the address
		// space never grows a gap visible to other threads mid-rewrite.
		for _, rw := range batch {
			if err := r.rewriteOne(pid, rw); err != nil {
				r.logger.Warn("mmap replacer: rewrite failed", "pid", pid, "addr", rw.addr, "error", err)
			}
		}

		if err := r.engine.Detach(pid); err != nil {
			r.logger.Warn("mmap replacer: detach failed", "pid", pid, "error", err)
		}
	}
	return nil
}

// rewriteOne builds one straight-line program: munmap the original range,
// open the new path, mmap the same (address, length, prot, flags, offset)
// at that fixed address, close the transient fd, int3.
func (r *MmapReplacer) rewriteOne(pid int, rw mmapRewrite) error {
	pathBytes := append([]byte(rw.newPath), 0)
	scratch := len(pathBytes)

	return r.engine.WithMmap(pid, scratch, func(pathAddr uintptr) error {
		if err := r.engine.WriteAt(pid, pathAddr, pathBytes); err != nil {
			return err
		}

		return r.engine.RunCodes(pid, 256, func(_ uintptr) []byte {
			b := asm.NewBuilder()
			b.Syscall2(sysMunmap, uint64(rw.addr), rw.length)
			b.Syscall3(sysOpenNr, uint64(pathAddr), uint64(unix.O_RDWR), 0)

			// open()'s fd return is in rax; capture it into r8 (mmap's fd
			// argument register) before anything overwrites rax.
			b.MovR8FromRax()
			b.MovRdi(uint64(rw.addr))
			b.MovRsi(rw.length)
			b.MovRdx(uint64(rw.prot))
			b.MovR10(uint64(rw.flags | unix.MAP_FIXED))
			b.MovR9(uint64(rw.offset))
			b.MovRax(sysMmapNr)
			b.Syscall()

			// close(fd) — but the transient fd now only lives in r8 from
			// the instructions above, and close's argument register is
			// rdi, so thread it through one more register move before the
			// syscall number overwrites rax again.
			b.MovRdiFromR8()
			b.MovRax(sysCloseNr)
			b.Syscall()

			b.Int3()
			return b.Bytes()
		})
	})
}

func protFromPerms(perms string) int {
	prot := unix.PROT_NONE
	if len(perms) >= 3 {
		if perms[0] == 'r' {
			prot |= unix.PROT_READ
		}
		if perms[1] == 'w' {
			prot |= unix.PROT_WRITE
		}
		if perms[2] == 'x' {
			prot |= unix.PROT_EXEC
		}
	}
	return prot
}

func flagsFromPerms(perms string) int {
	if len(perms) >= 4 && perms[3] == 's' {
		return unix.MAP_SHARED
	}
	return unix.MAP_PRIVATE
}
