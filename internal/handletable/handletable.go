// Package handletable implements the slab-indexed open-file and
// open-directory handle tables of spec.md §3's HandleTable.
package handletable

import (
	"sync"

	"github.com/chaos-mesh/toda/internal/errs"
)

// FileHandle is an open regular file: the host fd backing it and the path
// it was opened against. FUSE's ReadFileOp/WriteFileOp carry an explicit
// Offset on every call (the kernel owns the file position, not this
// process), so reads and writes go straight to pread/pwrite at that offset
// with no handle-local position to track or serialize.
type FileHandle struct {
	Fd           int
	OriginalPath string
}

// DirEntry is one snapshotted directory entry, attributed with its own
// inode so the caller can feed it to the InodeTable.
type DirEntry struct {
	Name string
	Ino  uint64
	Kind uint32
}

// DirHandle is an open directory: its snapshotted entries (taken once, at
// first readdir per handle) and the path it was opened against.
type DirHandle struct {
	OriginalPath string
	Entries      []DirEntry // snapshot taken lazily on first Readdir call
	snapshotted  bool
}

// Table is the combined file-handle / dir-handle slab. File and directory
// handles are allocated from the same dense counter so a stale handle
// number can never alias a live handle of the other kind.
type Table struct {
	mu      sync.RWMutex
	next    uint64
	files   map[uint64]*FileHandle
	dirs    map[uint64]*DirHandle
}

// New builds an empty Table.
func New() *Table {
	return &Table{files: make(map[uint64]*FileHandle), dirs: make(map[uint64]*DirHandle)}
}

// OpenFile allocates a new file handle.
func (t *Table) OpenFile(fd int, path string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	fh := t.next
	t.files[fh] = &FileHandle{Fd: fd, OriginalPath: path}
	return fh
}

// OpenDir allocates a new directory handle.
func (t *Table) OpenDir(path string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	dh := t.next
	t.dirs[dh] = &DirHandle{OriginalPath: path}
	return dh
}

// File looks up a live file handle.
func (t *Table) File(fh uint64) (*FileHandle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	f, ok := t.files[fh]
	if !ok {
		return nil, &errs.FhMissError{Fh: fh}
	}
	return f, nil
}

// Dir looks up a live directory handle.
func (t *Table) Dir(dh uint64) (*DirHandle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d, ok := t.dirs[dh]
	if !ok {
		return nil, &errs.FhMissError{Fh: dh}
	}
	return d, nil
}

// ReleaseFile invalidates a file handle. Releasing an already-invalid handle
// is a no-op, matching FUSE's tolerance of redundant release calls.
func (t *Table) ReleaseFile(fh uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, fh)
}

// ReleaseDir invalidates a directory handle.
func (t *Table) ReleaseDir(dh uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dirs, dh)
}

// Snapshot records entries against dh's first-call snapshot if one hasn't
// been taken yet, and reports whether it set the snapshot (false means a
// prior snapshot is already in place and entries was ignored).
func (d *DirHandle) Snapshot(entries []DirEntry) bool {
	if d.snapshotted {
		return false
	}
	d.Entries = entries
	d.snapshotted = true
	return true
}

// Snapshotted reports whether this handle's directory iterator has already
// been materialized.
func (d *DirHandle) Snapshotted() bool {
	return d.snapshotted
}
