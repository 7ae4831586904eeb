// Package inodetable implements the inode→path mapping every path-taking
// FUSE operation consults to resolve a parent inode to a concrete host path.
package inodetable

import (
	"sync"

	"github.com/chaos-mesh/toda/internal/errs"
)

// RootInode is the inode number the kernel reserves for the mount root.
const RootInode uint64 = 1

// node is one InodeTable entry: the outstanding-lookup count and every path
// the kernel has learnt for this inode (hard links, renames).
type node struct {
	refCount uint64
	paths    []string // ordered set; append-only except for explicit removal
}

func (n *node) hasPath(path string) bool {
	for _, p := range n.paths {
		if p == path {
			return true
		}
	}
	return false
}

func (n *node) addPath(path string) {
	if !n.hasPath(path) {
		n.paths = append(n.paths, path)
	}
}

func (n *node) removePath(path string) {
	for i, p := range n.paths {
		if p == path {
			n.paths = append(n.paths[:i], n.paths[i+1:]...)
			return
		}
	}
}

// Table is the inode↔path mapping of spec.md §3's InodeTable. The zero value
// is not usable; construct with New.
type Table struct {
	mu    sync.RWMutex
	nodes map[uint64]*node
}

// New builds an empty Table with the mount root preseeded at RootInode.
func New(rootPath string) *Table {
	t := &Table{nodes: make(map[uint64]*node)}
	t.nodes[RootInode] = &node{refCount: 1, paths: []string{rootPath}}
	return t
}

// Lookup records a fresh lookup of ino under path, creating the node on
// first reference and incrementing its lookup count. Lookups never replace
// the path set; they add to it.
func (t *Table) Lookup(ino uint64, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[ino]
	if !ok {
		n = &node{}
		t.nodes[ino] = n
	}
	n.refCount++
	n.addPath(path)
}

// Path returns any known path for ino, preferring an exact match-free lookup
// of the first recorded path — callers that need a specific alias should use
// Paths.
func (t *Table) Path(ino uint64) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[ino]
	if !ok || len(n.paths) == 0 {
		return "", &errs.InodeMissError{Ino: ino}
	}
	return n.paths[0], nil
}

// Paths returns every path currently recorded for ino.
func (t *Table) Paths(ino uint64) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[ino]
	if !ok {
		return nil, &errs.InodeMissError{Ino: ino}
	}
	out := make([]string, len(n.paths))
	copy(out, n.paths)
	return out, nil
}

// RemovePath removes path from ino's entry (unlink/rmdir/rename of the old
// name) without touching refCount; the entry itself is only dropped by
// Forget reaching zero.
func (t *Table) RemovePath(ino uint64, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n, ok := t.nodes[ino]; ok {
		n.removePath(path)
	}
}

// Forget decrements ino's refCount by n and drops the entry on reaching
// zero. Forgetting an inode that isn't tracked is a no-op, matching FUSE's
// tolerance of redundant forgets during teardown.
func (t *Table) Forget(ino uint64, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.nodes[ino]
	if !ok {
		return
	}
	if n >= entry.refCount {
		delete(t.nodes, ino)
		return
	}
	entry.refCount -= n
}

// RefCount reports the current lookup count for ino, or 0 if untracked.
func (t *Table) RefCount(ino uint64) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n, ok := t.nodes[ino]; ok {
		return n.refCount
	}
	return 0
}
