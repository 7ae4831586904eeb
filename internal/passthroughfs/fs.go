package passthroughfs

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/filter"
	"github.com/chaos-mesh/toda/internal/fsreply"
	"github.com/chaos-mesh/toda/internal/handletable"
	"github.com/chaos-mesh/toda/internal/injector"
	"github.com/chaos-mesh/toda/internal/inodetable"
)

// FileSystem serves a FUSE mount backed by shadowRoot, the directory the
// original target path was moved aside to. Inode IDs handed to the kernel
// are the host filesystem's own st_ino, as in the upstream HookFs's
// inode_map, except for the mount root, which the InodeTable preseeds at
// inodetable.RootInode.
type FileSystem struct {
	shadowRoot string
	inodes     *inodetable.Table
	handles    *handletable.Table
	pipeline   *injector.Pipeline
}

// New builds a FileSystem rooted at shadowRoot.
func New(shadowRoot string, pipeline *injector.Pipeline) *FileSystem {
	return &FileSystem{
		shadowRoot: shadowRoot,
		inodes:     inodetable.New(shadowRoot),
		handles:    handletable.New(),
		pipeline:   pipeline,
	}
}

// Destroy is a no-op; there is no in-memory state that needs flushing
// beyond what the kernel already serialized through Flush/Sync.
func (fs *FileSystem) Destroy() {}

// relPath turns a host path under shadowRoot into the mount-relative path
// that injector filters match against (spec.md §6's path globs).
func (fs *FileSystem) relPath(hostPath string) string {
	rel := strings.TrimPrefix(hostPath, fs.shadowRoot)
	if rel == "" {
		return "/"
	}
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel
}

// hostErrno extracts the syscall.Errno an injector Fault rule or a host
// syscall produced, defaulting to EIO for anything else.
func hostErrno(err error) error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}

func (fs *FileSystem) childPath(parent fuseops.InodeID, name string) (string, error) {
	parentPath, err := fs.inodes.Path(uint64(parent))
	if err != nil {
		return "", err
	}
	return filepath.Join(parentPath, name), nil
}

// entryFor lstats childPath, records it in the InodeTable under the host
// inode number, and returns the ChildInodeEntry the kernel expects.
func (fs *FileSystem) entryFor(childPath string) (fuseops.ChildInodeEntry, unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Lstat(childPath, &st); err != nil {
		return fuseops.ChildInodeEntry{}, st, err
	}
	fs.inodes.Lookup(st.Ino, childPath)
	return fuseops.ChildInodeEntry{
		Child:      fuseops.InodeID(st.Ino),
		Generation: 0,
		Attributes: statAttr(&st),
	}, st, nil
}

func (fs *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	if err := fs.pipeline.Pre(ctx, filter.Statfs, "/"); err != nil {
		return hostErrno(err)
	}

	var st unix.Statfs_t
	if err := unix.Statfs(fs.shadowRoot, &st); err != nil {
		return hostErrno(err)
	}

	op.BlockSize = uint32(st.Bsize)
	op.Blocks = st.Blocks
	op.BlocksFree = st.Bfree
	op.BlocksAvailable = st.Bavail
	op.IoSize = uint32(st.Bsize)
	op.Inodes = st.Files
	op.InodesFree = st.Ffree
	return nil
}

func (fs *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parentPath, err := fs.inodes.Path(uint64(op.Parent))
	if err != nil {
		return hostErrno(err)
	}
	childPath := filepath.Join(parentPath, op.Name)
	rel := fs.relPath(childPath)

	if err := fs.pipeline.Pre(ctx, filter.Lookup, rel); err != nil {
		return hostErrno(err)
	}

	entry, st, err := fs.entryFor(childPath)
	if err != nil {
		return hostErrno(err)
	}

	reply := fsreply.Reply{Entry: &fsreply.Entry{Attr: attrToReply(st.Ino, entry.Attributes, uint64(st.Blocks), uint32(st.Rdev))}}
	fs.pipeline.PostReply(filter.Lookup, rel, &reply)
	applyReplyAttr(&entry.Attributes, reply.Entry.Attr)

	op.Entry = entry
	return nil
}

func (fs *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	path, err := fs.inodes.Path(uint64(op.Inode))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(path)

	if err := fs.pipeline.Pre(ctx, filter.Getattr, rel); err != nil {
		return hostErrno(err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return hostErrno(err)
	}

	attrs := statAttr(&st)
	reply := fsreply.Reply{Attr: &fsreply.AttrReply{Attr: attrToReply(st.Ino, attrs, uint64(st.Blocks), uint32(st.Rdev))}}
	fs.pipeline.PostReply(filter.Getattr, rel, &reply)
	applyReplyAttr(&attrs, reply.Attr.Attr)

	op.Attributes = attrs
	return nil
}

func (fs *FileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	path, err := fs.inodes.Path(uint64(op.Inode))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(path)

	if err := fs.pipeline.Pre(ctx, filter.Setattr, rel); err != nil {
		return hostErrno(err)
	}

	if op.Size != nil {
		if err := unix.Truncate(path, int64(*op.Size)); err != nil {
			return hostErrno(err)
		}
	}
	if op.Mode != nil {
		if err := unix.Fchmodat(unix.AT_FDCWD, path, uint32(op.Mode.Perm()), unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return hostErrno(err)
		}
	}
	if op.Atime != nil || op.Mtime != nil {
		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return hostErrno(err)
		}
		atime := unix.NsecToTimeval(st.Atim.Nano())
		mtime := unix.NsecToTimeval(st.Mtim.Nano())
		if op.Atime != nil {
			atime = unix.NsecToTimeval(op.Atime.UnixNano())
		}
		if op.Mtime != nil {
			mtime = unix.NsecToTimeval(op.Mtime.UnixNano())
		}
		if err := unix.Lutimes(path, []unix.Timeval{atime, mtime}); err != nil {
			return hostErrno(err)
		}
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return hostErrno(err)
	}
	attrs := statAttr(&st)
	reply := fsreply.Reply{Attr: &fsreply.AttrReply{Attr: attrToReply(st.Ino, attrs, uint64(st.Blocks), uint32(st.Rdev))}}
	fs.pipeline.PostReply(filter.Setattr, rel, &reply)
	applyReplyAttr(&attrs, reply.Attr.Attr)

	op.Attributes = attrs
	return nil
}

func (fs *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	fs.inodes.Forget(uint64(op.ID), uint64(op.N))
	return nil
}
