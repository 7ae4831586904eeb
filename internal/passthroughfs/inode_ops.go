package passthroughfs

import (
	"context"

	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/filter"
)

func (fs *FileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	childPath, err := fs.childPath(op.Parent, op.Name)
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(childPath)

	if err := fs.pipeline.Pre(ctx, filter.Mkdir, rel); err != nil {
		return hostErrno(err)
	}
	if err := unix.Mkdir(childPath, uint32(op.Mode.Perm())); err != nil {
		return hostErrno(err)
	}

	entry, _, err := fs.entryFor(childPath)
	if err != nil {
		return hostErrno(err)
	}
	op.Entry = entry
	return nil
}

func (fs *FileSystem) MkNode(ctx context.Context, op *fuseops.MkNodeOp) error {
	childPath, err := fs.childPath(op.Parent, op.Name)
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(childPath)

	if err := fs.pipeline.Pre(ctx, filter.Mknod, rel); err != nil {
		return hostErrno(err)
	}
	if err := unix.Mknod(childPath, uint32(op.Mode), int(op.Rdev)); err != nil {
		return hostErrno(err)
	}

	entry, _, err := fs.entryFor(childPath)
	if err != nil {
		return hostErrno(err)
	}
	op.Entry = entry
	return nil
}

func (fs *FileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	childPath, err := fs.childPath(op.Parent, op.Name)
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(childPath)

	if err := fs.pipeline.Pre(ctx, filter.Create, rel); err != nil {
		return hostErrno(err)
	}

	fd, err := unix.Open(childPath, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, uint32(op.Mode.Perm()))
	if err != nil {
		return hostErrno(err)
	}

	entry, _, err := fs.entryFor(childPath)
	if err != nil {
		unix.Close(fd)
		return hostErrno(err)
	}
	op.Entry = entry
	op.Handle = fuseops.HandleID(fs.handles.OpenFile(fd, childPath))
	return nil
}

func (fs *FileSystem) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	childPath, err := fs.childPath(op.Parent, op.Name)
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(childPath)

	if err := fs.pipeline.Pre(ctx, filter.Symlink, rel); err != nil {
		return hostErrno(err)
	}
	if err := unix.Symlink(op.Target, childPath); err != nil {
		return hostErrno(err)
	}

	entry, _, err := fs.entryFor(childPath)
	if err != nil {
		return hostErrno(err)
	}
	op.Entry = entry
	return nil
}

func (fs *FileSystem) CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) error {
	targetPath, err := fs.inodes.Path(uint64(op.Target))
	if err != nil {
		return hostErrno(err)
	}
	childPath, err := fs.childPath(op.Parent, op.Name)
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(childPath)

	if err := fs.pipeline.Pre(ctx, filter.Link, rel); err != nil {
		return hostErrno(err)
	}
	if err := unix.Link(targetPath, childPath); err != nil {
		return hostErrno(err)
	}

	entry, _, err := fs.entryFor(childPath)
	if err != nil {
		return hostErrno(err)
	}
	op.Entry = entry
	return nil
}

func (fs *FileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	oldPath, err := fs.childPath(op.OldParent, op.OldName)
	if err != nil {
		return hostErrno(err)
	}
	newPath, err := fs.childPath(op.NewParent, op.NewName)
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(oldPath)

	if err := fs.pipeline.Pre(ctx, filter.Rename, rel); err != nil {
		return hostErrno(err)
	}
	if err := unix.Rename(oldPath, newPath); err != nil {
		return hostErrno(err)
	}

	// The InodeTable keeps the old alias around until ForgetInode; record the
	// new path and drop the stale one so future lookups resolve correctly.
	var st unix.Stat_t
	if err := unix.Lstat(newPath, &st); err == nil {
		fs.inodes.Lookup(st.Ino, newPath)
		fs.inodes.RemovePath(st.Ino, oldPath)
	}
	return nil
}

func (fs *FileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	childPath, err := fs.childPath(op.Parent, op.Name)
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(childPath)

	if err := fs.pipeline.Pre(ctx, filter.Rmdir, rel); err != nil {
		return hostErrno(err)
	}

	var st unix.Stat_t
	hadStat := unix.Lstat(childPath, &st) == nil

	if err := unix.Rmdir(childPath); err != nil {
		return hostErrno(err)
	}
	if hadStat {
		fs.inodes.RemovePath(st.Ino, childPath)
	}
	return nil
}

func (fs *FileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	childPath, err := fs.childPath(op.Parent, op.Name)
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(childPath)

	if err := fs.pipeline.Pre(ctx, filter.Unlink, rel); err != nil {
		return hostErrno(err)
	}

	var st unix.Stat_t
	hadStat := unix.Lstat(childPath, &st) == nil

	if err := unix.Unlink(childPath); err != nil {
		return hostErrno(err)
	}
	if hadStat {
		fs.inodes.RemovePath(st.Ino, childPath)
	}
	return nil
}

func (fs *FileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	path, err := fs.inodes.Path(uint64(op.Inode))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(path)

	if err := fs.pipeline.Pre(ctx, filter.Readlink, rel); err != nil {
		return hostErrno(err)
	}

	buf := make([]byte, unix.PathMax)
	n, err := unix.Readlink(path, buf)
	if err != nil {
		return hostErrno(err)
	}
	op.Target = string(buf[:n])
	return nil
}
