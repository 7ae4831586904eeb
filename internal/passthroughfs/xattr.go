package passthroughfs

import (
	"context"

	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/filter"
)

func (fs *FileSystem) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	path, err := fs.inodes.Path(uint64(op.Inode))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(path)

	if err := fs.pipeline.Pre(ctx, filter.Getxattr, rel); err != nil {
		return hostErrno(err)
	}

	n, err := unix.Lgetxattr(path, op.Name, op.Dst)
	if err != nil {
		return hostErrno(err)
	}
	op.BytesRead = n
	return nil
}

func (fs *FileSystem) SetXattr(ctx context.Context, op *fuseops.SetXattrOp) error {
	path, err := fs.inodes.Path(uint64(op.Inode))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(path)

	if err := fs.pipeline.Pre(ctx, filter.Setxattr, rel); err != nil {
		return hostErrno(err)
	}
	if err := unix.Lsetxattr(path, op.Name, op.Value, int(op.Flags)); err != nil {
		return hostErrno(err)
	}
	return nil
}

func (fs *FileSystem) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	path, err := fs.inodes.Path(uint64(op.Inode))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(path)

	if err := fs.pipeline.Pre(ctx, filter.Listxattr, rel); err != nil {
		return hostErrno(err)
	}

	n, err := unix.Llistxattr(path, op.Dst)
	if err != nil {
		return hostErrno(err)
	}
	op.BytesRead = n
	return nil
}

func (fs *FileSystem) RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp) error {
	path, err := fs.inodes.Path(uint64(op.Inode))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(path)

	if err := fs.pipeline.Pre(ctx, filter.Removexattr, rel); err != nil {
		return hostErrno(err)
	}
	if err := unix.Lremovexattr(path, op.Name); err != nil {
		return hostErrno(err)
	}
	return nil
}
