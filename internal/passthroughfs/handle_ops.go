package passthroughfs

import (
	"context"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/filter"
	"github.com/chaos-mesh/toda/internal/fsreply"
)

func (fs *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	path, err := fs.inodes.Path(uint64(op.Inode))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(path)

	if err := fs.pipeline.Pre(ctx, filter.Opendir, rel); err != nil {
		return hostErrno(err)
	}

	op.Handle = fuseops.HandleID(fs.handles.OpenDir(path))
	return nil
}

func (fs *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	dh, err := fs.handles.Dir(uint64(op.Handle))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(dh.OriginalPath)

	if err := fs.pipeline.Pre(ctx, filter.Readdir, rel); err != nil {
		return hostErrno(err)
	}

	if !dh.Snapshotted() {
		f, err := unix.Open(dh.OriginalPath, unix.O_RDONLY|unix.O_DIRECTORY, 0)
		if err != nil {
			return hostErrno(err)
		}
		names, err := readAllDirNames(f)
		unix.Close(f)
		if err != nil {
			return hostErrno(err)
		}

		entries := make([]handleDirEntry, 0, len(names))
		for _, name := range names {
			var st unix.Stat_t
			childPath := dh.OriginalPath + "/" + name
			if unix.Lstat(childPath, &st) != nil {
				continue
			}
			fs.inodes.Lookup(st.Ino, childPath)
			entries = append(entries, handleDirEntry{name: name, ino: st.Ino, typ: direntTypeFromStatMode(st.Mode)})
		}
		dh.Snapshot(toTableEntries(entries))
	}

	entries := dh.Entries
	if int(op.Offset) > len(entries) {
		op.Data = nil
		return nil
	}

	buf := make([]byte, 0, op.Size)
	offset := int(op.Offset)
	for offset < len(entries) {
		e := entries[offset]
		offset++
		n := fuseutil.WriteDirent(buf[len(buf):cap(buf)], fuseops.Dirent{
			Offset: fuseops.DirOffset(offset),
			Inode:  fuseops.InodeID(e.Ino),
			Name:   e.Name,
			Type:   fuseops.DirentType(e.Kind),
		})
		if n == 0 {
			break
		}
		buf = buf[:len(buf)+n]
	}

	op.Data = buf
	return nil
}

func (fs *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fs.handles.ReleaseDir(uint64(op.Handle))
	return nil
}

func (fs *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	path, err := fs.inodes.Path(uint64(op.Inode))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(path)

	if err := fs.pipeline.Pre(ctx, filter.Open, rel); err != nil {
		return hostErrno(err)
	}

	fd, err := unix.Open(path, int(op.Flags), 0)
	if err != nil {
		return hostErrno(err)
	}
	op.Handle = fuseops.HandleID(fs.handles.OpenFile(fd, path))
	return nil
}

func (fs *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	fh, err := fs.handles.File(uint64(op.Handle))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(fh.OriginalPath)

	if err := fs.pipeline.Pre(ctx, filter.Read, rel); err != nil {
		return hostErrno(err)
	}

	buf := make([]byte, op.Size)
	n, err := unix.Pread(fh.Fd, buf, op.Offset)
	if err != nil {
		return hostErrno(err)
	}
	buf = buf[:n]

	reply := fsreply.Reply{Data: &fsreply.Data{Data: buf}}
	fs.pipeline.PostReply(filter.Read, rel, &reply)

	op.Data = reply.Data.Data
	return nil
}

func (fs *FileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	fh, err := fs.handles.File(uint64(op.Handle))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(fh.OriginalPath)

	if err := fs.pipeline.Pre(ctx, filter.Write, rel); err != nil {
		return hostErrno(err)
	}

	fs.pipeline.PreWriteData(rel, op.Data)

	if _, err := unix.Pwrite(fh.Fd, op.Data, op.Offset); err != nil {
		return hostErrno(err)
	}
	return nil
}

func (fs *FileSystem) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	fh, err := fs.handles.File(uint64(op.Handle))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(fh.OriginalPath)

	if err := fs.pipeline.Pre(ctx, filter.Fsync, rel); err != nil {
		return hostErrno(err)
	}
	if err := unix.Fsync(fh.Fd); err != nil {
		return hostErrno(err)
	}
	return nil
}

func (fs *FileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	fh, err := fs.handles.File(uint64(op.Handle))
	if err != nil {
		return hostErrno(err)
	}
	rel := fs.relPath(fh.OriginalPath)
	return hostErrno(fs.pipeline.Pre(ctx, filter.Flush, rel))
}

func (fs *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fh, err := fs.handles.File(uint64(op.Handle))
	if err == nil {
		unix.Close(fh.Fd)
	}
	fs.handles.ReleaseFile(uint64(op.Handle))
	return nil
}

type handleDirEntry struct {
	name string
	ino  uint64
	typ  fuseops.DirentType
}
