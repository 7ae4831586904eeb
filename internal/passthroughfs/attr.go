// Package passthroughfs implements the FUSE filesystem itself: every
// operation resolves an inode to a path under the shadow root, performs the
// equivalent host syscall, and runs the result through the injector
// pipeline before replying to the kernel. Grounded on the upstream toda
// HookFs (original_source/src/hookfs/mod.rs), which keeps an inode→path map
// keyed directly on the host stat's st_ino rather than minting synthetic
// inode numbers.
package passthroughfs

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/fsreply"
)

// Linux getdents d_type values; used directly rather than through named
// fuseops constants since fuseops.DirentType is a plain uint32 alias over
// the same values.
const (
	dtUnknown fuseops.DirentType = 0
	dtFIFO    fuseops.DirentType = 1
	dtChar    fuseops.DirentType = 2
	dtDir     fuseops.DirentType = 4
	dtBlock   fuseops.DirentType = 6
	dtRegular fuseops.DirentType = 8
	dtLink    fuseops.DirentType = 10
	dtSocket  fuseops.DirentType = 12
)

// statAttr converts a host lstat(2) result into the attribute shape FUSE
// expects, the same fields upstream's convert_libc_stat_to_fuse_stat fills.
func statAttr(st *unix.Stat_t) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  uint64(st.Size),
		Nlink: uint64(st.Nlink),
		Mode:  fileModeFromStat(st.Mode),
		Atime: time.Unix(st.Atim.Sec, st.Atim.Nsec),
		Mtime: time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		Ctime: time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		Uid:   st.Uid,
		Gid:   st.Gid,
	}
}

func fileModeFromStat(mode uint32) os.FileMode {
	perm := os.FileMode(mode & 0777)
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return perm | os.ModeDir
	case unix.S_IFLNK:
		return perm | os.ModeSymlink
	case unix.S_IFIFO:
		return perm | os.ModeNamedPipe
	case unix.S_IFSOCK:
		return perm | os.ModeSocket
	case unix.S_IFBLK:
		return perm | os.ModeDevice
	case unix.S_IFCHR:
		return perm | os.ModeDevice | os.ModeCharDevice
	default:
		return perm
	}
}

func direntTypeFromStatMode(mode uint32) fuseops.DirentType {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return dtDir
	case unix.S_IFLNK:
		return dtLink
	case unix.S_IFIFO:
		return dtFIFO
	case unix.S_IFSOCK:
		return dtSocket
	case unix.S_IFBLK:
		return dtBlock
	case unix.S_IFCHR:
		return dtChar
	case unix.S_IFREG:
		return dtRegular
	default:
		return dtUnknown
	}
}

// kindFromFileMode maps a Go FileMode's type bits onto the fsreply.Kind
// enum the AttrOverride injector mutates.
func kindFromFileMode(m os.FileMode) fsreply.Kind {
	switch {
	case m&os.ModeDir != 0:
		return fsreply.KindDirectory
	case m&os.ModeSymlink != 0:
		return fsreply.KindSymlink
	case m&os.ModeNamedPipe != 0:
		return fsreply.KindNamedPipe
	case m&os.ModeSocket != 0:
		return fsreply.KindSocket
	case m&os.ModeCharDevice != 0:
		return fsreply.KindCharDevice
	case m&os.ModeDevice != 0:
		return fsreply.KindBlockDevice
	case m.IsRegular():
		return fsreply.KindRegularFile
	default:
		return fsreply.KindUnknown
	}
}

func fileModeFromKindPerm(k fsreply.Kind, perm uint16) os.FileMode {
	mode := os.FileMode(perm) & os.ModePerm
	switch k {
	case fsreply.KindDirectory:
		mode |= os.ModeDir
	case fsreply.KindSymlink:
		mode |= os.ModeSymlink
	case fsreply.KindNamedPipe:
		mode |= os.ModeNamedPipe
	case fsreply.KindSocket:
		mode |= os.ModeSocket
	case fsreply.KindCharDevice:
		mode |= os.ModeDevice | os.ModeCharDevice
	case fsreply.KindBlockDevice:
		mode |= os.ModeDevice
	}
	return mode
}

// attrToReply packages attributes for injector consumption. ino/blocks/rdev
// ride along for AttrOverride/filter purposes even though jacobsa/fuse's
// InodeAttributes has no field for them; they are not written back.
func attrToReply(ino uint64, a fuseops.InodeAttributes, blocks uint64, rdev uint32) fsreply.Attr {
	return fsreply.Attr{
		Ino:    ino,
		Size:   a.Size,
		Blocks: blocks,
		Atime:  a.Atime,
		Mtime:  a.Mtime,
		Ctime:  a.Ctime,
		Kind:   kindFromFileMode(a.Mode),
		Perm:   uint16(a.Mode.Perm()),
		Nlink:  uint32(a.Nlink),
		Uid:    a.Uid,
		Gid:    a.Gid,
		Rdev:   rdev,
	}
}

// applyReplyAttr writes an injector-mutated fsreply.Attr back onto the
// fuseops attributes that actually go out on the wire.
func applyReplyAttr(a *fuseops.InodeAttributes, r fsreply.Attr) {
	a.Size = r.Size
	a.Atime = r.Atime
	a.Mtime = r.Mtime
	a.Ctime = r.Ctime
	a.Nlink = uint64(r.Nlink)
	a.Uid = r.Uid
	a.Gid = r.Gid
	a.Mode = fileModeFromKindPerm(r.Kind, r.Perm)
}
