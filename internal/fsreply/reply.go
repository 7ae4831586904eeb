// Package fsreply defines the reply shapes the InjectorPipeline mutates
// in-place: a host-syscall-derived stat attribute and a raw data payload.
// Keeping these independent of any specific FUSE binding lets
// internal/injector stay decoupled from internal/passthroughfs; the latter
// converts to/from github.com/jacobsa/fuse's fuseops types at its own
// boundary.
package fsreply

import "time"

// Kind is the file type reported in a stat reply. Unknown covers host modes
// outside the standard seven (spec.md §4.4's "attribute conversion").
type Kind int

const (
	KindUnknown Kind = iota
	KindRegularFile
	KindDirectory
	KindSymlink
	KindNamedPipe
	KindCharDevice
	KindBlockDevice
	KindSocket
)

// Attr is the mutable attribute record carried in Entry/AttrReply.
type Attr struct {
	Ino    uint64
	Size   uint64
	Blocks uint64
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Kind   Kind
	Perm   uint16
	Nlink  uint32
	Uid    uint32
	Gid    uint32
	Rdev   uint32
}

// Entry is the reply to lookup.
type Entry struct {
	Attr Attr
}

// AttrReply is the reply to getattr/setattr.
type AttrReply struct {
	Attr Attr
}

// Data is the reply to read. Write payloads reach injectors as a plain
// []byte through PreWriteData, not wrapped in Data.
type Data struct {
	Data []byte
}

// Reply is a tagged union over the reply shapes an injector can mutate.
// Exactly one field is non-nil for any given call.
type Reply struct {
	Entry *Entry
	Attr  *AttrReply
	Data  *Data
}
