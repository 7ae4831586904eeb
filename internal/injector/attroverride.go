package injector

import (
	"time"

	"github.com/chaos-mesh/toda/internal/filter"
	"github.com/chaos-mesh/toda/internal/fsreply"
)

// AttrFields is the set of stat fields an AttrOverride injector may force;
// a nil field is left untouched.
type AttrFields struct {
	Ino    *uint64
	Size   *uint64
	Blocks *uint64
	Atime  *time.Time
	Mtime  *time.Time
	Ctime  *time.Time
	Kind   *fsreply.Kind
	Perm   *uint16
	Nlink  *uint32
	Uid    *uint32
	Gid    *uint32
	Rdev   *uint32
}

// AttrOverride forces fields of a stat reply for matching paths, regardless
// of what the host filesystem reported.
type AttrOverride struct {
	baseInjector

	filter *filter.Filter
	fields AttrFields
}

// NewAttrOverride builds an AttrOverride injector.
func NewAttrOverride(f *filter.Filter, fields AttrFields) *AttrOverride {
	return &AttrOverride{filter: f, fields: fields}
}

func (a *AttrOverride) apply(attr *fsreply.Attr) {
	f := a.fields
	if f.Ino != nil {
		attr.Ino = *f.Ino
	}
	if f.Size != nil {
		attr.Size = *f.Size
	}
	if f.Blocks != nil {
		attr.Blocks = *f.Blocks
	}
	if f.Atime != nil {
		attr.Atime = *f.Atime
	}
	if f.Mtime != nil {
		attr.Mtime = *f.Mtime
	}
	if f.Ctime != nil {
		attr.Ctime = *f.Ctime
	}
	if f.Kind != nil {
		attr.Kind = *f.Kind
	}
	if f.Perm != nil {
		attr.Perm = *f.Perm
	}
	if f.Nlink != nil {
		attr.Nlink = *f.Nlink
	}
	if f.Uid != nil {
		attr.Uid = *f.Uid
	}
	if f.Gid != nil {
		attr.Gid = *f.Gid
	}
	if f.Rdev != nil {
		attr.Rdev = *f.Rdev
	}
}

func (a *AttrOverride) PostReply(method filter.Method, path string, reply *fsreply.Reply) {
	if !a.filter.Match(method, path) {
		return
	}

	switch {
	case reply.Entry != nil:
		a.apply(&reply.Entry.Attr)
	case reply.Attr != nil:
		a.apply(&reply.Attr.Attr)
	}
}

var _ Injector = (*AttrOverride)(nil)
