package injector

import (
	"fmt"
	"syscall"
	"time"

	"github.com/chaos-mesh/toda/internal/fsreply"
	"github.com/chaos-mesh/toda/internal/injectorconfig"
)

// Build compiles decoded config entries into concrete injectors, in order.
// Ordering is preserved because it's caller-visible: Pipeline.Pre consults
// injectors in declared order and the first fault wins.
func Build(entries []injectorconfig.Entry) ([]Injector, error) {
	injectors := make([]Injector, 0, len(entries))
	for i, e := range entries {
		inj, err := buildOne(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		injectors = append(injectors, inj)
	}
	return injectors, nil
}

func buildOne(e injectorconfig.Entry) (Injector, error) {
	switch e.Type {
	case injectorconfig.TypeLatency:
		f, err := e.Latency.BuildFilter()
		if err != nil {
			return nil, err
		}
		return NewLatency(e.Latency.Latency, f), nil

	case injectorconfig.TypeFault:
		f, err := e.Fault.BuildFilter()
		if err != nil {
			return nil, err
		}
		errnos := make([]WeightedErrno, 0, len(e.Fault.Faults))
		for _, fe := range e.Fault.Faults {
			errnos = append(errnos, WeightedErrno{Errno: errnoFromInt(fe.Errno), Weight: fe.Weight})
		}
		return NewFault(f, errnos), nil

	case injectorconfig.TypeAttrOverride:
		f, err := e.AttrOverride.BuildFilter()
		if err != nil {
			return nil, err
		}
		return NewAttrOverride(f, attrFieldsFromConfig(e.AttrOverride)), nil

	case injectorconfig.TypeMistake:
		f, err := e.Mistake.BuildFilter()
		if err != nil {
			return nil, err
		}
		spec := e.Mistake.Mistake
		filling := MistakeZero
		if spec.Filling == injectorconfig.MistakeRandom {
			filling = MistakeRandom
		}
		return NewMistake(f, filling, spec.MaxLength, spec.MaxOccurrences), nil

	default:
		return nil, fmt.Errorf("unknown injector type %q", e.Type)
	}
}

func attrFieldsFromConfig(a *injectorconfig.AttrOverride) AttrFields {
	fields := AttrFields{
		Ino:    a.Ino,
		Size:   a.Size,
		Blocks: a.Blocks,
		Perm:   a.Perm,
		Nlink:  a.Nlink,
		Uid:    a.Uid,
		Gid:    a.Gid,
		Rdev:   a.Rdev,
	}
	if a.Atime != nil {
		t := timeFromTimespec(*a.Atime)
		fields.Atime = &t
	}
	if a.Mtime != nil {
		t := timeFromTimespec(*a.Mtime)
		fields.Mtime = &t
	}
	if a.Ctime != nil {
		t := timeFromTimespec(*a.Ctime)
		fields.Ctime = &t
	}
	if a.Kind != nil {
		k := kindFromFileType(*a.Kind)
		fields.Kind = &k
	}
	return fields
}

func timeFromTimespec(ts injectorconfig.Timespec) time.Time {
	return time.Unix(ts.Sec, int64(ts.Nsec))
}

func kindFromFileType(t injectorconfig.FileType) fsreply.Kind {
	switch t {
	case injectorconfig.FileTypeDirectory:
		return fsreply.KindDirectory
	case injectorconfig.FileTypeNamedPipe:
		return fsreply.KindNamedPipe
	case injectorconfig.FileTypeRegularFile:
		return fsreply.KindRegularFile
	case injectorconfig.FileTypeSocket:
		return fsreply.KindSocket
	case injectorconfig.FileTypeSymlink:
		return fsreply.KindSymlink
	case injectorconfig.FileTypeCharDevice:
		return fsreply.KindCharDevice
	case injectorconfig.FileTypeBlockDevice:
		return fsreply.KindBlockDevice
	default:
		return fsreply.KindUnknown
	}
}

func errnoFromInt(n int) syscall.Errno {
	return syscall.Errno(n)
}
