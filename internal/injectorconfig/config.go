// Package injectorconfig decodes the JSON injector-config schema of
// spec.md §6 — the wire format accepted on stdin at startup and on
// PUT /update afterwards.
package injectorconfig

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/chaos-mesh/toda/internal/errs"
	"github.com/chaos-mesh/toda/internal/filter"
)

// Type discriminates the tagged union carried by the "type" field.
type Type string

const (
	TypeLatency      Type = "latency"
	TypeFault        Type = "fault"
	TypeAttrOverride Type = "attrOverride"
	TypeMistake      Type = "mistake"
)

// FilterFields is the filter sub-document shared by every injector kind.
type FilterFields struct {
	Path    string          `json:"path"`
	Methods []filter.Method `json:"methods"`
	Percent int             `json:"percent"`
}

// BuildFilter compiles the shared filter sub-document into a *filter.Filter.
func (f FilterFields) BuildFilter() (*filter.Filter, error) {
	return filter.Build(filter.Config{Path: f.Path, Methods: f.Methods, Percent: f.Percent})
}

// Latency is the {"type":"latency", ...} payload.
type Latency struct {
	FilterFields
	Latency time.Duration `json:"-"`
}

// Fault is the {"type":"fault", ...} payload.
type Fault struct {
	FilterFields
	Faults []FaultEntry `json:"faults"`
}

// FaultEntry is one weighted errno choice.
type FaultEntry struct {
	Errno  int `json:"errno"`
	Weight int `json:"weight"`
}

// FileType mirrors the seven FUSE file types an attr override can force.
type FileType string

const (
	FileTypeDirectory   FileType = "directory"
	FileTypeNamedPipe   FileType = "namedPipe"
	FileTypeRegularFile FileType = "regularFile"
	FileTypeSocket      FileType = "socket"
	FileTypeSymlink     FileType = "symlink"
	FileTypeCharDevice  FileType = "charDevice"
	FileTypeBlockDevice FileType = "blockDevice"
)

// Timespec is a seconds+nanoseconds timestamp, matching the wire format of
// atime/mtime/ctime overrides.
type Timespec struct {
	Sec  int64 `mapstructure:"sec"`
	Nsec int32 `mapstructure:"nsec"`
}

// AttrOverride is the {"type":"attrOverride", ...} payload. Every field but
// Path/Percent is optional; only the map keys actually present in the JSON
// body are populated, so mapstructure is used to decode the loosely-typed
// payload into this struct of pointers without forcing absent fields to
// their zero value.
type AttrOverride struct {
	Path    string `mapstructure:"path"`
	Percent int    `mapstructure:"percent"`

	Ino    *uint64   `mapstructure:"ino"`
	Size   *uint64   `mapstructure:"size"`
	Blocks *uint64   `mapstructure:"blocks"`
	Atime  *Timespec `mapstructure:"atime"`
	Mtime  *Timespec `mapstructure:"mtime"`
	Ctime  *Timespec `mapstructure:"ctime"`
	Kind   *FileType `mapstructure:"kind"`
	Perm   *uint16   `mapstructure:"perm"`
	Nlink  *uint32   `mapstructure:"nlink"`
	Uid    *uint32   `mapstructure:"uid"`
	Gid    *uint32   `mapstructure:"gid"`
	Rdev   *uint32   `mapstructure:"rdev"`
}

// BuildFilter compiles the implicit reply-bearing-op filter for an
// AttrOverride payload.
func (a AttrOverride) BuildFilter() (*filter.Filter, error) {
	// The method set is fixed regardless of what the caller asks for:
	// getattr/lookup/mknod/mkdir/symlink/link. Of these, only getattr and
	// lookup hand an Attr or Entry reply to the pipeline's PostReply in
	// internal/passthroughfs; mknod/mkdir/symlink/link replies are not passed
	// to injectors, and setattr replies are passed but not selected here.
	return filter.Build(filter.Config{
		Path: a.Path,
		Methods: []filter.Method{
			filter.Getattr, filter.Lookup, filter.Mknod,
			filter.Mkdir, filter.Symlink, filter.Link,
		},
		Percent: a.Percent,
	})
}

// MistakeType selects how Mistake corrupts bytes.
type MistakeType string

const (
	MistakeZero   MistakeType = "zero"
	MistakeRandom MistakeType = "random"
)

// MistakeSpec is the corruption recipe nested inside a Mistake payload.
//
// Percent is accepted and decoded for wire-schema compatibility but never
// consulted: whether Mistake applies to a given call is already decided by
// the enclosing FilterFields.Percent, and the original corruption routine
// this is ported from never reads a percent off the nested recipe either.
type MistakeSpec struct {
	Filling        MistakeType `json:"filling"`
	MaxLength      int         `json:"maxLength"`
	MaxOccurrences int         `json:"maxOccurrences"`
	Percent        int         `json:"percent"`
}

// Mistake is the {"type":"mistake", ...} payload.
type Mistake struct {
	FilterFields
	Mistake MistakeSpec `json:"mistake"`
}

// Entry is one decoded element of the injector-config array; exactly one of
// the typed fields is non-nil, selected by Type.
type Entry struct {
	Type         Type
	Latency      *Latency
	Fault        *Fault
	AttrOverride *AttrOverride
	Mistake      *Mistake
}

// envelope is used to read the discriminator before dispatching to the
// concrete payload type — the standard Go idiom for a JSON tagged union,
// since encoding/json has no native discriminated-union support.
type envelope struct {
	Type Type `json:"type"`
}

// latencyWire carries the duration as a Go duration string on the wire
// (time.ParseDuration syntax, e.g. "10s" or "1h30m");
// it is decoded separately from Latency so Latency itself can hold a real
// time.Duration.
type latencyWire struct {
	FilterFields
	Latency string `json:"latency"`
}

// Parse decodes a JSON array of injector configs.
func Parse(data []byte) ([]Entry, error) {
	var envelopes []json.RawMessage
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, &errs.ConfigParseError{Err: err}
	}

	entries := make([]Entry, 0, len(envelopes))
	for i, raw := range envelopes {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, &errs.ConfigParseError{Err: fmt.Errorf("entry %d: %w", i, err)}
		}

		entry, err := parseOne(env.Type, raw)
		if err != nil {
			return nil, &errs.ConfigParseError{Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func parseOne(t Type, raw json.RawMessage) (Entry, error) {
	switch t {
	case TypeLatency:
		var wire latencyWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return Entry{}, err
		}
		d, err := time.ParseDuration(wire.Latency)
		if err != nil {
			return Entry{}, fmt.Errorf("latency: %w", err)
		}
		return Entry{Type: t, Latency: &Latency{FilterFields: wire.FilterFields, Latency: d}}, nil

	case TypeFault:
		var f Fault
		if err := json.Unmarshal(raw, &f); err != nil {
			return Entry{}, err
		}
		return Entry{Type: t, Fault: &f}, nil

	case TypeAttrOverride:
		var asMap map[string]interface{}
		if err := json.Unmarshal(raw, &asMap); err != nil {
			return Entry{}, err
		}
		var a AttrOverride
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &a,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return Entry{}, err
		}
		if err := dec.Decode(asMap); err != nil {
			return Entry{}, fmt.Errorf("attrOverride: %w", err)
		}
		return Entry{Type: t, AttrOverride: &a}, nil

	case TypeMistake:
		var m Mistake
		if err := json.Unmarshal(raw, &m); err != nil {
			return Entry{}, err
		}
		return Entry{Type: t, Mistake: &m}, nil

	default:
		return Entry{}, fmt.Errorf("unknown injector type %q", t)
	}
}
