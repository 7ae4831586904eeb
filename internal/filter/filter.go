// Package filter implements the {method, path glob, percent} matcher
// consulted by every injector before it runs its action.
package filter

import (
	"math/rand"
	"path/filepath"
)

// Method names the FUSE operation an injector rule may be scoped to. The set
// matches the "Recognized op names" of spec.md §6.
type Method string

const (
	Lookup      Method = "lookup"
	Getattr     Method = "getattr"
	Setattr     Method = "setattr"
	Readlink    Method = "readlink"
	Mknod       Method = "mknod"
	Mkdir       Method = "mkdir"
	Unlink      Method = "unlink"
	Rmdir       Method = "rmdir"
	Symlink     Method = "symlink"
	Rename      Method = "rename"
	Link        Method = "link"
	Open        Method = "open"
	Read        Method = "read"
	Write       Method = "write"
	Flush       Method = "flush"
	Release     Method = "release"
	Fsync       Method = "fsync"
	Opendir     Method = "opendir"
	Readdir     Method = "readdir"
	Releasedir  Method = "releasedir"
	Fsyncdir    Method = "fsyncdir"
	Statfs      Method = "statfs"
	Setxattr    Method = "setxattr"
	Getxattr    Method = "getxattr"
	Listxattr   Method = "listxattr"
	Removexattr Method = "removexattr"
	Access      Method = "access"
	Create      Method = "create"
)

// Filter gates an injector action on the operation's method, its
// mount-relative path, and a per-call pseudorandom draw.
type Filter struct {
	pathGlob string
	methods  map[Method]struct{} // empty means "all"
	percent  int
}

// Config is the plain-data form of a Filter, as decoded from JSON.
type Config struct {
	Path    string
	Methods []Method
	Percent int
}

// Build validates and compiles a Config into a Filter.
func Build(conf Config) (*Filter, error) {
	// A glob compiled once up front to fail fast on malformed patterns,
	// rather than silently never-matching at call time.
	if conf.Path != "" {
		if _, err := filepath.Match(conf.Path, "/"); err != nil {
			return nil, err
		}
	}

	methods := make(map[Method]struct{}, len(conf.Methods))
	for _, m := range conf.Methods {
		methods[m] = struct{}{}
	}

	percent := conf.Percent
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	return &Filter{pathGlob: conf.Path, methods: methods, percent: percent}, nil
}

// Match reports whether method/path are selected by this filter and whether
// the percent draw passes. All injectors must be consulted regardless of
// match — Match is what lets an injector decide to no-op for this call.
func (f *Filter) Match(method Method, path string) bool {
	if len(f.methods) > 0 {
		if _, ok := f.methods[method]; !ok {
			return false
		}
	}

	if f.pathGlob != "" {
		ok, err := filepath.Match(f.pathGlob, path)
		if err != nil || !ok {
			return false
		}
	}

	if f.percent >= 100 {
		return true
	}
	if f.percent <= 0 {
		return false
	}
	return rand.Intn(100) < f.percent
}
