// Package injector implements the four injector kinds of spec.md §4.5
// (Latency, Fault, AttrOverride, Mistake) and the ordered Pipeline that
// consults them on every FUSE operation.
package injector

import (
	"context"
	"sync"

	"github.com/chaos-mesh/toda/internal/filter"
	"github.com/chaos-mesh/toda/internal/fsreply"
)

// Injector is one fault rule. An operation is funneled through every
// registered Injector in the four shapes described by spec.md §4.5; only
// Pre can short-circuit the call with an error.
type Injector interface {
	// Pre may sleep (latency) or return an error to short-circuit the
	// operation (fault). path is the mount-relative path being operated on.
	Pre(ctx context.Context, method filter.Method, path string) error

	// PostReply rewrites fields of reply in place (attribute overrides,
	// read-data corruption). It never fails the operation.
	PostReply(method filter.Method, path string, reply *fsreply.Reply)

	// PreWriteData corrupts bytes bound for a host write(2) call.
	PreWriteData(path string, data []byte)

	// Interrupt cancels any in-progress blocking wait (used by Latency so
	// that disabling injection doesn't delay teardown).
	Interrupt()
}

// baseInjector gives every concrete injector no-op defaults for the shapes
// it doesn't implement, the way fuseutil.NotImplementedFileSystem gives FUSE
// filesystems ENOSYS defaults.
type baseInjector struct{}

func (baseInjector) Pre(context.Context, filter.Method, string) error  { return nil }
func (baseInjector) PostReply(filter.Method, string, *fsreply.Reply)   {}
func (baseInjector) PreWriteData(string, []byte)                      {}
func (baseInjector) Interrupt()                                       {}

// Pipeline is the ordered, hot-reloadable list of injectors consulted for
// every operation. Ordering is caller-visible: injectors run in declared
// order and the first fault wins.
type Pipeline struct {
	mu        sync.RWMutex
	injectors []Injector
	enabled   bool // not read by any method; injectors are consulted unconditionally
}

// NewPipeline builds a Pipeline from injectors, in order.
func NewPipeline(injectors []Injector) *Pipeline {
	return &Pipeline{injectors: injectors}
}

// Swap atomically replaces the injector list, e.g. from a control-surface
// hot reload. In-flight calls to Pre/PostReply/PreWriteData already holding
// the read lock finish against the old list.
func (p *Pipeline) Swap(injectors []Injector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.injectors = injectors
}

// Pre runs every injector's Pre in order, stopping at the first error.
func (p *Pipeline) Pre(ctx context.Context, method filter.Method, path string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, inj := range p.injectors {
		if err := inj.Pre(ctx, method, path); err != nil {
			return err
		}
	}
	return nil
}

// PostReply runs every injector's PostReply in order.
func (p *Pipeline) PostReply(method filter.Method, path string, reply *fsreply.Reply) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, inj := range p.injectors {
		inj.PostReply(method, path, reply)
	}
}

// PreWriteData runs every injector's PreWriteData in order.
func (p *Pipeline) PreWriteData(path string, data []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, inj := range p.injectors {
		inj.PreWriteData(path, data)
	}
}

// Interrupt cancels outstanding latency waits across every injector; called
// by disable_injection so a long sleep doesn't delay teardown.
func (p *Pipeline) Interrupt() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, inj := range p.injectors {
		inj.Interrupt()
	}
}
