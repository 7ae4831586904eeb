package injector

import (
	"context"
	"math/rand"
	"syscall"

	"github.com/chaos-mesh/toda/internal/filter"
)

// WeightedErrno is one weighted choice in a Fault injector's errno table.
type WeightedErrno struct {
	Errno  syscall.Errno
	Weight int
}

// Fault returns a weighted-random errno for matching operations, short-
// circuiting the call.
type Fault struct {
	baseInjector

	filter *filter.Filter
	errnos []WeightedErrno
	sum    int
}

// NewFault builds a Fault injector. The draw is uniform over the sum of
// errnos' weights.
func NewFault(f *filter.Filter, errnos []WeightedErrno) *Fault {
	sum := 0
	for _, e := range errnos {
		sum += e.Weight
	}
	return &Fault{filter: f, errnos: errnos, sum: sum}
}

func (fi *Fault) Pre(_ context.Context, method filter.Method, path string) error {
	if !fi.filter.Match(method, path) || fi.sum <= 0 {
		return nil
	}

	draw := rand.Intn(fi.sum)
	for _, e := range fi.errnos {
		draw -= e.Weight
		if draw < 0 {
			return e.Errno
		}
	}
	// Unreachable unless the weights don't sum to fi.sum; fall through
	// without injecting rather than panic.
	return nil
}

var _ Injector = (*Fault)(nil)
