package injector

import (
	"math/rand"

	"github.com/chaos-mesh/toda/internal/filter"
	"github.com/chaos-mesh/toda/internal/fsreply"
)

// MistakeFilling selects the byte value written into a corrupted span.
type MistakeFilling int

const (
	MistakeZero MistakeFilling = iota
	MistakeRandom
)

// Mistake corrupts a bounded number of bounded-length byte spans in read
// data and in data about to be written to the host file, simulating silent
// on-disk bit rot.
type Mistake struct {
	baseInjector

	filter         *filter.Filter
	filling        MistakeFilling
	maxLength      int
	maxOccurrences int
}

// NewMistake builds a Mistake injector.
func NewMistake(f *filter.Filter, filling MistakeFilling, maxLength, maxOccurrences int) *Mistake {
	return &Mistake{filter: f, filling: filling, maxLength: maxLength, maxOccurrences: maxOccurrences}
}

func (m *Mistake) corrupt(data []byte) {
	if len(data) == 0 || m.maxOccurrences <= 0 || m.maxLength <= 0 {
		return
	}

	occurrences := rand.Intn(m.maxOccurrences) + 1
	for i := 0; i < occurrences; i++ {
		length := rand.Intn(m.maxLength) + 1
		if length > len(data) {
			length = len(data)
		}
		start := rand.Intn(len(data) - length + 1)
		m.fill(data[start : start+length])
	}
}

func (m *Mistake) fill(span []byte) {
	switch m.filling {
	case MistakeRandom:
		rand.Read(span)
	default:
		for i := range span {
			span[i] = 0
		}
	}
}

func (m *Mistake) PostReply(method filter.Method, path string, reply *fsreply.Reply) {
	if reply.Data == nil || !m.filter.Match(method, path) {
		return
	}
	m.corrupt(reply.Data.Data)
}

func (m *Mistake) PreWriteData(path string, data []byte) {
	if !m.filter.Match(filter.Write, path) {
		return
	}
	m.corrupt(data)
}

var _ Injector = (*Mistake)(nil)
