package replacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestRebuildRewritesPrefixedPath(t *testing.T) {
	got, ok := rebuild("/data/a/b.txt", "/data", "/data/__chaosfs__a__")
	assert.True(t, ok)
	assert.Equal(t, "/data/__chaosfs__a__/a/b.txt", got)
}

func TestRebuildRejectsUnrelatedPath(t *testing.T) {
	_, ok := rebuild("/other/file", "/data", "/shadow")
	assert.False(t, ok)
}

func TestProtFromPermsDecodesRWX(t *testing.T) {
	assert.Equal(t, unix.PROT_READ|unix.PROT_WRITE, protFromPerms("rw-p"))
	assert.Equal(t, unix.PROT_READ|unix.PROT_EXEC, protFromPerms("r-xp"))
	assert.Equal(t, unix.PROT_NONE, protFromPerms("---p"))
}

func TestFlagsFromPermsDistinguishesSharedPrivate(t *testing.T) {
	assert.Equal(t, unix.MAP_SHARED, flagsFromPerms("rw-s"))
	assert.Equal(t, unix.MAP_PRIVATE, flagsFromPerms("rw-p"))
}

func TestUnionReplacerRunsMembersInOrder(t *testing.T) {
	var order []string
	mk := func(name string) Replacer {
		return fnReplacer{
			prepare: func(string, string) error { order = append(order, name+":prepare"); return nil },
			run:     func() error { order = append(order, name+":run"); return nil },
		}
	}

	u := NewUnionReplacer(mk("a"), mk("b"))
	assert.NoError(t, u.Prepare("/x", "/y"))
	assert.NoError(t, u.Run())

	assert.Equal(t, []string{"a:prepare", "b:prepare"}, order[:2])
	assert.Equal(t, []string{"a:run", "b:run"}, order[2:])
}

type fnReplacer struct {
	prepare func(string, string) error
	run     func() error
}

func (f fnReplacer) Prepare(d, n string) error { return f.prepare(d, n) }
func (f fnReplacer) Run() error                { return f.run() }
