package inodetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-mesh/toda/internal/errs"
)

func TestRootPreseeded(t *testing.T) {
	tbl := New("/data")
	path, err := tbl.Path(RootInode)
	require.NoError(t, err)
	assert.Equal(t, "/data", path)
	assert.EqualValues(t, 1, tbl.RefCount(RootInode))
}

func TestLookupAccumulatesRefCountAndPaths(t *testing.T) {
	tbl := New("/data")
	tbl.Lookup(42, "/data/a")
	tbl.Lookup(42, "/data/b") // hard link

	assert.EqualValues(t, 2, tbl.RefCount(42))
	paths, err := tbl.Paths(42)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/data/a", "/data/b"}, paths)
}

func TestLookupDoesNotDuplicatePath(t *testing.T) {
	tbl := New("/data")
	tbl.Lookup(42, "/data/a")
	tbl.Lookup(42, "/data/a")

	paths, err := tbl.Paths(42)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestRemovePathKeepsRefCount(t *testing.T) {
	tbl := New("/data")
	tbl.Lookup(42, "/data/a")
	tbl.RemovePath(42, "/data/a")

	assert.EqualValues(t, 1, tbl.RefCount(42))
	paths, err := tbl.Paths(42)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestForgetDropsEntryAtZero(t *testing.T) {
	tbl := New("/data")
	tbl.Lookup(42, "/data/a")
	tbl.Lookup(42, "/data/a")

	tbl.Forget(42, 1)
	assert.EqualValues(t, 1, tbl.RefCount(42))

	tbl.Forget(42, 1)
	_, err := tbl.Path(42)
	assert.Error(t, err)
}

func TestForgetUntrackedInodeIsNoop(t *testing.T) {
	tbl := New("/data")
	assert.NotPanics(t, func() { tbl.Forget(999, 1) })
}

func TestPathMissingInodeReturnsInodeMissError(t *testing.T) {
	tbl := New("/data")
	_, err := tbl.Path(999)
	var miss *errs.InodeMissError
	assert.ErrorAs(t, err, &miss)
}
