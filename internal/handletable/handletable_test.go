package handletable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAndDirHandlesNeverCollide(t *testing.T) {
	tbl := New()

	fh := tbl.OpenFile(3, "/data/a")
	dh := tbl.OpenDir("/data")

	assert.NotEqual(t, fh, dh)

	_, err := tbl.File(fh)
	require.NoError(t, err)
	_, err = tbl.Dir(dh)
	require.NoError(t, err)

	// A dir handle number must never resolve as a file handle, and vice versa.
	_, err = tbl.File(dh)
	assert.Error(t, err)
	_, err = tbl.Dir(fh)
	assert.Error(t, err)
}

func TestReleaseInvalidatesHandle(t *testing.T) {
	tbl := New()
	fh := tbl.OpenFile(3, "/data/a")

	tbl.ReleaseFile(fh)
	_, err := tbl.File(fh)
	assert.Error(t, err)
}

func TestReleaseAlreadyReleasedIsNoop(t *testing.T) {
	tbl := New()
	fh := tbl.OpenFile(3, "/data/a")
	tbl.ReleaseFile(fh)
	assert.NotPanics(t, func() { tbl.ReleaseFile(fh) })
}

func TestDirHandleSnapshotOnlyTakenOnce(t *testing.T) {
	d := &DirHandle{}
	assert.False(t, d.Snapshotted())

	took := d.Snapshot([]DirEntry{{Name: "a", Ino: 2}})
	assert.True(t, took)
	assert.True(t, d.Snapshotted())

	tookAgain := d.Snapshot([]DirEntry{{Name: "b", Ino: 3}})
	assert.False(t, tookAgain)
	require.Len(t, d.Entries, 1)
	assert.Equal(t, "a", d.Entries[0].Name)
}
