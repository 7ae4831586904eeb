package passthroughfs

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/fsreply"
	"github.com/chaos-mesh/toda/internal/injector"
)

func TestRelPathNormalizesAgainstShadowRoot(t *testing.T) {
	fs := New("/data/__chaosfs__x__", injector.NewPipeline(nil))
	assert.Equal(t, "/", fs.relPath("/data/__chaosfs__x__"))
	assert.Equal(t, "/a/b", fs.relPath("/data/__chaosfs__x__/a/b"))
}

func TestHostErrnoExtractsErrno(t *testing.T) {
	assert.Equal(t, syscall.ENOENT, hostErrno(syscall.ENOENT))
	assert.Equal(t, syscall.EIO, hostErrno(assertErr{}))
	assert.Nil(t, hostErrno(nil))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestKindFileModeRoundTrip(t *testing.T) {
	for _, k := range []fsreply.Kind{
		fsreply.KindRegularFile,
		fsreply.KindDirectory,
		fsreply.KindSymlink,
		fsreply.KindNamedPipe,
		fsreply.KindSocket,
		fsreply.KindCharDevice,
		fsreply.KindBlockDevice,
	} {
		mode := fileModeFromKindPerm(k, 0644)
		assert.Equal(t, k, kindFromFileMode(mode))
	}
}

func TestFileModeFromKindPermKeepsPermissionBits(t *testing.T) {
	mode := fileModeFromKindPerm(fsreply.KindRegularFile, 0640)
	assert.Equal(t, os.FileMode(0640), mode.Perm())
}

func TestDirentTypeFromStatMode(t *testing.T) {
	assert.Equal(t, dtDir, direntTypeFromStatMode(uint32(unix.S_IFDIR)))
	assert.Equal(t, dtRegular, direntTypeFromStatMode(uint32(unix.S_IFREG)))
}
