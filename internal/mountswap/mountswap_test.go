package mountswap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRootMountDetectsRoot(t *testing.T) {
	assert.True(t, isRootMount("/"))
	assert.True(t, isRootMount(""))
	assert.False(t, isRootMount("/data"))
	assert.False(t, isRootMount("/data/"))
}
