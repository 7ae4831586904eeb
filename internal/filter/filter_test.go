package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchAllWhenNoMethodsOrPath(t *testing.T) {
	f, err := Build(Config{Percent: 100})
	require.NoError(t, err)
	assert.True(t, f.Match(Read, "/anything"))
	assert.True(t, f.Match(Write, "/other"))
}

func TestMatchRestrictsByMethod(t *testing.T) {
	f, err := Build(Config{Methods: []Method{Read}, Percent: 100})
	require.NoError(t, err)
	assert.True(t, f.Match(Read, "/x"))
	assert.False(t, f.Match(Write, "/x"))
}

func TestMatchRestrictsByGlob(t *testing.T) {
	f, err := Build(Config{Path: "/data/*.log", Percent: 100})
	require.NoError(t, err)
	assert.True(t, f.Match(Read, "/data/a.log"))
	assert.False(t, f.Match(Read, "/data/sub/a.log"))
}

func TestMatchPercentZeroNeverMatches(t *testing.T) {
	f, err := Build(Config{Percent: 0})
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		assert.False(t, f.Match(Read, "/x"))
	}
}

func TestBuildRejectsBadGlob(t *testing.T) {
	_, err := Build(Config{Path: "["})
	assert.Error(t, err)
}
