package shadowpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBasic(t *testing.T) {
	got, err := Encode("/data/x")
	require.NoError(t, err)
	assert.Equal(t, "/data/__chaosfs__x__", got)
}

func TestEncodeRootRejected(t *testing.T) {
	_, err := Encode("/")
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, p := range []string{"/data/x", "/var/lib/mysql", "/a/b/c/d"} {
		encoded, err := Encode(p)
		require.NoError(t, err)

		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, p, decoded)

		reencoded, err := Encode(decoded)
		require.NoError(t, err)
		assert.Equal(t, encoded, reencoded)
	}
}

func TestDecodeRejectsNonShadowPath(t *testing.T) {
	_, err := Decode("/data/x")
	assert.Error(t, err)
}
