package injectorconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLatency(t *testing.T) {
	entries, err := Parse([]byte(`[{"type":"latency","path":"/data/*","methods":["read"],"percent":50,"latency":"10s"}]`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Latency)
	assert.Equal(t, TypeLatency, entries[0].Type)
	assert.Equal(t, "10s", entries[0].Latency.Latency.String())
	assert.Equal(t, 50, entries[0].Latency.Percent)
}

func TestParseFault(t *testing.T) {
	entries, err := Parse([]byte(`[{"type":"fault","percent":100,"faults":[{"errno":5,"weight":1},{"errno":13,"weight":2}]}]`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Fault)
	assert.Len(t, entries[0].Fault.Faults, 2)
}

func TestParseAttrOverride(t *testing.T) {
	entries, err := Parse([]byte(`[{"type":"attrOverride","path":"/x","percent":100,"size":42,"kind":"regularFile"}]`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].AttrOverride)
	require.NotNil(t, entries[0].AttrOverride.Size)
	assert.EqualValues(t, 42, *entries[0].AttrOverride.Size)
	require.NotNil(t, entries[0].AttrOverride.Kind)
	assert.Equal(t, FileTypeRegularFile, *entries[0].AttrOverride.Kind)
	assert.Nil(t, entries[0].AttrOverride.Uid)
}

func TestParseMistake(t *testing.T) {
	entries, err := Parse([]byte(`[{"type":"mistake","percent":100,"mistake":{"filling":"zero","maxLength":10,"maxOccurrences":3,"percent":100}}]`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Mistake)
	assert.Equal(t, MistakeZero, entries[0].Mistake.Mistake.Filling)
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := Parse([]byte(`[{"type":"bogus"}]`))
	assert.Error(t, err)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)
}
