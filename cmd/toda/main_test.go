package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadInitialInjectorsEmptyStdinYieldsNone(t *testing.T) {
	injectors, err := readInitialInjectors(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, injectors)
}

func TestReadInitialInjectorsParsesConfigArray(t *testing.T) {
	body := `[{"type":"fault","path":"/data/*","percent":100,"faults":[{"errno":5,"weight":1}]}]`
	injectors, err := readInitialInjectors(strings.NewReader(body))
	require.NoError(t, err)
	assert.Len(t, injectors, 1)
}

func TestReadInitialInjectorsRejectsMalformedJSON(t *testing.T) {
	_, err := readInitialInjectors(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestRootCmdRequiresPathFlag(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	assert.Error(t, err)
}

func TestRootCmdFlagDefaults(t *testing.T) {
	cmd := newRootCmd()
	verboseFlag := cmd.Flags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "0", verboseFlag.DefValue)

	mountOnlyFlag := cmd.Flags().Lookup("mount-only")
	require.NotNil(t, mountOnlyFlag)
	assert.Equal(t, "false", mountOnlyFlag.DefValue)
}
