package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"run", "check", "serve", "rewrite", "backfill-images"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestServeDefaultPortComesFromConfig(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	// Zero means "use the config file value".
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunAcceptsRepeatableFeedFlag(t *testing.T) {
	flag := runCmd.Flags().Lookup("feed")
	require.NotNil(t, flag)
	assert.Equal(t, "stringSlice", flag.Value.Type())
}
