package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchDocumentedDefaults(t *testing.T) {
	c := Defaults()

	require.Equal(t, "/bin/bash", c.Shell)
	require.Equal(t, 30*time.Second, c.CommandTimeout)
	require.Equal(t, 200*time.Millisecond, c.RestartDelay)
	require.Equal(t, 5, c.SubAgentRingSize)
	require.Equal(t, 3, c.MaxConsecutiveFailures)
	require.Equal(t, 30_000, c.MaxOutputChars)
	require.Equal(t, "info", c.LogLevel)
	require.Equal(t, "json", c.LogFormat)
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	vars := map[string]string{
		"SYNAPSE_SHELL":                     "/bin/zsh",
		"SYNAPSE_COMMAND_TIMEOUT_MS":        "5000",
		"SYNAPSE_RESTART_DELAY_MS":          "50",
		"SYNAPSE_SUBAGENT_RING_SIZE":        "10",
		"SYNAPSE_MAX_CONSECUTIVE_FAILURES":  "7",
		"SYNAPSE_MAX_OUTPUT_CHARS":          "1000",
		"SYNAPSE_LOG_LEVEL":                 "debug",
		"SYNAPSE_LOG_FORMAT":                "text",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}

	c := Load()

	require.Equal(t, "/bin/zsh", c.Shell)
	require.Equal(t, 5*time.Second, c.CommandTimeout)
	require.Equal(t, 50*time.Millisecond, c.RestartDelay)
	require.Equal(t, 10, c.SubAgentRingSize)
	require.Equal(t, 7, c.MaxConsecutiveFailures)
	require.Equal(t, 1000, c.MaxOutputChars)
	require.Equal(t, "debug", c.LogLevel)
	require.Equal(t, "text", c.LogFormat)
}

func TestLoadIgnoresUnparsableIntegers(t *testing.T) {
	t.Setenv("SYNAPSE_COMMAND_TIMEOUT_MS", "not-a-number")

	c := Load()

	require.Equal(t, Defaults().CommandTimeout, c.CommandTimeout)
}

func TestLoadFallsBackWhenUnset(t *testing.T) {
	for _, k := range []string{
		"SYNAPSE_SHELL", "SYNAPSE_COMMAND_TIMEOUT_MS", "SYNAPSE_RESTART_DELAY_MS",
		"SYNAPSE_SUBAGENT_RING_SIZE", "SYNAPSE_MAX_CONSECUTIVE_FAILURES",
		"SYNAPSE_MAX_OUTPUT_CHARS", "SYNAPSE_LOG_LEVEL", "SYNAPSE_LOG_FORMAT",
	} {
		require.NoError(t, os.Unsetenv(k))
	}

	require.Equal(t, Defaults(), Load())
}
