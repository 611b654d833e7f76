// Package config loads this core's environment-variable knobs once at
// process start (spec.md §6, SPEC_FULL.md §6 "Environment variables
// recognized"). Configuration files and CLI argument parsing are out of
// scope at this layer, so env vars are the only source.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is every SYNAPSE_* knob this core reads, resolved to its typed,
// defaulted value.
type Config struct {
	// Shell overrides the persistent shell session's child command.
	Shell string

	// CommandTimeout bounds one Execute call.
	CommandTimeout time.Duration

	// RestartDelay is how long Restart waits for the old child to exit.
	RestartDelay time.Duration

	// SubAgentRingSize is how many recent tool call ids a running
	// sub-agent remembers.
	SubAgentRingSize int

	// MaxConsecutiveFailures is read for the outer runtime's circuit
	// breaker; this core does not implement the breaker itself (spec.md
	// §9 Open Question (a)).
	MaxConsecutiveFailures int

	// MaxOutputChars caps how much stdout/stderr a single command
	// retains.
	MaxOutputChars int

	// LogLevel/LogFormat feed internal/observability.LogConfig.
	LogLevel  string
	LogFormat string
}

// Defaults mirrors SPEC_FULL.md §6's stated defaults.
func Defaults() Config {
	return Config{
		Shell:                  "/bin/bash",
		CommandTimeout:         30 * time.Second,
		RestartDelay:           200 * time.Millisecond,
		SubAgentRingSize:       5,
		MaxConsecutiveFailures: 3,
		MaxOutputChars:         30_000,
		LogLevel:               "info",
		LogFormat:              "json",
	}
}

// Load reads every SYNAPSE_* variable from the environment, falling back to
// Defaults() for anything unset or unparsable.
func Load() Config {
	c := Defaults()

	if v := os.Getenv("SYNAPSE_SHELL"); v != "" {
		c.Shell = v
	}
	if ms, ok := envInt("SYNAPSE_COMMAND_TIMEOUT_MS"); ok {
		c.CommandTimeout = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := envInt("SYNAPSE_RESTART_DELAY_MS"); ok {
		c.RestartDelay = time.Duration(ms) * time.Millisecond
	}
	if n, ok := envInt("SYNAPSE_SUBAGENT_RING_SIZE"); ok {
		c.SubAgentRingSize = n
	}
	if n, ok := envInt("SYNAPSE_MAX_CONSECUTIVE_FAILURES"); ok {
		c.MaxConsecutiveFailures = n
	}
	if n, ok := envInt("SYNAPSE_MAX_OUTPUT_CHARS"); ok {
		c.MaxOutputChars = n
	}
	if v := os.Getenv("SYNAPSE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SYNAPSE_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}

	return c
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
