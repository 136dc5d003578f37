package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wayside.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Green Line", cfg.Line)
	assert.Equal(t, "block-ahead", cfg.Program)
	assert.Equal(t, time.Second, cfg.PollInterval.Std())
	assert.Equal(t, "info", cfg.LogLevel)
	require.NotNil(t, cfg.Topology())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
line: Red Line
poll_interval: 250ms
log_level: debug
fault:
  broken_rail_window: 20s
  max_attempts: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Red Line", cfg.Line)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval.Std())
	assert.Equal(t, "debug", cfg.LogLevel)

	fc := cfg.FaultConfig()
	assert.Equal(t, 20*time.Second, fc.BrokenRailWindow)
	assert.Equal(t, 5, fc.MaxAttempts)
	assert.Zero(t, fc.CommandTimeout, "unset fields stay zero for detector defaults")
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := writeConfig(t, "line: Red Line\n")
	t.Setenv("WAYSIDE_LINE", "Blue Line")
	t.Setenv("WAYSIDE_POLL_INTERVAL", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Blue Line", cfg.Line)
	assert.Equal(t, 2*time.Second, cfg.PollInterval.Std())
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_Rejections(t *testing.T) {
	cases := map[string]string{
		"unknown line":      "line: Mauve Line\n",
		"bad poll interval": "poll_interval: -1s\n",
		"bad log level":     "log_level: loud\n",
		"bad duration":      "poll_interval: fast\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}
