package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Settings, error) {
	t.Helper()
	fs := pflag.NewFlagSet("devchain", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return Load(viper.New(), fs)
}

func TestLoadDefaults(t *testing.T) {
	s, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, ".", s.ProjectDir)
	assert.Equal(t, "ganache-cli", s.SimulatorBinary)
	assert.Equal(t, 30*time.Second, s.StartupTimeout)
	assert.Equal(t, 5*time.Second, s.ShutdownGrace)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, DefaultStateDir(), s.StateDir)
	assert.Empty(t, s.SimulatorArgs)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "devchain.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
log-level: warn
startup-timeout: 10s
simulator-args: ["--deterministic", "--accounts", "5"]
metrics-addr: 127.0.0.1:9100
`), 0o644))

	t.Setenv("DEVCHAIN_LOG_LEVEL", "error")
	t.Setenv("DEVCHAIN_SIMULATOR_BINARY", "/opt/ganache/bin/ganache-cli")

	s, err := load(t, "--config", file, "--shutdown-grace", "2s", "--log-level", "debug")
	require.NoError(t, err)

	assert.Equal(t, "debug", s.LogLevel, "flag wins over env")
	assert.Equal(t, "/opt/ganache/bin/ganache-cli", s.SimulatorBinary, "env wins over default")
	assert.Equal(t, 10*time.Second, s.StartupTimeout, "file wins over default")
	assert.Equal(t, 2*time.Second, s.ShutdownGrace)
	assert.Equal(t, []string{"--deterministic", "--accounts", "5"}, s.SimulatorArgs)
	assert.Equal(t, "127.0.0.1:9100", s.MetricsAddr)
}

func TestLoadErrors(t *testing.T) {
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = load(t, "--startup-timeout", "0s")
	assert.Error(t, err)

	_, err = load(t, "--simulator-binary", "")
	assert.Error(t, err)
}
