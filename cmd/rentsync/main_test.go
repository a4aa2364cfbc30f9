package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/rentsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rentsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: error
feed:
  backend: loam
loam:
  path: `+filepath.Join(dir, "users")+`
cache:
  backend: file
  path: `+filepath.Join(dir, "cache")+`
`), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "rentsync version "+rentsync.Version)
}

func TestUserLifecycle(t *testing.T) {
	cfgPath := writeConfig(t)
	profile := filepath.Join(t.TempDir(), "u1.json")
	require.NoError(t, os.WriteFile(profile, []byte(`{"id":"u1","email":"cli@example.com"}`), 0o644))

	out, err := execute(t, "user", "put", profile, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored 'u1'")

	out, err = execute(t, "user", "show", "u1", "--json", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "cli@example.com")

	out, err = execute(t, "user", "rm", "u1", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 'u1'")
}

func TestCacheInspectEmpty(t *testing.T) {
	out, err := execute(t, "cache", "inspect", "--json", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "is empty")
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feed:\n  backend: firestore\n"), 0o644))

	_, err := execute(t, "cache", "inspect", "--config", path)
	assert.ErrorContains(t, err, "firestore")
}

func TestWatchRequiresSubject(t *testing.T) {
	_, err := execute(t, "watch", "--config", writeConfig(t))
	assert.Error(t, err)
}

func TestMCPRequiresSecret(t *testing.T) {
	t.Setenv("RENTSYNC_JWT_SECRET", "")
	_, err := execute(t, "mcp", "--config", writeConfig(t))
	assert.ErrorContains(t, err, "secret")
}
