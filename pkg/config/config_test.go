package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeUnityProject lays out the two directories that mark a project root.
func makeUnityProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Assets"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "ProjectSettings"), 0o755))
	return dir
}

func TestProjectID(t *testing.T) {
	dir := makeUnityProject(t)

	id := ProjectID(dir)
	assert.Len(t, id, 8)
	assert.Equal(t, id, ProjectID(dir), "identity must be stable for a path")
	assert.NotEqual(t, id, ProjectID(t.TempDir()), "different paths get different ids")
}

func TestIsUnityProject(t *testing.T) {
	assert.True(t, IsUnityProject(makeUnityProject(t)))
	assert.False(t, IsUnityProject(t.TempDir()))

	// A file named Assets does not count.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Assets"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "ProjectSettings"), 0o755))
	assert.False(t, IsUnityProject(dir))
}

func TestDiscoverProject(t *testing.T) {
	root := makeUnityProject(t)
	nested := filepath.Join(root, "Assets", "Scripts", "Editor")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := DiscoverProject(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)

	_, err = DiscoverProject(t.TempDir())
	assert.Error(t, err)
}

func TestBridgeFile_RoundTrip(t *testing.T) {
	dir := makeUnityProject(t)
	bf := BridgeFile{ProjectID: "ab12cd34", Port: 43210, PID: 1234}

	require.NoError(t, WriteBridgeFile(dir, bf))

	read, err := ReadBridgeFile(dir)
	require.NoError(t, err)
	assert.Equal(t, bf, *read)

	require.NoError(t, RemoveBridgeFile(dir))
	_, err = ReadBridgeFile(dir)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Removing again is fine.
	assert.NoError(t, RemoveBridgeFile(dir))
}

func TestLoadTimeouts_Defaults(t *testing.T) {
	dir := makeUnityProject(t)

	timeouts := LoadTimeouts(dir)
	assert.Equal(t, 30*time.Second, timeouts["play.enter"])
	assert.Equal(t, 60*time.Second, timeouts["asset.refresh"])
	assert.Equal(t, 300*time.Second, timeouts["test.run"])
	assert.Equal(t, 30*time.Second, timeouts["default"])
}

func TestLoadTimeouts_YAMLOverride(t *testing.T) {
	dir := makeUnityProject(t)
	require.NoError(t, os.MkdirAll(ConfigDir(dir), 0o755))
	yaml := "timeouts:\n  test.run: 600\n  play.enter: 45\n"
	require.NoError(t, os.WriteFile(filepath.Join(ConfigDir(dir), "bridge.yaml"), []byte(yaml), 0o644))

	timeouts := LoadTimeouts(dir)
	assert.Equal(t, 600*time.Second, timeouts["test.run"])
	assert.Equal(t, 45*time.Second, timeouts["play.enter"])
	assert.Equal(t, 60*time.Second, timeouts["asset.refresh"], "untouched entries keep defaults")
}

func TestLoadTimeouts_EnvOverride(t *testing.T) {
	dir := makeUnityProject(t)
	t.Setenv("UNITY_BRIDGE_TIMEOUT_TEST_RUN", "120")
	t.Setenv("UNITY_BRIDGE_TIMEOUT_ASSET_REFRESH", "not-a-number")
	t.Setenv("UNITY_BRIDGE_TIMEOUT_PLAY_EXIT", "-5")

	timeouts := LoadTimeouts(dir)
	assert.Equal(t, 120*time.Second, timeouts["test.run"], "env beats default")
	assert.Equal(t, 60*time.Second, timeouts["asset.refresh"], "garbage values are ignored")
	assert.Equal(t, 30*time.Second, timeouts["play.exit"], "non-positive values are ignored")
}

func TestLoadTimeouts_EnvBeatsYAML(t *testing.T) {
	dir := makeUnityProject(t)
	require.NoError(t, os.MkdirAll(ConfigDir(dir), 0o755))
	yaml := "timeouts:\n  test.run: 600\n"
	require.NoError(t, os.WriteFile(filepath.Join(ConfigDir(dir), "bridge.yaml"), []byte(yaml), 0o644))
	t.Setenv("UNITY_BRIDGE_TIMEOUT_TEST_RUN", "90")

	timeouts := LoadTimeouts(dir)
	assert.Equal(t, 90*time.Second, timeouts["test.run"])
}

func TestLoadTimeouts_MalformedYAML(t *testing.T) {
	dir := makeUnityProject(t)
	require.NoError(t, os.MkdirAll(ConfigDir(dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ConfigDir(dir), "bridge.yaml"), []byte("timeouts: ["), 0o644))

	timeouts := LoadTimeouts(dir)
	assert.Equal(t, 300*time.Second, timeouts["test.run"], "malformed file falls back to defaults")
}

func TestEnvToken(t *testing.T) {
	assert.Equal(t, "PLAY_ENTER", EnvToken("play.enter"))
	assert.Equal(t, "ASSET_REIMPORTALL", EnvToken("asset.reimportAll"))
	assert.Equal(t, "DEFAULT", EnvToken("default"))
}
