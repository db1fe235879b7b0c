package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv points every KEYFLASH_* variable at a fresh data directory with
// the mock artifact source and mock devices.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	t.Setenv("KEYFLASH_DATA_DIR", dir)
	t.Setenv("KEYFLASH_USE_MOCK_API", "true")
	t.Setenv("KEYFLASH_LOG_LEVEL", "error")
	t.Setenv("KEYFLASH_LISTEN_ADDR", "127.0.0.1:0")
	t.Setenv("KEYFLASH_FLASH_STEP", "1ms")
	for _, key := range []string{
		"KEYFLASH_GITHUB_TOKEN",
		"KEYFLASH_GITHUB_API_URL",
		"KEYFLASH_DB_PATH",
		"KEYFLASH_RUN_COUNT",
		"KEYFLASH_VOLUMES_DIR",
	} {
		t.Setenv(key, "")
	}

	return dir
}

func runCLI(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, context.Background(), args...)
	require.NoError(t, err, "keyflash %v", args)
	return out
}

func readSettingsFile(t *testing.T, dir string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

const repoURL = "https://github.com/octo/zmk-config"

func TestRepos_AddListSelectRemove(t *testing.T) {
	dir := setupEnv(t)

	out := mustRun(t, "repos", "add", repoURL)
	assert.Contains(t, out, "added octo/zmk-config")

	doc := readSettingsFile(t, dir)
	assert.Equal(t, "2025-06-03", doc["version"])
	assert.Equal(t, repoURL, doc["selectedRepositoryUrl"])

	out = mustRun(t, "repos", "list")
	assert.Contains(t, out, "*")
	assert.Contains(t, out, repoURL)

	mustRun(t, "repos", "select", "--none")
	doc = readSettingsFile(t, dir)
	assert.Nil(t, doc["selectedRepositoryUrl"])

	mustRun(t, "repos", "select", repoURL)
	doc = readSettingsFile(t, dir)
	assert.Equal(t, repoURL, doc["selectedRepositoryUrl"])

	out = mustRun(t, "repos", "remove", repoURL)
	assert.Contains(t, out, "removed octo/zmk-config")
	doc = readSettingsFile(t, dir)
	assert.Empty(t, doc["repositories"])
	assert.Nil(t, doc["selectedRepositoryUrl"])
}

func TestRepos_Errors(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, context.Background(), "repos", "add", "http://github.com/octo/zmk-config")
	assert.ErrorContains(t, err, "invalid repository url")

	mustRun(t, "repos", "add", repoURL)
	_, err = runCLI(t, context.Background(), "repos", "add", repoURL)
	assert.ErrorContains(t, err, "already registered")

	_, err = runCLI(t, context.Background(), "repos", "select", "https://github.com/octo/missing")
	assert.ErrorContains(t, err, "not registered")

	_, err = runCLI(t, context.Background(), "repos", "select")
	assert.ErrorContains(t, err, "--none")
}

func TestWorkflowsAndFirmware(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, context.Background(), "workflows", "list")
	assert.ErrorContains(t, err, "no repository selected")

	mustRun(t, "repos", "add", repoURL)

	out := mustRun(t, "workflows", "list")
	assert.Contains(t, out, "Build ZMK firmware")
	assert.Contains(t, out, "Build Custom firmware")

	_, err = runCLI(t, context.Background(), "firmware", "latest")
	assert.ErrorContains(t, err, "no workflow selected")

	mustRun(t, "workflows", "select", "99")
	_, err = runCLI(t, context.Background(), "firmware", "latest")
	assert.ErrorContains(t, err, "no workflow selected", "saved id missing upstream")

	out = mustRun(t, "workflows", "select", "1")
	assert.Contains(t, out, "selected workflow 1")

	out = mustRun(t, "firmware", "latest")
	assert.Contains(t, out, "github-artifact-201")
	assert.Contains(t, out, "corne_left.uf2")
	assert.Contains(t, out, "corne_right.uf2")
	assert.Contains(t, out, "240 KB")
	assert.Contains(t, out, "Update keymap")

	// A new process reads the candidates back from the catalog.
	out = mustRun(t, "firmware", "list")
	assert.Contains(t, out, "github-artifact-201")
	assert.Contains(t, out, "github-artifact-202")

	out = mustRun(t, "workflows", "select", "--none")
	assert.Contains(t, out, "cleared")
}

func TestDevices(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "devices")

	assert.Contains(t, out, "feed:1234_0")
	assert.Contains(t, out, "Corne Keyboard")
	assert.Contains(t, out, "Kyria Keyboard")
	assert.Contains(t, out, "0xFEED")
}

func TestSettings_Language(t *testing.T) {
	dir := setupEnv(t)

	out := mustRun(t, "settings")
	assert.Contains(t, out, "language:     en")

	out = mustRun(t, "settings", "--language", "de")
	assert.Contains(t, out, "language:     de")
	assert.Equal(t, "de", readSettingsFile(t, dir)["language"])

	_, err := runCLI(t, context.Background(), "settings", "--language", "not a tag!")
	assert.ErrorContains(t, err, "invalid language")
}

func TestServe_StopsOnCancelAndSaves(t *testing.T) {
	dir := setupEnv(t)
	mustRun(t, "repos", "add", repoURL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runCLI(t, ctx, "serve")
	require.NoError(t, err)

	doc := readSettingsFile(t, dir)
	assert.Equal(t, repoURL, doc["selectedRepositoryUrl"])
	assert.FileExists(t, filepath.Join(dir, "keyflash.db"))
}

func TestInvalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("KEYFLASH_RUN_COUNT", "0")

	_, err := runCLI(t, context.Background(), "devices")

	assert.ErrorContains(t, err, "KEYFLASH_RUN_COUNT")
}
