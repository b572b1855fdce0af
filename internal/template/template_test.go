package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayWritesSandboxFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Overlay(root))

	df, err := os.ReadFile(filepath.Join(root, "Dockerfile"))
	require.NoError(t, err)
	assert.Contains(t, string(df), "foundry")

	info, err := os.Stat(filepath.Join(root, "entrypoint.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "entrypoint must be executable")
}

func TestOverlayDockerfileAlwaysWins(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Dockerfile"), []byte("FROM evil\n"), 0o644))

	require.NoError(t, Overlay(root))

	df, err := os.ReadFile(filepath.Join(root, "Dockerfile"))
	require.NoError(t, err)
	assert.NotContains(t, string(df), "evil")
}

func TestOverlayKeepsCallerEntrypoint(t *testing.T) {
	root := t.TempDir()
	custom := "#!/bin/sh\necho custom\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "entrypoint.sh"), []byte(custom), 0o755))

	require.NoError(t, Overlay(root))

	got, err := os.ReadFile(filepath.Join(root, "entrypoint.sh"))
	require.NoError(t, err)
	assert.Equal(t, custom, string(got))
}

func TestCommands(t *testing.T) {
	assert.Equal(t, []string{"snapshot"}, SnapshotCommand())
	assert.Equal(t, []string{"compare"}, CompareCommand(nil))
	assert.Equal(t,
		[]string{"compare", "--match-test", "testFoo"},
		CompareCommand([]string{"--match-test", "testFoo"}))
}

func TestSentinelMatchesEntrypoint(t *testing.T) {
	assert.Contains(t, string(entrypoint), "SNAPSHOT_ONLY_EXIT=166")
	assert.Equal(t, 166, SnapshotOnlyExitCode)
}
