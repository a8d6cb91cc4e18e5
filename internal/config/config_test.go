package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWithMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	require.Equal(t, Default().BufferPoolSize, cfg.BufferPoolSize)
}

func TestLoadOverlaysConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reldb.hcl")
	require.NoError(t, os.WriteFile(path, []byte("buffer_pool_size = 42\ndata_dir = \"/tmp/x\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 42, cfg.BufferPoolSize)
	require.Equal(t, "/tmp/x", cfg.DataDir)
}

func TestSnapshotRoundTripsAndDetectsMismatch(t *testing.T) {
	dir := t.TempDir()
	_, ok, err := ReadSnapshot(dir)
	require.NoError(t, err)
	require.False(t, ok)

	want := Snapshot{PageSize: 4096, BufferPoolSize: 256}
	require.NoError(t, WriteSnapshot(dir, want))

	got, ok, err := ReadSnapshot(dir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
	require.NoError(t, CheckCompatible(got, want))

	require.Error(t, CheckCompatible(got, Snapshot{PageSize: 8192, BufferPoolSize: 256}))
}
