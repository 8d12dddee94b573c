package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-binary")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestFindBinary(t *testing.T) {
	t.Run("configured path wins", func(t *testing.T) {
		configured := writeExecutable(t)
		t.Setenv("TEST_BINARY_PATH", writeExecutable(t))

		path, err := FindBinary("ls", configured, "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.Equal(t, configured, path)
	})

	t.Run("configured path must be executable", func(t *testing.T) {
		plain := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(plain, nil, 0o644))

		_, err := FindBinary("ls", plain, "")
		assert.ErrorContains(t, err, "not executable")
	})

	t.Run("env var takes priority over PATH", func(t *testing.T) {
		envPath := writeExecutable(t)
		t.Setenv("TEST_BINARY_PATH", envPath)

		path, err := FindBinary("ls", "", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.Equal(t, envPath, path)
	})

	t.Run("ignores env var pointing nowhere", func(t *testing.T) {
		t.Setenv("TEST_BINARY_PATH", "/nonexistent/path/to/binary")

		path, err := FindBinary("ls", "", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.NotEqual(t, "/nonexistent/path/to/binary", path)
	})

	t.Run("returns error when binary not found", func(t *testing.T) {
		path, err := FindBinary("definitely-nonexistent-binary-12345", "", "")
		assert.ErrorContains(t, err, "not found")
		assert.Empty(t, path)
	})
}

func TestIsExecutable(t *testing.T) {
	assert.True(t, IsExecutable(writeExecutable(t)))
	assert.False(t, IsExecutable(t.TempDir()))
	assert.False(t, IsExecutable("/nonexistent"))
}
