package xfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home, ExpandTilde("~"))
	assert.Equal(t, filepath.Join(home, "models"), ExpandTilde("~/models"))
	assert.Equal(t, "/var/lib/ttsd", ExpandTilde("/var/lib/ttsd"))
	assert.Equal(t, "~other/models", ExpandTilde("~other/models"))
}

func TestFindByExt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "en", "vctk"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en", "vctk", "voice.onnx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en", "vctk", "voice.onnx.json"), []byte("{}"), 0o644))

	found, err := FindByExt(dir, ".onnx")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "en", "vctk", "voice.onnx")}, found)
}
