package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatePaths_Resolve(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	var sp StatePaths

	got, err := sp.Resolve("~/.lensbot/lensbot.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".lensbot", "lensbot.db"), got)

	got, err = sp.Resolve("relative.db")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))

	_, err = sp.Resolve("")
	assert.ErrorContains(t, err, "empty")

	_, err = sp.Resolve("/tmp/../etc/passwd")
	assert.ErrorContains(t, err, "traversal")

	_, err = sp.Resolve("~other/db")
	assert.ErrorContains(t, err, "tilde")

	_, err = sp.Resolve("db\x00name")
	assert.ErrorContains(t, err, "null")
}

func TestStatePaths_Root(t *testing.T) {
	root := t.TempDir()
	sp := StatePaths{Root: root}

	got, err := sp.Resolve(filepath.Join(root, "state", "lensbot.db"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "state", "lensbot.db"), got)

	_, err = sp.Resolve(filepath.Join(filepath.Dir(root), "elsewhere.db"))
	assert.ErrorContains(t, err, "outside")
}

func TestStatePaths_EnsureParent(t *testing.T) {
	root := t.TempDir()
	var sp StatePaths

	target := filepath.Join(root, "nested", "dir", "lensbot.db")
	got, err := sp.EnsureParent(target)
	require.NoError(t, err)
	assert.Equal(t, target, got)

	info, err := os.Stat(filepath.Join(root, "nested", "dir"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = sp.EnsureParent(root)
	assert.ErrorContains(t, err, "is a directory")
}
