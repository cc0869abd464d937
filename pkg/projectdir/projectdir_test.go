package projectdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsure_CreatesWellKnownSubdirectories(t *testing.T) {
	root := t.TempDir()
	layout := New(root)

	require.NoError(t, layout.Ensure([]string{"default", "docs"}))

	for _, dir := range []string{
		layout.ResultStoreDir(),
		layout.QueueDir(),
		filepath.Join(root, "logs"),
		layout.VectorStoreDir("default"),
		layout.VectorStoreDir("docs"),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLayout_PathHelpers(t *testing.T) {
	layout := New("/data/myproject")

	assert.Equal(t, "/data/myproject/manifest.yaml", layout.ManifestPath())
	assert.Equal(t, "/data/myproject/result_store", layout.ResultStoreDir())
	assert.Equal(t, "/data/myproject/logs/api-server.log", layout.LogPath("api-server"))
	assert.Equal(t, "/data/myproject/queue", layout.QueueDir())
	assert.Equal(t, "/data/myproject/vector_store/default", layout.VectorStoreDir("default"))
}
