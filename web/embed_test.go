package web

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFileSystem(t *testing.T) {
	fsys, err := GetFileSystem()
	require.NoError(t, err)

	for _, name := range []string{"index.html", "app.js", "app.css"} {
		data, err := fs.ReadFile(fsys, name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}

	index, err := fs.ReadFile(fsys, "index.html")
	require.NoError(t, err)
	assert.Contains(t, string(index), `src="app.js"`)
}
