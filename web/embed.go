// Package web embeds the single-page dashboard served at the root path.
package web

import (
	"embed"
	"io/fs"
)

//go:embed dist/*
var embeddedFiles embed.FS

// GetFileSystem returns the dashboard page and its assets.
// The returned filesystem has the "dist" prefix stripped.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(embeddedFiles, "dist")
}
