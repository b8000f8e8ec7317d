// Package contract defines the data model and interfaces shared by the
// analysis stages.
package contract

import (
	"context"
	"errors"
)

var (
	// ErrManifestNotFound is returned when a package has no SKILL.md.
	ErrManifestNotFound = errors.New("skill manifest not found")
	// ErrInvalidManifest is returned when SKILL.md has no usable frontmatter.
	ErrInvalidManifest = errors.New("invalid skill manifest")
)

// ManifestName is the file name of the package manifest.
const ManifestName = "SKILL.md"

// Content types reported by a Repository.
const (
	ContentText   = "text"
	ContentBinary = "binary"
)

// FileInfo describes one file of a package.
type FileInfo struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Repository provides read access to the files of a single skill package.
// Paths are slash separated and relative to the package root.
type Repository interface {
	// ListFiles returns every file under dir ("" for the whole package).
	ListFiles(ctx context.Context, dir string) ([]FileInfo, error)

	// ReadText returns the text of the file at path.
	ReadText(ctx context.Context, path string) (string, error)

	// ReadManifest returns the raw bytes of the manifest document.
	ReadManifest(ctx context.Context) ([]byte, error)
}
