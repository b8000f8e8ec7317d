// Package local provides skill package access backed by an fs.FS or a
// directory on disk.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// sniffLen is how much of a file is inspected for binary content.
const sniffLen = 512

// Repository implements contract.Repository over an fs.FS rooted at a
// skill package.
type Repository struct {
	fsys fs.FS
	root string
}

// NewRepository creates a Repository reading from fsys.
func NewRepository(fsys fs.FS) *Repository {
	return &Repository{fsys: fsys}
}

// NewDirRepository creates a Repository over a directory on disk.
func NewDirRepository(dir string) (*Repository, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening skill directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening skill directory: %s is not a directory", dir)
	}
	return &Repository{fsys: os.DirFS(dir), root: dir}, nil
}

// Root returns the directory a Repository was opened on, or "" for an
// in-memory filesystem.
func (r *Repository) Root() string {
	return r.root
}

// ListFiles returns every regular file under dir. Hidden directories such
// as .git are skipped.
func (r *Repository) ListFiles(ctx context.Context, dir string) ([]contract.FileInfo, error) {
	start := contract.NormalizePath(dir)
	if start == "" {
		start = "."
	}

	var files []contract.FileInfo
	err := fs.WalkDir(r.fsys, start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != start && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, contract.FileInfo{
			Path:        p,
			Size:        info.Size(),
			ContentType: r.contentType(p),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", start, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadText returns the content of the file at p.
func (r *Repository) ReadText(_ context.Context, p string) (string, error) {
	data, err := fs.ReadFile(r.fsys, contract.NormalizePath(p))
	if err != nil {
		return "", err
	}
	if bytes.IndexByte(data[:min(len(data), sniffLen)], 0) >= 0 {
		return "", fmt.Errorf("reading %s: binary content", p)
	}
	return string(data), nil
}

// ReadManifest returns the raw SKILL.md document.
func (r *Repository) ReadManifest(_ context.Context) ([]byte, error) {
	data, err := fs.ReadFile(r.fsys, contract.ManifestName)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", contract.ErrManifestNotFound, path.Join(r.root, contract.ManifestName))
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", contract.ManifestName, err)
	}
	return data, nil
}

func (r *Repository) contentType(p string) string {
	switch contract.DetectLanguage(p) {
	case contract.LangBinary:
		return contract.ContentBinary
	case contract.LangUnknown:
		if isBinary(r.fsys, p) {
			return contract.ContentBinary
		}
	}
	return contract.ContentText
}

func isBinary(fsys fs.FS, p string) bool {
	f, err := fsys.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
