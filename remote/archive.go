// Package remote provides repositories for skills that do not live in a
// local directory: a git source pinned at a revision and a .tar.gz archive
// served over HTTP(S), such as an S3 or GCS object URL.
package remote

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/local"
	"github.com/FeiyouG/skill-lab-sub000/trust"
)

const (
	defaultMaxArchiveSize = 64 << 20
	defaultMaxEntrySize   = 8 << 20
	defaultMaxEntries     = 5000
)

// ErrChecksumMismatch is returned when a downloaded archive does not match
// the expected checksum.
var ErrChecksumMismatch = errors.New("archive checksum mismatch")

// Checkout is a materialized copy of a remote skill. Callers must call
// Cleanup when done.
type Checkout struct {
	Dir string
	// Revision is the resolved commit for git sources and the archive
	// checksum for archives.
	Revision string
	Repo     *local.Repository
}

// Cleanup removes the temporary copy.
func (c *Checkout) Cleanup() {
	if c != nil && c.Dir != "" {
		os.RemoveAll(c.Dir)
	}
}

type options struct {
	client     *http.Client
	log        *zap.Logger
	checksum   string
	maxSize    int64
	maxEntry   int64
	maxEntries int
	subdir     string
}

// Option configures a fetch.
type Option func(*options)

// WithHTTPClient sets the client used for archive downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithChecksum requires the archive to match a "sha256:<hex>" checksum.
func WithChecksum(sum string) Option {
	return func(o *options) { o.checksum = sum }
}

// WithLimits bounds the archive size, the size of each entry and the number
// of entries. Zero keeps the default.
func WithLimits(maxSize, maxEntry int64, maxEntries int) Option {
	return func(o *options) {
		if maxSize > 0 {
			o.maxSize = maxSize
		}
		if maxEntry > 0 {
			o.maxEntry = maxEntry
		}
		if maxEntries > 0 {
			o.maxEntries = maxEntries
		}
	}
}

// WithSubdir selects the skill directory inside the source.
func WithSubdir(dir string) Option {
	return func(o *options) { o.subdir = contract.NormalizePath(dir) }
}

func newOptions(opts []Option) *options {
	o := &options{
		client:     http.DefaultClient,
		log:        zap.NewNop(),
		maxSize:    defaultMaxArchiveSize,
		maxEntry:   defaultMaxEntrySize,
		maxEntries: defaultMaxEntries,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FetchArchive downloads a .tar.gz archive and extracts it into a temporary
// directory. A single top-level directory, as produced by most archive
// exporters, is stripped unless the archive root holds the manifest.
func FetchArchive(ctx context.Context, url string, opts ...Option) (*Checkout, error) {
	o := newOptions(opts)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, o.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	if int64(len(data)) > o.maxSize {
		return nil, fmt.Errorf("archive exceeds maximum size (%d bytes)", o.maxSize)
	}

	if o.checksum != "" && !trust.VerifyChecksum(data, o.checksum) {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, o.checksum, trust.ComputeChecksum(data))
	}
	sum := trust.ComputeChecksum(data)
	o.log.Debug("archive downloaded", zap.String("url", url), zap.Int("bytes", len(data)), zap.String("checksum", sum))

	dir, err := os.MkdirTemp("", "slab-archive-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	co := &Checkout{Dir: dir, Revision: sum}

	if err := extract(bytes.NewReader(data), dir, o); err != nil {
		co.Cleanup()
		return nil, err
	}

	root, err := skillRoot(dir, o.subdir)
	if err != nil {
		co.Cleanup()
		return nil, err
	}
	co.Repo, err = local.NewDirRepository(root)
	if err != nil {
		co.Cleanup()
		return nil, err
	}
	return co, nil
}

func extract(r io.Reader, dir string, o *options) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	entries := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		entries++
		if entries > o.maxEntries {
			return fmt.Errorf("archive exceeds maximum entry count (%d)", o.maxEntries)
		}
		name := sanitize(hdr.Name)
		if name == "" {
			o.log.Debug("archive entry rejected", zap.String("name", hdr.Name))
			continue
		}
		if hdr.Size > o.maxEntry {
			o.log.Debug("archive entry too large", zap.String("name", name), zap.Int64("size", hdr.Size))
			continue
		}
		if err := writeEntry(tr, dir, name, o.maxEntry); err != nil {
			return err
		}
	}
}

func writeEntry(r io.Reader, dir, name string, limit int64) error {
	dest := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(filepath.Clean(dest), filepath.Clean(dir)+string(os.PathSeparator)) {
		return fmt.Errorf("path traversal detected: %q", name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory for %q: %w", name, err)
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating file %q: %w", name, err)
	}
	_, err = io.Copy(f, io.LimitReader(r, limit))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing file %q: %w", name, err)
	}
	return nil
}

// sanitize cleans a tar entry name. Absolute and escaping paths are
// rejected with "".
func sanitize(name string) string {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return ""
	}
	for _, seg := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
		if seg == ".." {
			return ""
		}
	}
	return contract.NormalizePath(name)
}

// skillRoot resolves the directory holding the manifest: dir/subdir when a
// subdir is given, otherwise dir or its only child directory.
func skillRoot(dir, subdir string) (string, error) {
	if subdir != "" {
		return filepath.Join(dir, filepath.FromSlash(subdir)), nil
	}
	if _, err := os.Stat(filepath.Join(dir, contract.ManifestName)); err == nil {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", dir, err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}
