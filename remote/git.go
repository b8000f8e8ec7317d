package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/FeiyouG/skill-lab-sub000/local"
)

// GitBinary is the git executable used for checkouts.
var GitBinary = "git"

// CheckoutGit clones source (a URL or a local repository path) into a
// temporary directory and checks out ref. An empty ref keeps the default
// branch head. The resolved commit is recorded as the revision.
func CheckoutGit(ctx context.Context, source, ref string, opts ...Option) (*Checkout, error) {
	o := newOptions(opts)

	dir, err := os.MkdirTemp("", "slab-git-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	co := &Checkout{Dir: dir}

	if _, err := git(ctx, "", "clone", "--quiet", "--no-checkout", source, dir); err != nil {
		co.Cleanup()
		return nil, err
	}
	target := ref
	if target == "" {
		target = "HEAD"
	}
	if _, err := git(ctx, dir, "checkout", "--quiet", "--detach", target); err != nil {
		co.Cleanup()
		return nil, fmt.Errorf("checking out %s: %w", target, err)
	}
	rev, err := git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		co.Cleanup()
		return nil, err
	}
	co.Revision = rev
	o.log.Debug("git checkout", zap.String("source", source), zap.String("ref", target), zap.String("commit", rev))

	root := dir
	if o.subdir != "" {
		root = filepath.Join(dir, filepath.FromSlash(o.subdir))
	}
	co.Repo, err = local.NewDirRepository(root)
	if err != nil {
		co.Cleanup()
		return nil, err
	}
	return co, nil
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, GitBinary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return strings.TrimSpace(string(out)), nil
}
