// Package git keeps a local cache of repositories checked out at a ref.
//
// Each repository lives in <root>/<name>. An absent entry is cloned, a present
// one is fetched; both are then checked out to the requested ref. Entries are
// never removed.
package git

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"bbinflator/internal/pkg/command"
	"bbinflator/internal/pkg/logger"
)

// Cache ensures a repository is present under a cache root at ref and
// returns the working tree path.
type Cache interface {
	Ensure(ctx context.Context, repoURL, name, ref string) (string, error)
}

// RepoName derives a cache entry name from a repository URL: the final path
// segment without a ".git" suffix.
func RepoName(repoURL string) string {
	p := strings.TrimSpace(repoURL)
	if u, err := url.Parse(p); err == nil && u.Scheme != "" {
		p = u.Path
	} else if i := strings.LastIndex(p, ":"); i >= 0 {
		// scp-like "git@host:org/repo.git"
		p = p[i+1:]
	}
	p = strings.TrimRight(p, "/")
	return strings.TrimSuffix(path.Base(p), ".git")
}

// CLICache drives the git binary.
type CLICache struct {
	Root   string
	Binary string
}

func (c CLICache) bin() string {
	if c.Binary == "" {
		return "git"
	}
	return c.Binary
}

func (c CLICache) Ensure(ctx context.Context, repoURL, name, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("cannot check out %s: empty ref", repoURL)
	}
	dir := filepath.Join(c.Root, name)
	logCtx := logger.Log.WithField("repo", name)

	if isRepo(dir) {
		logCtx.Infof("Using cached repository at %s, fetching", dir)
		if _, err := command.Run(ctx, command.Options{}, c.bin(), "-C", dir, "fetch", "--tags", "--force", "--prune", "origin"); err != nil {
			return "", fmt.Errorf("git fetch failed for %s: %w", repoURL, err)
		}
	} else {
		if err := os.MkdirAll(c.Root, 0755); err != nil {
			return "", fmt.Errorf("failed to create cache directory %s: %w", c.Root, err)
		}
		logCtx.Infof("Cloning %s to %s", repoURL, dir)
		if _, err := command.Run(ctx, command.Options{}, c.bin(), "clone", repoURL, dir); err != nil {
			return "", fmt.Errorf("git clone failed for %s: %w", repoURL, err)
		}
	}

	if _, err := command.Run(ctx, command.Options{}, c.bin(), "-C", dir, "checkout", "--force", ref); err != nil {
		return "", fmt.Errorf("git checkout failed for %s (ref %s): %w", repoURL, ref, err)
	}

	// A branch checkout lands on the local branch; move it to the fetched tip.
	remoteRef := "refs/remotes/origin/" + ref
	if _, err := command.Run(ctx, command.Options{}, c.bin(), "-C", dir, "rev-parse", "--verify", "--quiet", remoteRef); err == nil {
		if _, err := command.Run(ctx, command.Options{}, c.bin(), "-C", dir, "reset", "--hard", remoteRef); err != nil {
			return "", fmt.Errorf("git reset failed for %s (ref %s): %w", repoURL, ref, err)
		}
	}

	logCtx.Infof("Checked out %s", ref)
	return dir, nil
}

func isRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}
