package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"bbinflator/internal/pkg/logger"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

var fetchRefSpecs = []config.RefSpec{
	"+refs/heads/*:refs/remotes/origin/*",
	"+refs/tags/*:refs/tags/*",
}

// GoGitCache manages the cache in-process with go-git.
type GoGitCache struct {
	Root string
}

func (c GoGitCache) Ensure(ctx context.Context, repoURL, name, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("cannot check out %s: empty ref", repoURL)
	}
	dir := filepath.Join(c.Root, name)
	logCtx := logger.Log.WithField("repo", name)

	repo, err := gogit.PlainOpen(dir)
	switch {
	case errors.Is(err, gogit.ErrRepositoryNotExists):
		if err := os.MkdirAll(c.Root, 0755); err != nil {
			return "", fmt.Errorf("failed to create cache directory %s: %w", c.Root, err)
		}
		logCtx.Infof("Cloning %s to %s", repoURL, dir)
		repo, err = gogit.PlainCloneContext(ctx, dir, false, &gogit.CloneOptions{
			URL:  repoURL,
			Tags: gogit.AllTags,
		})
		if err != nil {
			return "", fmt.Errorf("git clone failed for %s: %w", repoURL, err)
		}
	case err != nil:
		return "", fmt.Errorf("failed to open cached repository %s: %w", dir, err)
	default:
		logCtx.Infof("Using cached repository at %s, fetching", dir)
		err = repo.FetchContext(ctx, &gogit.FetchOptions{
			RemoteName: "origin",
			RefSpecs:   fetchRefSpecs,
			Tags:       gogit.AllTags,
			Force:      true,
		})
		if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
			return "", fmt.Errorf("git fetch failed for %s: %w", repoURL, err)
		}
	}

	hash, err := resolveRef(repo, ref)
	if err != nil {
		return "", fmt.Errorf("git checkout failed for %s: %w", repoURL, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to open worktree %s: %w", dir, err)
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return "", fmt.Errorf("git checkout failed for %s (ref %s): %w", repoURL, ref, err)
	}

	logCtx.Infof("Checked out %s at %s", ref, hash.String()[:12])
	return dir, nil
}

// resolveRef prefers the remote-tracking branch so a fetched branch tip wins
// over a stale local one, then falls back to tags and hashes.
func resolveRef(repo *gogit.Repository, ref string) (plumbing.Hash, error) {
	candidates := []string{"refs/remotes/origin/" + ref, "refs/tags/" + ref, ref}
	for _, candidate := range candidates {
		h, err := repo.ResolveRevision(plumbing.Revision(candidate))
		if err == nil {
			return *h, nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("ref %q not found", ref)
}
