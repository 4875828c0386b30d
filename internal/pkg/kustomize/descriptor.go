package kustomize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bbinflator/internal/pkg/errs"
	"bbinflator/internal/pkg/logger"

	"sigs.k8s.io/kustomize/api/types"
	"sigs.k8s.io/yaml"
)

var descriptorNames = []string{"kustomization.yaml", "kustomization.yml"}

// PlatformSource is a remote base pinned by a kustomization descriptor.
type PlatformSource struct {
	RepoURL string
	Subdir  string
	Ref     string
}

// FindDescriptor returns the path of the kustomization descriptor in dir.
func FindDescriptor(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", errs.Preconditionf("kustomization directory %s does not exist", dir)
	}
	for _, name := range descriptorNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errs.Preconditionf("no kustomization.yaml or kustomization.yml found in %s", dir)
}

// LoadDescriptor finds and decodes the kustomization descriptor in dir.
func LoadDescriptor(dir string) (*types.Kustomization, string, error) {
	path, err := FindDescriptor(dir)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	var k types.Kustomization
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	logger.Log.WithField("file", path).Debugf("Parsed kustomization: %d bases, %d resources", len(k.Bases), len(k.Resources))
	return &k, path, nil
}

// BaseDir returns the sibling "<dir>-base" directory holding common configuration.
func BaseDir(dir string) string {
	clean := filepath.Clean(dir)
	return clean + "-base"
}

// ParseGitBase parses a remote base entry such as
// "git::https://host/org/repo.git//sub/dir?ref=1.2.3". Any entry carrying a
// ref query parameter is remote, including the scheme-less
// "host/org/repo//dir?ref=..." form, which is cloned over https. The ref is
// taken verbatim. The second result is false when the entry is not remote.
func ParseGitBase(entry string) (PlatformSource, bool) {
	raw := strings.TrimSpace(entry)
	isGit := strings.HasPrefix(raw, "git::")
	raw = strings.TrimPrefix(raw, "git::")

	var src PlatformSource
	urlPart, query, _ := strings.Cut(raw, "?")
	hasRef := false
	for _, param := range strings.Split(query, "&") {
		if v, ok := strings.CutPrefix(param, "ref="); ok {
			src.Ref = v
			hasRef = true
			break
		}
	}
	hasScheme := strings.Contains(urlPart, "://")
	isSSH := strings.HasPrefix(urlPart, "git@")
	if !isGit && !hasScheme && !isSSH && !hasRef {
		return PlatformSource{}, false
	}

	searchFrom := 0
	if i := strings.Index(urlPart, "://"); i >= 0 {
		searchFrom = i + len("://")
	}
	if i := strings.Index(urlPart[searchFrom:], "//"); i >= 0 {
		src.RepoURL = urlPart[:searchFrom+i]
		src.Subdir = urlPart[searchFrom+i+2:]
	} else {
		src.RepoURL = urlPart
	}
	src.RepoURL = strings.TrimRight(src.RepoURL, "/")
	src.Subdir = strings.Trim(src.Subdir, "/")
	if !hasScheme && !isSSH && !strings.HasPrefix(src.RepoURL, "/") {
		src.RepoURL = "https://" + src.RepoURL
	}
	return src, true
}

// PlatformRef returns the single ref-pinned remote base of the descriptor in
// dir. Entries naming the same ref collapse; distinct refs are ambiguous.
func PlatformRef(dir string) (PlatformSource, error) {
	k, path, err := LoadDescriptor(dir)
	if err != nil {
		return PlatformSource{}, err
	}

	var (
		found []PlatformSource
		refs  []string
		seen  = map[string]bool{}
	)
	entries := append(append([]string{}, k.Bases...), k.Resources...)
	for _, entry := range entries {
		if !strings.Contains(entry, "ref=") {
			continue
		}
		src, ok := ParseGitBase(entry)
		if !ok || src.Ref == "" {
			continue
		}
		if !seen[src.Ref] {
			seen[src.Ref] = true
			refs = append(refs, src.Ref)
		}
		found = append(found, src)
	}

	switch {
	case len(found) == 0:
		return PlatformSource{}, errs.Preconditionf("no base with a ?ref= parameter in %s", path)
	case len(refs) > 1:
		return PlatformSource{}, &errs.AmbiguousRefError{File: path, Refs: refs}
	}
	logger.Log.WithField("file", path).Infof("Resolved platform ref %s from %s", found[0].Ref, found[0].RepoURL)
	return found[0], nil
}

// ResolveGitSource walks dir and its local bases until it finds a remote
// base. Without one there is no repository to clone; the error then carries
// any GitRepository tag found in inline strategic-merge patches.
func ResolveGitSource(dir string) (PlatformSource, error) {
	return resolveGitSource(dir, map[string]bool{})
}

func resolveGitSource(dir string, seen map[string]bool) (PlatformSource, error) {
	k, path, err := LoadDescriptor(dir)
	if err != nil {
		return PlatformSource{}, err
	}
	logCtx := logger.Log.WithField("file", path)

	for _, base := range k.Bases {
		if src, ok := ParseGitBase(base); ok {
			logCtx.Debugf("Parsed remote base: repo=%s subdir=%s ref=%s", src.RepoURL, src.Subdir, src.Ref)
			return src, nil
		}
		local := filepath.Clean(filepath.Join(dir, base))
		if seen[local] {
			logCtx.Errorf("Circular base reference detected: %s", local)
			continue
		}
		seen[local] = true
		src, err := resolveGitSource(local, seen)
		if err != nil {
			logCtx.Debugf("Failed to parse base %s: %v", local, err)
			continue
		}
		return src, nil
	}

	var ref string
	for _, patch := range k.PatchesStrategicMerge {
		p := string(patch)
		if !strings.Contains(p, "kind: GitRepository") {
			continue
		}
		for _, line := range strings.Split(p, "\n") {
			if _, after, ok := strings.Cut(line, "tag:"); ok {
				ref = strings.Trim(strings.TrimSpace(after), `"'`)
			}
		}
	}
	return PlatformSource{}, fmt.Errorf("could not parse git repo URL and ref from %s (ref from patches: %q)", path, ref)
}

// FindSecretsFiles returns the secrets files named fileName in dir and in
// every local base reachable from it.
func FindSecretsFiles(dir, fileName string) ([]string, error) {
	var found []string
	seen := map[string]bool{}
	stack := []string{dir}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		abs, err := filepath.Abs(current)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", current, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true

		candidate := filepath.Join(abs, fileName)
		if _, err := os.Stat(candidate); err == nil {
			found = append(found, candidate)
		}

		k, _, err := LoadDescriptor(abs)
		if err != nil {
			continue
		}
		for _, base := range k.Bases {
			if _, remote := ParseGitBase(base); remote {
				continue
			}
			stack = append(stack, filepath.Join(abs, base))
		}
	}
	return found, nil
}
