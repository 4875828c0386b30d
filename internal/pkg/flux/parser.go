// Package flux looks up Flux GitRepository and HelmRelease entities in a
// rendered platform manifest.
package flux

import (
	"fmt"
	"sort"

	"bbinflator/internal/pkg/errs"
	"bbinflator/internal/pkg/logger"
	"bbinflator/internal/pkg/values"

	"gopkg.in/yaml.v3"
)

const (
	KindGitRepository = "GitRepository"
	KindHelmRelease   = "HelmRelease"
)

type GitRepository struct {
	Name   string
	URL    string
	Tag    string
	Branch string
}

// Ref returns the tag, or the branch when no tag is set.
func (r GitRepository) Ref() string {
	if r.Tag != "" {
		return r.Tag
	}
	return r.Branch
}

type HelmRelease struct {
	Name            string
	Chart           string
	TargetNamespace string
}

// Component is everything needed to render one platform component.
type Component struct {
	Name      string
	URL       string
	Ref       string
	ChartPath string
	Namespace string
}

type rawGitRepository struct {
	Metadata struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
	Spec struct {
		URL string `yaml:"url"`
		Ref struct {
			Tag    string `yaml:"tag"`
			Branch string `yaml:"branch"`
		} `yaml:"ref"`
	} `yaml:"spec"`
}

type rawHelmRelease struct {
	Metadata struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
	Spec struct {
		TargetNamespace string `yaml:"targetNamespace"`
		Chart           struct {
			Spec struct {
				Chart string `yaml:"chart"`
			} `yaml:"spec"`
		} `yaml:"chart"`
	} `yaml:"spec"`
}

// Sources holds the entities of interest found in a manifest stream.
type Sources struct {
	GitRepositories []GitRepository
	HelmReleases    []HelmRelease
}

// ParseSources decodes every GitRepository and HelmRelease in manifest.
// Filters see each GitRepository joined with its HelmRelease; repositories
// they reject are dropped.
func ParseSources(manifest []byte, filters Filters) (Sources, error) {
	var (
		sources     Sources
		repoDocs    []*yaml.Node
		releaseDocs = map[string]*yaml.Node{}
	)
	err := values.ForEachDocument(manifest, func(node *yaml.Node) error {
		kind, _ := values.ScalarAt(node, "kind")
		name, _ := values.ScalarAt(node, "metadata", "name")

		switch kind {
		case KindGitRepository:
			var raw rawGitRepository
			if err := node.Decode(&raw); err != nil {
				return fmt.Errorf("failed to decode GitRepository %q: %w", name, err)
			}
			sources.GitRepositories = append(sources.GitRepositories, GitRepository{
				Name:   raw.Metadata.Name,
				URL:    raw.Spec.URL,
				Tag:    raw.Spec.Ref.Tag,
				Branch: raw.Spec.Ref.Branch,
			})
			repoDocs = append(repoDocs, node)
		case KindHelmRelease:
			var raw rawHelmRelease
			if err := node.Decode(&raw); err != nil {
				return fmt.Errorf("failed to decode HelmRelease %q: %w", name, err)
			}
			sources.HelmReleases = append(sources.HelmReleases, HelmRelease{
				Name:            raw.Metadata.Name,
				Chart:           raw.Spec.Chart.Spec.Chart,
				TargetNamespace: raw.Spec.TargetNamespace,
			})
			if _, dup := releaseDocs[name]; !dup {
				releaseDocs[name] = node
			}
		}
		return nil
	})
	if err != nil {
		return Sources{}, err
	}
	if len(filters) == 0 {
		return sources, nil
	}

	kept := sources.GitRepositories[:0]
	for i, repo := range sources.GitRepositories {
		c := Candidate{
			Repo:       repo,
			RepoDoc:    repoDocs[i],
			Release:    sources.release(repo.Name),
			ReleaseDoc: releaseDocs[repo.Name],
		}
		if ok, failed := filters.MatchAll(c); !ok {
			logger.Log.WithField("component", repo.Name).Debugf("Skipped by filter (%s)", failed)
			continue
		}
		kept = append(kept, repo)
	}
	sources.GitRepositories = kept
	return sources, nil
}

// release returns the first HelmRelease called name.
func (s Sources) release(name string) *HelmRelease {
	for i := range s.HelmReleases {
		if s.HelmReleases[i].Name == name {
			return &s.HelmReleases[i]
		}
	}
	return nil
}

// ListNames returns the distinct GitRepository names in manifest, sorted.
func ListNames(manifest []byte, filters Filters) ([]string, error) {
	sources, err := ParseSources(manifest, filters)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	names := []string{}
	for _, repo := range sources.GitRepositories {
		if repo.Name == "" || seen[repo.Name] {
			continue
		}
		seen[repo.Name] = true
		names = append(names, repo.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Lookup resolves the component called name.
func Lookup(manifest []byte, name string) (Component, error) {
	sources, err := ParseSources(manifest, nil)
	if err != nil {
		return Component{}, err
	}

	var repo *GitRepository
	for i := range sources.GitRepositories {
		if sources.GitRepositories[i].Name == name {
			repo = &sources.GitRepositories[i]
			break
		}
	}
	if repo == nil {
		return Component{}, &errs.ComponentNotFoundError{Kind: KindGitRepository, Name: name}
	}
	if repo.Ref() == "" {
		return Component{}, &errs.NoRefError{Name: name}
	}

	release := sources.release(name)
	if release == nil || release.Chart == "" {
		return Component{}, &errs.ComponentNotFoundError{Kind: KindHelmRelease, Name: name}
	}

	c := Component{
		Name:      name,
		URL:       repo.URL,
		Ref:       repo.Ref(),
		ChartPath: release.Chart,
		Namespace: release.TargetNamespace,
	}
	logger.Log.WithField("component", name).Infof("Resolved %s@%s chart %s", c.URL, c.Ref, c.ChartPath)
	return c, nil
}
