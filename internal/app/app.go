package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bbinflator/internal/config"
	"bbinflator/internal/pkg/artifact"
	"bbinflator/internal/pkg/errs"
	"bbinflator/internal/pkg/flux"
	"bbinflator/internal/pkg/git"
	"bbinflator/internal/pkg/helm"
	"bbinflator/internal/pkg/kustomize"
	"bbinflator/internal/pkg/logger"
	"bbinflator/internal/pkg/sops"
	"bbinflator/internal/pkg/values"
)

// Backends are the tools the flows are built from. Orchestration only sees
// these interfaces.
type Backends struct {
	Kustomize kustomize.Builder
	Decryptor sops.Decryptor
	Values    values.Processor
	Git       git.Cache
	Helm      helm.Renderer
	// CacheAt returns a cache of the configured kind rooted elsewhere.
	CacheAt func(root string) git.Cache
}

// NewBackends selects implementations according to cfg.Backends.
func NewBackends(cfg *config.Config) Backends {
	b := Backends{
		Kustomize: kustomize.CLIBuilder{Binary: cfg.Tools.Kustomize},
		Decryptor: sops.CLIDecryptor{Binary: cfg.Tools.Sops},
		Values:    values.NativeProcessor{},
		Helm:      helm.CLIRenderer{Binary: cfg.Tools.Helm},
	}
	if cfg.Backends.Kustomize == config.BackendKrusty {
		b.Kustomize = kustomize.KrustyBuilder{}
	}
	if cfg.Backends.YAML == config.BackendYQ {
		b.Values = values.YQProcessor{Binary: cfg.Tools.YQ}
	}
	if cfg.Backends.Helm == config.BackendSDK {
		b.Helm = helm.SDKRenderer{}
	}
	b.CacheAt = func(root string) git.Cache {
		if cfg.Backends.Git == config.BackendGoGit {
			return git.GoGitCache{Root: root}
		}
		return git.CLICache{Root: root, Binary: cfg.Tools.Git}
	}
	b.Git = b.CacheAt(cfg.Paths.Repos)
	return b
}

func storeFor(cfg *config.Config) artifact.Store {
	return artifact.Store{Dir: cfg.Paths.Generated, Diff: cfg.Output.Diff}
}

// BuildPlatform renders the platform for the kustomization in dir: the
// kustomize output, both decrypted secrets payloads, the merged values and
// finally the platform chart rendered with them.
func BuildPlatform(ctx context.Context, cfg *config.Config, b Backends, dir string) error {
	store := storeFor(cfg)
	if err := store.Ensure(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Paths.Repos, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", cfg.Paths.Repos, err)
	}

	baseDir := kustomize.BaseDir(dir)
	for _, d := range []string{dir, baseDir} {
		if _, err := kustomize.FindDescriptor(d); err != nil {
			return err
		}
	}
	logCtx := logger.Log.WithField("dir", dir)

	logCtx.Info("Building kustomization...")
	manifest, err := b.Kustomize.Build(ctx, dir)
	if err != nil {
		return err
	}
	if err := store.Write(artifact.Manifest, manifest); err != nil {
		return err
	}

	logCtx.Info("Decrypting secrets...")
	envSecrets, err := secretValues(ctx, b, filepath.Join(dir, cfg.Platform.SecretsFile))
	if err != nil {
		return err
	}
	if err := store.Write(artifact.EnvSecrets, envSecrets); err != nil {
		return err
	}
	commonSecrets, err := secretValues(ctx, b, filepath.Join(baseDir, cfg.Platform.SecretsFile))
	if err != nil {
		return err
	}
	if err := store.Write(artifact.CommonSecrets, commonSecrets); err != nil {
		return err
	}

	logCtx.Info("Merging values...")
	baseConfig, err := readFile(filepath.Join(baseDir, cfg.Platform.ConfigMapFile))
	if err != nil {
		return err
	}
	envConfig, err := readFile(filepath.Join(dir, cfg.Platform.ConfigMapFile))
	if err != nil {
		return err
	}
	merged, err := b.Values.Merge(ctx, envSecrets, baseConfig, commonSecrets, envConfig)
	if err != nil {
		return fmt.Errorf("failed to merge values: %w", err)
	}
	if err := store.Write(artifact.Values, merged); err != nil {
		return err
	}

	src, err := kustomize.PlatformRef(baseDir)
	if err != nil {
		return err
	}
	repoURL := src.RepoURL
	if repoURL == "" {
		repoURL = cfg.Platform.RepoURL
	}
	checkout, err := b.Git.Ensure(ctx, repoURL, git.RepoName(repoURL), src.Ref)
	if err != nil {
		return err
	}

	logCtx.Infof("Rendering %s chart at %s...", cfg.Platform.ReleaseName, src.Ref)
	rendered, err := b.Helm.Template(ctx, helm.RenderOptions{
		ReleaseName: cfg.Platform.ReleaseName,
		ChartPath:   filepath.Join(checkout, cfg.Platform.ChartPath),
		ValuesFiles: []string{store.Path(artifact.Values)},
	})
	if err != nil {
		return err
	}
	if err := store.Write(artifact.BigBangManifests, rendered); err != nil {
		return err
	}
	logCtx.Infof("Successfully rendered platform manifests to %s", store.Path(artifact.BigBangManifests))
	return nil
}

func secretValues(ctx context.Context, b Backends, path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Preconditionf("secrets file %s not found", path)
	}
	plain, err := b.Decryptor.Decrypt(ctx, path)
	if err != nil {
		return nil, err
	}
	payload, err := b.Values.Extract(ctx, plain, values.SecretValuesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract values from %s: %w", path, err)
	}
	return payload, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// platformManifests checks the component resolver preconditions and returns
// the rendered platform manifests.
func platformManifests(cfg *config.Config, dir string) ([]byte, error) {
	if _, err := kustomize.FindDescriptor(dir); err != nil {
		return nil, err
	}
	return storeFor(cfg).Read(artifact.BigBangManifests)
}

// ListComponents prints the name of every GitRepository in the platform
// manifests, one per line, sorted.
func ListComponents(cfg *config.Config, dir string, filters []string, w io.Writer) error {
	manifests, err := platformManifests(cfg, dir)
	if err != nil {
		return err
	}
	parsed, err := flux.ParseFilters(filters)
	if err != nil {
		return err
	}
	names, err := flux.ListNames(manifests, parsed)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}

// RenderComponent renders the chart of the named component at its pinned ref
// with the platform values.
func RenderComponent(ctx context.Context, cfg *config.Config, b Backends, dir, name string) error {
	manifests, err := platformManifests(cfg, dir)
	if err != nil {
		return err
	}
	store := storeFor(cfg)
	if _, err := store.Read(artifact.Values); err != nil {
		return err
	}

	component, err := flux.Lookup(manifests, name)
	if err != nil {
		return err
	}
	logCtx := logger.Log.WithField("component", name)

	checkout, err := b.Git.Ensure(ctx, component.URL, git.RepoName(component.URL), component.Ref)
	if err != nil {
		return err
	}

	logCtx.Infof("Rendering chart %s...", component.ChartPath)
	rendered, err := b.Helm.Template(ctx, helm.RenderOptions{
		ReleaseName: component.Name,
		ChartPath:   filepath.Join(checkout, component.ChartPath),
		Namespace:   component.Namespace,
		ValuesFiles: []string{store.Path(artifact.Values)},
	})
	if err != nil {
		return err
	}
	out := artifact.ComponentManifests(component.Name)
	if err := store.Write(out, rendered); err != nil {
		return err
	}
	logCtx.Infof("Successfully rendered and saved manifest to %s", store.Path(out))
	return nil
}
