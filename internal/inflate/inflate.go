// Package inflate implements the bb-inflator flows that render straight to
// stdout instead of the generated directory.
package inflate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bbinflator/internal/app"
	"bbinflator/internal/config"
	"bbinflator/internal/pkg/errs"
	"bbinflator/internal/pkg/flux"
	"bbinflator/internal/pkg/git"
	"bbinflator/internal/pkg/helm"
	"bbinflator/internal/pkg/kustomize"
	"bbinflator/internal/pkg/logger"
	"bbinflator/internal/pkg/values"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoValuesKey     = errors.New("no values.yaml key found in data")
	ErrNoMergedValues  = errors.New("no values.yaml data found in referenced ConfigMaps or Secrets")
	ErrNoSecretsValues = errors.New("no decrypted values.yaml found in any secrets")
)

// Inflate clones repoURL into a temporary cache, checks out ref and builds
// the kustomization at subdir. The clone is removed afterwards.
func Inflate(ctx context.Context, b app.Backends, repoURL, ref, subdir string) ([]byte, error) {
	if repoURL == "" || ref == "" {
		return nil, errs.Preconditionf("both a repository URL and a ref are required")
	}
	tmpDir, err := os.MkdirTemp("", "bb-inflator-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	checkout, err := b.CacheAt(tmpDir).Ensure(ctx, repoURL, git.RepoName(repoURL), ref)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(checkout, subdir)
	logger.Log.WithField("dir", path).Info("Running kustomize build")
	return b.Kustomize.Build(ctx, path)
}

// InflateFromKustomization inflates the remote base that dir, or one of its
// local bases, points at.
func InflateFromKustomization(ctx context.Context, b app.Backends, dir string) ([]byte, error) {
	src, err := sourceOf(dir)
	if err != nil {
		return nil, err
	}
	return Inflate(ctx, b, src.RepoURL, src.Ref, src.Subdir)
}

func sourceOf(dir string) (kustomize.PlatformSource, error) {
	src, err := kustomize.ResolveGitSource(dir)
	if err != nil {
		return src, err
	}
	if src.Ref == "" {
		return src, errs.Preconditionf("remote base %s in %s has no ?ref= parameter", src.RepoURL, dir)
	}
	logger.Log.Infof("Parsed repo: %s, ref: %s, subdir: %s", src.RepoURL, src.Ref, src.Subdir)
	return src, nil
}

// ExtractValues returns the values.yaml payload of the ConfigMap read from r,
// re-encoded without blank lines.
func ExtractValues(r io.Reader) (string, error) {
	manifest, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read manifest: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(manifest, &root); err != nil {
		return "", fmt.Errorf("failed to parse manifest: %w", err)
	}
	payload, ok := values.ScalarAt(&root, values.SplitPath(values.ConfigMapValuesPath)...)
	if !ok {
		return "", ErrNoValuesKey
	}
	return values.Pretty(payload)
}

type valuesReference struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
}

type helmRelease struct {
	Metadata struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
	Spec struct {
		ValuesFrom []valuesReference `yaml:"valuesFrom"`
	} `yaml:"spec"`
}

// MergedValuesFromKustomization builds dir and merges the values referenced
// by the platform HelmRelease's valuesFrom, in order. Secrets come from the
// decrypted secrets files of dir and its local bases; a valuesFrom name that
// matches no secret exactly takes the first secret whose name is its prefix.
func MergedValuesFromKustomization(ctx context.Context, cfg *config.Config, b app.Backends, dir string) ([]byte, error) {
	if _, err := kustomize.FindDescriptor(dir); err != nil {
		return nil, err
	}
	manifest, err := b.Kustomize.Build(ctx, dir)
	if err != nil {
		return nil, err
	}
	configMaps, err := values.ConfigMapValues(manifest)
	if err != nil {
		return nil, err
	}
	secrets, err := decryptSecrets(ctx, cfg, b, dir)
	if err != nil {
		return nil, err
	}
	release, err := findRelease(manifest, cfg.Platform.ReleaseName)
	if err != nil {
		return nil, err
	}

	var docs [][]byte
	for _, ref := range release.Spec.ValuesFrom {
		logCtx := logger.Log.WithField("source", ref.Kind+"/"+ref.Name)
		switch ref.Kind {
		case "ConfigMap":
			if p, ok := exact(configMaps, ref.Name); ok {
				logCtx.Debug("Merging values from ConfigMap")
				docs = append(docs, []byte(p.Text))
			}
		case "Secret":
			p, ok := exact(secrets, ref.Name)
			if !ok {
				p, ok = prefixOf(secrets, ref.Name)
			}
			if ok {
				logCtx.Debugf("Merging values from Secret %s", p.Name)
				docs = append(docs, []byte(p.Text))
			}
		}
	}
	if len(docs) == 0 {
		return nil, ErrNoMergedValues
	}
	merged, err := b.Values.Merge(ctx, docs...)
	if err != nil {
		return nil, fmt.Errorf("failed to merge values: %w", err)
	}
	if s := strings.TrimSpace(string(merged)); s == "{}" || s == "" || s == "null" {
		return nil, ErrNoMergedValues
	}
	return merged, nil
}

func findRelease(manifest []byte, name string) (*helmRelease, error) {
	var found *helmRelease
	err := values.ForEachDocument(manifest, func(doc *yaml.Node) error {
		if found != nil {
			return nil
		}
		kind, _ := values.ScalarAt(doc, "kind")
		docName, _ := values.ScalarAt(doc, "metadata", "name")
		if kind != flux.KindHelmRelease || docName != name {
			return nil
		}
		var hr helmRelease
		if err := doc.Decode(&hr); err != nil {
			return fmt.Errorf("failed to decode HelmRelease %q: %w", name, err)
		}
		found = &hr
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &errs.ComponentNotFoundError{Kind: flux.KindHelmRelease, Name: name}
	}
	return found, nil
}

func exact(payloads []values.Payload, name string) (values.Payload, bool) {
	for _, p := range payloads {
		if p.Name == name {
			return p, true
		}
	}
	return values.Payload{}, false
}

func prefixOf(payloads []values.Payload, name string) (values.Payload, bool) {
	for _, p := range payloads {
		if strings.HasPrefix(name, p.Name) {
			return p, true
		}
	}
	return values.Payload{}, false
}

// decryptSecrets decrypts every secrets file reachable from dir. Files that
// fail to decrypt are logged and skipped.
func decryptSecrets(ctx context.Context, cfg *config.Config, b app.Backends, dir string) ([]values.Payload, error) {
	files, err := kustomize.FindSecretsFiles(dir, cfg.Platform.SecretsFile)
	if err != nil {
		return nil, err
	}
	var payloads []values.Payload
	for _, file := range files {
		plain, err := b.Decryptor.Decrypt(ctx, file)
		if err != nil {
			logger.Log.WithField("file", file).Warnf("Failed to decrypt: %v", err)
			continue
		}
		found, err := values.SecretValues(plain)
		if err != nil {
			logger.Log.WithField("file", file).Warnf("Failed to parse decrypted secrets: %v", err)
			continue
		}
		payloads = append(payloads, found...)
	}
	return payloads, nil
}

// SecretValues returns the values.yaml payload of every decrypted secret
// reachable from dir.
func SecretValues(ctx context.Context, cfg *config.Config, b app.Backends, dir string) ([]values.Payload, error) {
	if _, err := kustomize.FindDescriptor(dir); err != nil {
		return nil, err
	}
	payloads, err := decryptSecrets(ctx, cfg, b, dir)
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, ErrNoSecretsValues
	}
	return payloads, nil
}

// TemplateWithValues renders the platform chart at the ref pinned by dir
// with the values MergedValuesFromKustomization produces.
func TemplateWithValues(ctx context.Context, cfg *config.Config, b app.Backends, dir string) ([]byte, error) {
	merged, err := MergedValuesFromKustomization(ctx, cfg, b, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to extract merged values: %w", err)
	}
	logger.Log.Debugf("Merged values:\n%s", merged)

	src, err := sourceOf(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base repo info: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "bb-inflator-repo-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	valuesFile := filepath.Join(tmpDir, "values.yaml")
	if err := os.WriteFile(valuesFile, merged, 0600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", valuesFile, err)
	}
	checkout, err := b.CacheAt(filepath.Join(tmpDir, "repos")).Ensure(ctx, src.RepoURL, git.RepoName(src.RepoURL), src.Ref)
	if err != nil {
		return nil, err
	}
	return b.Helm.Template(ctx, helm.RenderOptions{
		ReleaseName: cfg.Platform.ReleaseName,
		ChartPath:   filepath.Join(checkout, cfg.Platform.ChartPath),
		ValuesFiles: []string{valuesFile},
	})
}
