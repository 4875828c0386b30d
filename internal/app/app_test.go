package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"bbinflator/internal/config"
	"bbinflator/internal/pkg/errs"
	"bbinflator/internal/pkg/git"
	"bbinflator/internal/pkg/helm"
	"bbinflator/internal/pkg/logger"
	"bbinflator/internal/pkg/values"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func init() {
	logger.Log = logrus.New()
	logger.Log.SetOutput(io.Discard)
}

type fakeBuilder struct {
	dirs []string
}

func (f *fakeBuilder) Build(_ context.Context, dir string) ([]byte, error) {
	f.dirs = append(f.dirs, dir)
	return []byte("kind: HelmRelease\nmetadata:\n  name: bigbang\n"), nil
}

// fakeDecryptor returns a Secret carrying the values stored for a path.
type fakeDecryptor map[string]string

func (f fakeDecryptor) Decrypt(_ context.Context, path string) ([]byte, error) {
	payload, ok := f[path]
	if !ok {
		return nil, &errs.ToolError{Tool: "sops", Args: []string{"-d", path}, ExitCode: 128, Err: errors.New("exit status 128")}
	}
	secret := map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Secret",
		"stringData": map[string]string{"values.yaml": payload},
	}
	return yaml.Marshal(secret)
}

type ensureCall struct {
	URL, Name, Ref string
}

type fakeCache struct {
	root  string
	calls []ensureCall
}

func (f *fakeCache) Ensure(_ context.Context, url, name, ref string) (string, error) {
	f.calls = append(f.calls, ensureCall{URL: url, Name: name, Ref: ref})
	if ref == "" {
		return "", fmt.Errorf("cannot check out %s: empty ref", url)
	}
	return filepath.Join(f.root, name), nil
}

type fakeRenderer struct {
	calls []helm.RenderOptions
}

func (f *fakeRenderer) Template(_ context.Context, opts helm.RenderOptions) ([]byte, error) {
	f.calls = append(f.calls, opts)
	return []byte("# rendered " + opts.ReleaseName + "\n"), nil
}

type fixture struct {
	cfg      *config.Config
	backends Backends
	builder  *fakeBuilder
	cache    *fakeCache
	renderer *fakeRenderer
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Paths: config.PathsConfig{
			Generated: filepath.Join(root, "generated"),
			Repos:     filepath.Join(root, "repos"),
		},
		Platform: config.PlatformConfig{
			RepoURL:       "https://repo1.dso.mil/big-bang/bigbang.git",
			ChartPath:     "chart",
			ReleaseName:   "bigbang",
			SecretsFile:   "secrets.enc.yaml",
			ConfigMapFile: "configmap.yaml",
		},
	}
	f := &fixture{
		cfg:      cfg,
		builder:  &fakeBuilder{},
		cache:    &fakeCache{root: cfg.Paths.Repos},
		renderer: &fakeRenderer{},
		dir:      filepath.Join(root, "envs", "dev"),
	}
	f.backends = Backends{
		Kustomize: f.builder,
		Decryptor: fakeDecryptor{
			filepath.Join(f.dir, "secrets.enc.yaml"):          "source: env-secrets\nenvSecretOnly: true\nsecretsShared: env\n",
			filepath.Join(f.dir+"-base", "secrets.enc.yaml"): "source: common-secrets\ncommonSecretOnly: true\nsecretsShared: common\n",
		},
		Values: values.NativeProcessor{},
		Git:    f.cache,
		Helm:   f.renderer,
	}
	return f
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func (f *fixture) writeKustomizations(t *testing.T) {
	writeTree(t, f.dir, map[string]string{
		"kustomization.yaml": "bases:\n- ../dev-base\n",
		"secrets.enc.yaml":   "sops: encrypted\n",
		"configmap.yaml":     "source: env-configmap\nenvConfigOnly: true\nistio:\n  enabled: true\n",
	})
	writeTree(t, f.dir+"-base", map[string]string{
		"kustomization.yaml": "bases:\n- git::https://repo1.dso.mil/big-bang/bigbang.git//base?ref=2.52.0\n",
		"secrets.enc.yaml":   "sops: encrypted\n",
		"configmap.yaml":     "source: base-configmap\nbaseConfigOnly: true\nsecretsShared: base\nistio:\n  enabled: false\n  values:\n    replicas: 2\n",
	})
}

func TestBuildPlatform(t *testing.T) {
	f := newFixture(t)
	f.writeKustomizations(t)

	require.NoError(t, BuildPlatform(context.Background(), f.cfg, f.backends, f.dir))

	require.Equal(t, []string{f.dir}, f.builder.dirs)
	require.Equal(t, []ensureCall{{URL: "https://repo1.dso.mil/big-bang/bigbang.git", Name: "bigbang", Ref: "2.52.0"}}, f.cache.calls)
	require.Len(t, f.renderer.calls, 1)
	assert.Equal(t, helm.RenderOptions{
		ReleaseName: "bigbang",
		ChartPath:   filepath.Join(f.cfg.Paths.Repos, "bigbang", "chart"),
		ValuesFiles: []string{filepath.Join(f.cfg.Paths.Generated, "values.yaml")},
	}, f.renderer.calls[0])

	generated := func(name string) string {
		data, err := os.ReadFile(filepath.Join(f.cfg.Paths.Generated, name))
		require.NoError(t, err)
		return string(data)
	}
	assert.Contains(t, generated("manifest.yaml"), "kind: HelmRelease")
	assert.Equal(t, "source: env-secrets\nenvSecretOnly: true\nsecretsShared: env\n", generated("env-secrets.yaml"))
	assert.Equal(t, "source: common-secrets\ncommonSecretOnly: true\nsecretsShared: common\n", generated("common-secrets.yaml"))
	assert.Equal(t, "# rendered bigbang\n", generated("bigbang-manifests.yaml"))

	var merged map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(generated("values.yaml")), &merged))
	assert.Equal(t, "env-configmap", merged["source"])
	assert.Equal(t, "common", merged["secretsShared"])
	assert.Equal(t, true, merged["envSecretOnly"])
	assert.Equal(t, true, merged["baseConfigOnly"])
	assert.Equal(t, true, merged["commonSecretOnly"])
	assert.Equal(t, true, merged["envConfigOnly"])
	assert.Equal(t, map[string]interface{}{"enabled": true, "values": map[string]interface{}{"replicas": 2}}, merged["istio"])
}

func TestBuildPlatformMissingDescriptor(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
	}{
		{
			name:  "directory does not exist",
			setup: func(t *testing.T, f *fixture) {},
		},
		{
			name: "no descriptor in directory",
			setup: func(t *testing.T, f *fixture) {
				writeTree(t, f.dir, map[string]string{"configmap.yaml": "a: 1\n"})
			},
		},
		{
			name: "no descriptor in base directory",
			setup: func(t *testing.T, f *fixture) {
				writeTree(t, f.dir, map[string]string{"kustomization.yml": "resources: []\n"})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			err := BuildPlatform(context.Background(), f.cfg, f.backends, f.dir)
			var pre *errs.PreconditionError
			require.True(t, errors.As(err, &pre), "got %v", err)
			require.Equal(t, 1, errs.ExitCode(err))
			require.Empty(t, f.builder.dirs)
			require.Empty(t, f.renderer.calls)
			require.DirExists(t, f.cfg.Paths.Generated)
		})
	}
}

func TestBuildPlatformDecryptFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.writeKustomizations(t)
	f.backends.Decryptor = fakeDecryptor{}

	err := BuildPlatform(context.Background(), f.cfg, f.backends, f.dir)
	require.Error(t, err)
	require.Equal(t, 128, errs.ExitCode(err))
	require.Empty(t, f.renderer.calls)
	require.FileExists(t, filepath.Join(f.cfg.Paths.Generated, "manifest.yaml"))
}

func TestBuildPlatformAmbiguousRef(t *testing.T) {
	f := newFixture(t)
	f.writeKustomizations(t)
	writeTree(t, f.dir+"-base", map[string]string{
		"kustomization.yaml": "bases:\n- git::https://repo1.dso.mil/big-bang/bigbang.git//base?ref=2.52.0\n- git::https://repo1.dso.mil/big-bang/bigbang.git//base?ref=2.53.0\n",
	})

	err := BuildPlatform(context.Background(), f.cfg, f.backends, f.dir)
	var ambiguous *errs.AmbiguousRefError
	require.True(t, errors.As(err, &ambiguous))
	require.Empty(t, f.cache.calls)
}

const platformFixture = `apiVersion: source.toolkit.fluxcd.io/v1
kind: GitRepository
metadata:
  name: istio-controlplane
spec:
  url: https://repo1.dso.mil/big-bang/product/packages/istio-controlplane.git
  ref:
    tag: v1.2.3
---
apiVersion: helm.toolkit.fluxcd.io/v2
kind: HelmRelease
metadata:
  name: istio-controlplane
spec:
  targetNamespace: istio-system
  chart:
    spec:
      chart: charts/istio
---
apiVersion: source.toolkit.fluxcd.io/v1
kind: GitRepository
metadata:
  name: kyverno
spec:
  url: https://repo1.dso.mil/big-bang/product/packages/kyverno.git
  ref:
    branch: main
`

func (f *fixture) writeGenerated(t *testing.T) {
	writeTree(t, f.dir, map[string]string{"kustomization.yaml": "resources: []\n"})
	writeTree(t, f.cfg.Paths.Generated, map[string]string{
		"bigbang-manifests.yaml": platformFixture,
		"values.yaml":            "istio:\n  enabled: true\n",
	})
}

func TestListComponents(t *testing.T) {
	f := newFixture(t)
	f.writeGenerated(t)

	var out bytes.Buffer
	require.NoError(t, ListComponents(f.cfg, f.dir, nil, &out))
	require.Equal(t, "istio-controlplane\nkyverno\n", out.String())

	out.Reset()
	require.NoError(t, ListComponents(f.cfg, f.dir, []string{"spec.ref.branch==main"}, &out))
	require.Equal(t, "kyverno\n", out.String())
}

func TestListComponentsRequiresPlatformManifests(t *testing.T) {
	f := newFixture(t)
	writeTree(t, f.dir, map[string]string{"kustomization.yaml": "resources: []\n"})

	err := ListComponents(f.cfg, f.dir, nil, io.Discard)
	var pre *errs.PreconditionError
	require.True(t, errors.As(err, &pre))
	require.Contains(t, err.Error(), "bigbang-build")
}

func TestRenderComponent(t *testing.T) {
	f := newFixture(t)
	f.writeGenerated(t)

	require.NoError(t, RenderComponent(context.Background(), f.cfg, f.backends, f.dir, "istio-controlplane"))

	require.Equal(t, []ensureCall{{
		URL:  "https://repo1.dso.mil/big-bang/product/packages/istio-controlplane.git",
		Name: "istio-controlplane",
		Ref:  "v1.2.3",
	}}, f.cache.calls)
	require.Equal(t, []helm.RenderOptions{{
		ReleaseName: "istio-controlplane",
		ChartPath:   filepath.Join(f.cfg.Paths.Repos, "istio-controlplane", "charts", "istio"),
		Namespace:   "istio-system",
		ValuesFiles: []string{filepath.Join(f.cfg.Paths.Generated, "values.yaml")},
	}}, f.renderer.calls)

	out, err := os.ReadFile(filepath.Join(f.cfg.Paths.Generated, "istio-controlplane-manifests.yaml"))
	require.NoError(t, err)
	require.Equal(t, "# rendered istio-controlplane\n", string(out))
}

func TestRenderComponentNotFound(t *testing.T) {
	tests := []struct {
		name string
		kind string
	}{
		{name: "does-not-exist", kind: "GitRepository"},
		{name: "kyverno", kind: "HelmRelease"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.writeGenerated(t)

			err := RenderComponent(context.Background(), f.cfg, f.backends, f.dir, tt.name)
			var nf *errs.ComponentNotFoundError
			require.True(t, errors.As(err, &nf))
			require.Equal(t, tt.kind, nf.Kind)
			require.Empty(t, f.cache.calls)
			require.Empty(t, f.renderer.calls)
		})
	}
}

func TestNewBackends(t *testing.T) {
	cfg := &config.Config{
		Paths:    config.PathsConfig{Repos: "repos"},
		Backends: config.BackendsConfig{Git: config.BackendGoGit, Helm: config.BackendSDK, Kustomize: config.BackendKrusty, YAML: config.BackendYQ},
		Tools:    config.ToolsConfig{YQ: "/usr/local/bin/yq"},
	}
	b := NewBackends(cfg)
	assert.Equal(t, git.GoGitCache{Root: "repos"}, b.Git)
	assert.Equal(t, helm.SDKRenderer{}, b.Helm)
	assert.Equal(t, values.YQProcessor{Binary: "/usr/local/bin/yq"}, b.Values)
	assert.Equal(t, git.GoGitCache{Root: "/tmp/x"}, b.CacheAt("/tmp/x"))

	cfg.Backends = config.BackendsConfig{Git: config.BackendCLI, Helm: config.BackendCLI, Kustomize: config.BackendCLI, YAML: config.BackendNative}
	cfg.Tools.Git = "git"
	b = NewBackends(cfg)
	assert.Equal(t, git.CLICache{Root: "repos", Binary: "git"}, b.Git)
	assert.Equal(t, helm.CLIRenderer{Binary: ""}, b.Helm)
	assert.Equal(t, values.NativeProcessor{}, b.Values)
}
