package helm

import (
	"bytes"
	"context"
	"fmt"

	"bbinflator/internal/pkg/logger"

	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/strvals"
)

// SDKRenderer templates charts in-process with the Helm library, printing
// the result the way "helm template" does.
type SDKRenderer struct{}

func (SDKRenderer) Template(ctx context.Context, opts RenderOptions) ([]byte, error) {
	logCtx := logger.Log.WithField("chart", opts.ChartPath)
	logCtx.Info("Running in-process helm template")

	chrt, err := loader.Load(opts.ChartPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart %s: %w", opts.ChartPath, err)
	}
	if deps := chrt.Metadata.Dependencies; deps != nil {
		if err := action.CheckDependencies(chrt, deps); err != nil {
			return nil, fmt.Errorf("chart %s has missing dependencies: %w", opts.ChartPath, err)
		}
	}

	vals, err := mergeValues(opts)
	if err != nil {
		return nil, err
	}

	cfg := &action.Configuration{
		Log: func(format string, v ...interface{}) {
			logCtx.Debugf(format, v...)
		},
	}
	install := action.NewInstall(cfg)
	install.DryRun = true
	install.DryRunOption = "client"
	install.ClientOnly = true
	install.Replace = true
	install.IncludeCRDs = true
	install.ReleaseName = opts.ReleaseName
	if install.ReleaseName == "" {
		install.ReleaseName = "release-name"
	}
	install.Namespace = opts.Namespace
	if install.Namespace == "" {
		install.Namespace = "default"
	}

	rel, err := install.RunWithContext(ctx, chrt, vals)
	if err != nil {
		return nil, fmt.Errorf("helm template failed for %s: %w", opts.ChartPath, err)
	}
	return printRelease(rel), nil
}

// mergeValues reads values files left to right, later files winning, then
// applies --set style overrides.
func mergeValues(opts RenderOptions) (map[string]interface{}, error) {
	base := map[string]interface{}{}
	for _, path := range opts.ValuesFiles {
		fileVals, err := chartutil.ReadValuesFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read values file %s: %w", path, err)
		}
		base = chartutil.CoalesceTables(fileVals, base)
	}
	for _, key := range sortedKeys(opts.SetValues) {
		set := key + "=" + opts.SetValues[key]
		if err := strvals.ParseInto(set, base); err != nil {
			return nil, fmt.Errorf("failed to parse --set %s: %w", set, err)
		}
	}
	return base, nil
}

func printRelease(rel *release.Release) []byte {
	var buf bytes.Buffer
	buf.WriteString(rel.Manifest)
	for _, hook := range rel.Hooks {
		fmt.Fprintf(&buf, "---\n# Source: %s\n%s\n", hook.Path, hook.Manifest)
	}
	return buf.Bytes()
}
