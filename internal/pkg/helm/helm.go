// Package helm renders charts to manifests.
package helm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bbinflator/internal/pkg/command"
)

type RenderOptions struct {
	ReleaseName string
	ChartPath   string
	Namespace   string
	ValuesFiles []string
	SetValues   map[string]string
}

// Renderer templates a chart locally, without a cluster.
type Renderer interface {
	Template(ctx context.Context, opts RenderOptions) ([]byte, error)
}

// CLIRenderer shells out to "helm template".
type CLIRenderer struct {
	Binary string
}

func (r CLIRenderer) Template(ctx context.Context, opts RenderOptions) ([]byte, error) {
	bin := r.Binary
	if bin == "" {
		bin = "helm"
	}
	out, err := command.Run(ctx, command.Options{}, bin, templateArgs(opts)...)
	if err != nil {
		return nil, fmt.Errorf("helm template failed for %s: %w", opts.ChartPath, err)
	}
	return out, nil
}

func templateArgs(opts RenderOptions) []string {
	args := []string{"template"}
	if opts.ReleaseName != "" {
		args = append(args, opts.ReleaseName)
	}
	args = append(args, opts.ChartPath)
	if opts.Namespace != "" {
		args = append(args, "--namespace", opts.Namespace)
	}
	for _, valuesFile := range opts.ValuesFiles {
		args = append(args, "--values", valuesFile)
	}
	for _, key := range sortedKeys(opts.SetValues) {
		args = append(args, "--set", strings.Join([]string{key, opts.SetValues[key]}, "="))
	}
	return args
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
