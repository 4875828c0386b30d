// Package kustomize reads kustomization descriptors and renders them.
package kustomize

import (
	"context"
	"fmt"

	"bbinflator/internal/pkg/command"
	"bbinflator/internal/pkg/logger"

	"sigs.k8s.io/kustomize/api/krusty"
	"sigs.k8s.io/kustomize/kyaml/filesys"
)

// Builder renders a kustomization directory to a multi-document YAML stream.
type Builder interface {
	Build(ctx context.Context, dir string) ([]byte, error)
}

// CLIBuilder shells out to "kustomize build".
type CLIBuilder struct {
	Binary string
}

func (b CLIBuilder) Build(ctx context.Context, dir string) ([]byte, error) {
	bin := b.Binary
	if bin == "" {
		bin = "kustomize"
	}
	out, err := command.Run(ctx, command.Options{}, bin, "build", dir)
	if err != nil {
		return nil, fmt.Errorf("kustomize build failed for %s: %w", dir, err)
	}
	return out, nil
}

// KrustyBuilder runs kustomize in-process against the local filesystem.
type KrustyBuilder struct{}

func (KrustyBuilder) Build(_ context.Context, dir string) ([]byte, error) {
	logger.Log.WithField("dir", dir).Info("Running in-process kustomize build")
	k := krusty.MakeKustomizer(krusty.MakeDefaultOptions())
	resMap, err := k.Run(filesys.MakeFsOnDisk(), dir)
	if err != nil {
		return nil, fmt.Errorf("kustomize build failed for %s: %w", dir, err)
	}
	out, err := resMap.AsYaml()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize kustomize output for %s: %w", dir, err)
	}
	return out, nil
}
