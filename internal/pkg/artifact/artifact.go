// Package artifact manages the generated output directory.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"bbinflator/internal/pkg/errs"
	"bbinflator/internal/pkg/logger"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	Manifest         = "manifest.yaml"
	EnvSecrets       = "env-secrets.yaml"
	CommonSecrets    = "common-secrets.yaml"
	Values           = "values.yaml"
	BigBangManifests = "bigbang-manifests.yaml"
)

// ComponentManifests names the rendered output of one component.
func ComponentManifests(name string) string {
	return name + "-manifests.yaml"
}

// Store reads and overwrites artifacts under Dir. With Diff set, every
// overwrite logs a unified diff against the previous content.
type Store struct {
	Dir  string
	Diff bool
}

// Ensure creates the directory if it does not exist.
func (s Store) Ensure() error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.Dir, err)
	}
	return nil
}

func (s Store) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

func (s Store) Write(name string, data []byte) error {
	path := s.Path(name)
	if s.Diff {
		s.logDiff(name, path, data)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logger.Log.WithField("artifact", name).Debugf("Wrote %d bytes to %s", len(data), path)
	return nil
}

// Read returns the content of an artifact. A missing artifact is a
// precondition failure naming the command that produces it.
func (s Store) Read(name string) ([]byte, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Preconditionf("%s not found; run %s first", path, producer(name))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (s Store) logDiff(name, path string, data []byte) {
	previous, err := os.ReadFile(path)
	if err != nil {
		return
	}
	text, err := Diff(name+" (previous)", name, previous, data)
	if err != nil {
		logger.Log.WithField("artifact", name).Warnf("Failed to compute diff: %v", err)
		return
	}
	if text == "" {
		logger.Log.WithField("artifact", name).Info("Unchanged")
		return
	}
	logger.Log.WithField("artifact", name).Infof("Changes:\n%s", text)
}

// Diff returns the unified diff from a to b with three lines of context, or
// "" when they are equal.
func Diff(fromName, toName string, a, b []byte) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func producer(name string) string {
	switch name {
	case Manifest, EnvSecrets, CommonSecrets, Values, BigBangManifests:
		return "bigbang-build"
	}
	return "bigbang-component"
}
