// Package values extracts Helm values payloads from manifests and merges them
// with override precedence.
package values

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bbinflator/internal/pkg/command"
	"bbinflator/internal/pkg/logger"

	"gopkg.in/yaml.v3"
)

const (
	// SecretValuesPath addresses the values payload of a Secret.
	SecretValuesPath = `.stringData."values.yaml"`
	// ConfigMapValuesPath addresses the values payload of a ConfigMap.
	ConfigMapValuesPath = `.data."values.yaml"`
)

// Processor queries and merges YAML documents.
type Processor interface {
	// Extract returns the field at query in the first document of doc.
	// String fields are returned as their raw text.
	Extract(ctx context.Context, doc []byte, query string) ([]byte, error)
	// Merge overlays docs left to right; later documents win.
	Merge(ctx context.Context, docs ...[]byte) ([]byte, error)
}

// NativeProcessor implements Processor on yaml.v3 nodes.
type NativeProcessor struct{}

func (NativeProcessor) Extract(_ context.Context, doc []byte, query string) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	node, ok := Lookup(&root, SplitPath(query)...)
	if !ok || isNull(node) {
		return nil, fmt.Errorf("field %s not found", query)
	}
	if node.Kind == yaml.ScalarNode {
		text := node.Value
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		return []byte(text), nil
	}
	return encode(node)
}

func (NativeProcessor) Merge(_ context.Context, docs ...[]byte) ([]byte, error) {
	var merged *yaml.Node
	for i, doc := range docs {
		err := ForEachDocument(doc, func(node *yaml.Node) error {
			if merged == nil {
				merged = deepCopy(node)
				return nil
			}
			merged = overlay(merged, node)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
	}
	if merged == nil {
		return []byte("{}\n"), nil
	}
	return encode(merged)
}

// overlay merges src onto dst. Mappings merge key by key, keeping the
// position of keys dst already has; anything else is replaced by src.
func overlay(dst, src *yaml.Node) *yaml.Node {
	if dst.Kind != yaml.MappingNode || src.Kind != yaml.MappingNode {
		return deepCopy(src)
	}
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, val := src.Content[i], src.Content[i+1]
		replaced := false
		for j := 0; j+1 < len(dst.Content); j += 2 {
			if dst.Content[j].Value == key.Value {
				dst.Content[j+1] = overlay(dst.Content[j+1], val)
				replaced = true
				break
			}
		}
		if !replaced {
			dst.Content = append(dst.Content, deepCopy(key), deepCopy(val))
		}
	}
	return dst
}

func deepCopy(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Alias != nil {
		c.Alias = deepCopy(n.Alias)
	}
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = deepCopy(child)
		}
	}
	return &c
}

// YQProcessor shells out to mikefarah/yq v4.
type YQProcessor struct {
	Binary string
}

func (p YQProcessor) bin() string {
	if p.Binary == "" {
		return "yq"
	}
	return p.Binary
}

func (p YQProcessor) Extract(ctx context.Context, doc []byte, query string) ([]byte, error) {
	if !strings.HasPrefix(query, ".") {
		query = "." + query
	}
	out, err := command.Run(ctx, command.Options{Stdin: strings.NewReader(string(doc))}, p.bin(), "eval", query, "-")
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", query, err)
	}
	if strings.TrimSpace(string(out)) == "null" {
		return nil, fmt.Errorf("field %s not found", query)
	}
	return out, nil
}

func (p YQProcessor) Merge(ctx context.Context, docs ...[]byte) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "bb-inflator-merge-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	args := []string{"eval-all", ". as $item ireduce ({}; . * $item)"}
	for i, doc := range docs {
		path := filepath.Join(tmpDir, fmt.Sprintf("%02d.yaml", i))
		if err := os.WriteFile(path, doc, 0600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		args = append(args, path)
	}
	logger.Log.Debugf("Merging %d documents with yq", len(docs))
	out, err := command.Run(ctx, command.Options{}, p.bin(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to merge values: %w", err)
	}
	return out, nil
}

// Pretty re-encodes a values payload with two-space indentation and no
// blank lines.
func Pretty(payload string) (string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(payload), &root); err != nil {
		return "", fmt.Errorf("failed to parse values.yaml: %w", err)
	}
	node := contentOf(&root)
	if node == nil {
		return "", nil
	}
	out, err := encode(node)
	if err != nil {
		return "", err
	}
	text := string(out)
	for strings.Contains(text, "\n\n") {
		text = strings.ReplaceAll(text, "\n\n", "\n")
	}
	return text, nil
}

// Payload is the values.yaml text carried by one ConfigMap or Secret.
type Payload struct {
	Name string
	Text string
}

// ConfigMapValues returns data."values.yaml" of every ConfigMap in manifest,
// in document order.
func ConfigMapValues(manifest []byte) ([]Payload, error) {
	return payloads(manifest, "ConfigMap", "data")
}

// SecretValues returns stringData."values.yaml" of every Secret in manifest,
// in document order.
func SecretValues(manifest []byte) ([]Payload, error) {
	return payloads(manifest, "Secret", "stringData")
}

func payloads(manifest []byte, kind, field string) ([]Payload, error) {
	var found []Payload
	err := ForEachDocument(manifest, func(doc *yaml.Node) error {
		if k, _ := ScalarAt(doc, "kind"); k != kind {
			return nil
		}
		text, ok := ScalarAt(doc, field, "values.yaml")
		if !ok {
			return nil
		}
		name, ok := ScalarAt(doc, "metadata", "name")
		if !ok {
			name = "<no-name>"
		}
		found = append(found, Payload{Name: name, Text: text})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
