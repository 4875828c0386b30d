package values

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ForEachDocument decodes every document of a YAML stream and calls fn with
// its root node. Empty documents are skipped.
func ForEachDocument(stream []byte, fn func(doc *yaml.Node) error) error {
	decoder := yaml.NewDecoder(bytes.NewReader(stream))
	for {
		var node yaml.Node
		err := decoder.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to decode yaml document: %w", err)
		}
		root := contentOf(&node)
		if root == nil || isNull(root) {
			continue
		}
		if err := fn(root); err != nil {
			return err
		}
	}
}

// Lookup walks mapping keys from node and returns the value found at path.
func Lookup(node *yaml.Node, path ...string) (*yaml.Node, bool) {
	current := contentOf(node)
	if current == nil {
		return nil, false
	}
	for _, part := range path {
		if current.Kind != yaml.MappingNode {
			return nil, false
		}
		found := false
		// Mapping content is flat: [key1, value1, key2, value2, ...]
		for i := 0; i+1 < len(current.Content); i += 2 {
			if current.Content[i].Value == part {
				current = current.Content[i+1]
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return current, true
}

// ScalarAt returns the scalar value at path.
func ScalarAt(node *yaml.Node, path ...string) (string, bool) {
	n, ok := Lookup(node, path...)
	if !ok || n.Kind != yaml.ScalarNode || isNull(n) {
		return "", false
	}
	return n.Value, true
}

// SplitPath splits a query such as `.stringData."values.yaml"` into keys.
func SplitPath(query string) []string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}
	for _, r := range query {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '.' && !quoted:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return parts
}

func contentOf(node *yaml.Node) *yaml.Node {
	if node == nil {
		return nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil
		}
		return node.Content[0]
	}
	return node
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

func encode(node *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}
