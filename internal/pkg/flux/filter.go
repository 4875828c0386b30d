package flux

import (
	"fmt"
	"strings"

	"bbinflator/internal/pkg/values"

	"gopkg.in/yaml.v3"
)

// Component fields a filter can name without a document path.
const (
	FieldName      = "name"
	FieldURL       = "url"
	FieldRef       = "ref"
	FieldTag       = "tag"
	FieldBranch    = "branch"
	FieldChart     = "chart"
	FieldNamespace = "namespace"
)

// releasePrefix selects the HelmRelease document in a filter path.
const releasePrefix = "release."

// FilterCriteria is a parsed "field==value" or "field!=value" condition.
//
// Field is either a component field (name, url, ref, tag, branch, chart,
// namespace), a dotted path into the GitRepository document such as
// spec.ref.tag, or a path into the HelmRelease of the same name prefixed
// with "release.", such as release.spec.chart.spec.version. Quoted segments
// address keys containing dots.
type FilterCriteria struct {
	Field    string
	Operator string // "==" or "!="
	Value    string
}

type Filters []FilterCriteria

// ParseFilters parses every non-empty raw filter.
func ParseFilters(rawFilters []string) (Filters, error) {
	var filters Filters
	for _, raw := range rawFilters {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		f, err := ParseFilter(raw)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// ParseFilter parses a single condition. "!=" is tried first so that a value
// containing "==" still parses as an inequality.
func ParseFilter(raw string) (FilterCriteria, error) {
	for _, op := range []string{"!=", "=="} {
		field, value, ok := strings.Cut(raw, op)
		if !ok {
			continue
		}
		field = strings.TrimSpace(field)
		if field == "" {
			return FilterCriteria{}, fmt.Errorf("invalid filter %q: missing field", raw)
		}
		return FilterCriteria{Field: field, Operator: op, Value: strings.TrimSpace(value)}, nil
	}
	return FilterCriteria{}, fmt.Errorf("invalid filter %q: expected field==value or field!=value", raw)
}

// Candidate is a component as seen by filters: its GitRepository, and the
// HelmRelease of the same name when the manifest has one.
type Candidate struct {
	Repo       GitRepository
	RepoDoc    *yaml.Node
	Release    *HelmRelease
	ReleaseDoc *yaml.Node
}

// Field resolves a filter field against the candidate. Empty component
// fields count as missing.
func (c Candidate) Field(field string) (string, bool) {
	if path, ok := strings.CutPrefix(field, releasePrefix); ok {
		if c.ReleaseDoc == nil {
			return "", false
		}
		return values.ScalarAt(c.ReleaseDoc, values.SplitPath(path)...)
	}
	if strings.Contains(field, ".") {
		if c.RepoDoc == nil {
			return "", false
		}
		return values.ScalarAt(c.RepoDoc, values.SplitPath(field)...)
	}

	var v string
	switch field {
	case FieldName:
		v = c.Repo.Name
	case FieldURL:
		v = c.Repo.URL
	case FieldRef:
		v = c.Repo.Ref()
	case FieldTag:
		v = c.Repo.Tag
	case FieldBranch:
		v = c.Repo.Branch
	case FieldChart:
		if c.Release != nil {
			v = c.Release.Chart
		}
	case FieldNamespace:
		if c.Release != nil {
			v = c.Release.TargetNamespace
		}
	}
	return v, v != ""
}

// Match reports whether the candidate satisfies the condition. A missing
// field never equals anything and always differs.
func (f FilterCriteria) Match(c Candidate) bool {
	v, found := c.Field(f.Field)
	if f.Operator == "!=" {
		return !found || v != f.Value
	}
	return found && v == f.Value
}

// MatchAll returns false and the first failing condition when the candidate
// does not satisfy every filter.
func (fs Filters) MatchAll(c Candidate) (bool, *FilterCriteria) {
	for i := range fs {
		if !fs[i].Match(c) {
			return false, &fs[i]
		}
	}
	return true, nil
}

func (f FilterCriteria) String() string {
	return fmt.Sprintf("%s %s '%s'", f.Field, f.Operator, f.Value)
}
