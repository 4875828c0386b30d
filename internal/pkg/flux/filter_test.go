package flux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        FilterCriteria
		expectError bool
	}{
		{
			name:  "component field",
			input: "tag==1.2.3",
			want:  FilterCriteria{Field: "tag", Operator: "==", Value: "1.2.3"},
		},
		{
			name:  "document path inequality",
			input: "metadata.name!=istio",
			want:  FilterCriteria{Field: "metadata.name", Operator: "!=", Value: "istio"},
		},
		{
			name:  "spaces around operator",
			input: "  url  ==  https://x  ",
			want:  FilterCriteria{Field: "url", Operator: "==", Value: "https://x"},
		},
		{
			name:  "empty value",
			input: "branch==",
			want:  FilterCriteria{Field: "branch", Operator: "==", Value: ""},
		},
		{
			name:  "inequality wins over equality in the value",
			input: "release.spec.values.expr!=a==b",
			want:  FilterCriteria{Field: "release.spec.values.expr", Operator: "!=", Value: "a==b"},
		},
		{name: "invalid operator", input: "key~=value", expectError: true},
		{name: "single equal sign", input: "key=value", expectError: true},
		{name: "missing field", input: "==value", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func decodeNode(t *testing.T, doc string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(doc), &node))
	return &node
}

func TestFilterMatch(t *testing.T) {
	repoDoc := decodeNode(t, `
apiVersion: source.toolkit.fluxcd.io/v1
kind: GitRepository
metadata:
  name: istio
  labels:
    app.kubernetes.io/part-of: bigbang
spec:
  url: https://repo1.dso.mil/big-bang/product/packages/istio.git
  ref:
    tag: 1.2.3
`)
	releaseDoc := decodeNode(t, `
apiVersion: helm.toolkit.fluxcd.io/v2
kind: HelmRelease
metadata:
  name: istio
spec:
  targetNamespace: istio-system
  chart:
    spec:
      chart: chart
      version: 1.2.3-bb.0
`)
	joined := Candidate{
		Repo:       GitRepository{Name: "istio", URL: "https://repo1.dso.mil/big-bang/product/packages/istio.git", Tag: "1.2.3"},
		RepoDoc:    repoDoc,
		Release:    &HelmRelease{Name: "istio", Chart: "chart", TargetNamespace: "istio-system"},
		ReleaseDoc: releaseDoc,
	}
	repoOnly := Candidate{Repo: joined.Repo, RepoDoc: repoDoc}

	tests := []struct {
		name      string
		filter    string
		candidate Candidate
		wantMatch bool
	}{
		{name: "name field", filter: "name==istio", candidate: joined, wantMatch: true},
		{name: "ref prefers tag", filter: "ref==1.2.3", candidate: joined, wantMatch: true},
		{name: "unset branch differs", filter: "branch!=main", candidate: joined, wantMatch: true},
		{name: "unset branch never equals", filter: "branch==", candidate: joined, wantMatch: false},
		{name: "namespace from release", filter: "namespace==istio-system", candidate: joined, wantMatch: true},
		{name: "namespace without release", filter: "namespace==istio-system", candidate: repoOnly, wantMatch: false},
		{name: "chart without release differs", filter: "chart!=chart", candidate: repoOnly, wantMatch: true},
		{name: "repository path", filter: "spec.ref.tag==1.2.3", candidate: joined, wantMatch: true},
		{name: "quoted label key", filter: `metadata.labels."app.kubernetes.io/part-of"==bigbang`, candidate: joined, wantMatch: true},
		{name: "release path", filter: "release.spec.chart.spec.version==1.2.3-bb.0", candidate: joined, wantMatch: true},
		{name: "release path without release", filter: "release.spec.chart.spec.version!=1.2.3-bb.0", candidate: repoOnly, wantMatch: true},
		{name: "non-scalar target", filter: "spec.ref==1.2.3", candidate: joined, wantMatch: false},
		{name: "unknown field", filter: "owner==platform", candidate: joined, wantMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatch, f.Match(tt.candidate))
		})
	}
}

func TestFiltersMatchAll(t *testing.T) {
	c := Candidate{Repo: GitRepository{Name: "istio"}}

	filters, err := ParseFilters([]string{"name==istio", "", "name!=istio"})
	require.NoError(t, err)
	require.Len(t, filters, 2)

	ok, failed := filters.MatchAll(c)
	require.False(t, ok)
	require.Equal(t, "!=", failed.Operator)
	require.Equal(t, "name != 'istio'", failed.String())

	ok, failed = Filters{}.MatchAll(c)
	require.True(t, ok)
	require.Nil(t, failed)
}
