package artifact

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"bbinflator/internal/pkg/errs"
	"bbinflator/internal/pkg/logger"

	"github.com/stretchr/testify/require"
)

func init() {
	logger.Log.SetOutput(io.Discard)
}

func TestStoreWriteOverwrites(t *testing.T) {
	store := Store{Dir: filepath.Join(t.TempDir(), "generated")}
	require.NoError(t, store.Ensure())
	require.NoError(t, store.Ensure())

	require.NoError(t, store.Write(Values, []byte("a: 1\n")))
	require.NoError(t, store.Write(Values, []byte("a: 2\n")))

	got, err := store.Read(Values)
	require.NoError(t, err)
	require.Equal(t, "a: 2\n", string(got))
	require.Equal(t, filepath.Join(store.Dir, "values.yaml"), store.Path(Values))
}

func TestStoreReadMissing(t *testing.T) {
	store := Store{Dir: t.TempDir()}

	tests := []struct {
		name     string
		artifact string
		producer string
	}{
		{name: "platform manifests", artifact: BigBangManifests, producer: "bigbang-build"},
		{name: "component manifests", artifact: ComponentManifests("istio-controlplane"), producer: "bigbang-component"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Read(tt.artifact)
			var pre *errs.PreconditionError
			require.True(t, errors.As(err, &pre))
			require.Contains(t, err.Error(), tt.artifact)
			require.Contains(t, err.Error(), tt.producer)
		})
	}
}

func TestStoreDiffLogging(t *testing.T) {
	var buf bytes.Buffer
	logger.Log.SetOutput(&buf)
	t.Cleanup(func() { logger.Log.SetOutput(io.Discard) })

	store := Store{Dir: t.TempDir(), Diff: true}
	require.NoError(t, store.Write(Manifest, []byte("kind: Namespace\nname: a\n")))
	require.NotContains(t, buf.String(), "Changes")

	require.NoError(t, store.Write(Manifest, []byte("kind: Namespace\nname: b\n")))
	require.Contains(t, buf.String(), "-name: a")
	require.Contains(t, buf.String(), "+name: b")

	content, err := os.ReadFile(store.Path(Manifest))
	require.NoError(t, err)
	require.Equal(t, "kind: Namespace\nname: b\n", string(content))
}

func TestDiff(t *testing.T) {
	text, err := Diff("old", "new", []byte("a\nb\n"), []byte("a\nb\n"))
	require.NoError(t, err)
	require.Empty(t, text)

	text, err = Diff("old", "new", []byte("a\nb\n"), []byte("a\nc\n"))
	require.NoError(t, err)
	require.Contains(t, text, "--- old")
	require.Contains(t, text, "+++ new")
	require.Contains(t, text, "-b")
	require.Contains(t, text, "+c")
}
