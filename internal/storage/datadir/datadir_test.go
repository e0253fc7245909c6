package datadir

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestEnsure(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := New(fs, "/srv/data/")

	require.NoError(t, d.Ensure())
	require.NoError(t, d.Ensure())

	ok, err := afero.DirExists(fs, "/srv/data")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/srv/data", d.Root())
}

func TestPath(t *testing.T) {
	d := New(afero.NewMemMapFs(), "/data")

	testCases := []struct {
		name        string
		id          string
		expected    string
		expectError bool
	}{
		{name: "plain id", id: "org-dataset-1", expected: "/data/org-dataset-1"},
		{name: "empty", id: "", expectError: true},
		{name: "parent", id: "..", expectError: true},
		{name: "separator", id: "../etc/passwd", expectError: true},
		{name: "backslash", id: `a\b`, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path, err := d.Path(tc.id)
			if tc.expectError {
				require.ErrorIs(t, err, ErrInvalidID)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expected, path)
		})
	}
}

func TestRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := New(fs, "/data")
	require.NoError(t, afero.WriteFile(fs, "/data/a", []byte("a"), 0o644))

	require.NoError(t, d.Remove("a"))

	ok, err := d.Exists("a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, d.Remove("never-downloaded"))
}

func TestRemoveReadOnly(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/data/a", []byte("a"), 0o644))

	d := New(afero.NewReadOnlyFs(base), "/data")
	require.Error(t, d.Remove("a"))

	ok, err := d.Exists("a")
	require.NoError(t, err)
	require.True(t, ok)
}
