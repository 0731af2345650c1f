package soundboard

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "wow.mp3", "airhorn.ogg", ".hidden", "bruh.wav")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	c, err := Load(dir)
	require.NoError(t, err)

	expected := []Sound{
		{ID: "0", Label: "airhorn", FileName: "airhorn.ogg"},
		{ID: "1", Label: "bruh", FileName: "bruh.wav"},
		{ID: "2", Label: "wow", FileName: "wow.mp3"},
	}
	assert.Equal(t, expected, c.Sounds())
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, dir, c.Dir())
}

func TestLoad_MissingDirectory(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Pages(25))
}

func TestCatalog_Track(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "airhorn.ogg")

	c, err := Load(dir)
	require.NoError(t, err)

	tr, err := c.Track("0")
	require.NoError(t, err)
	assert.Equal(t, "airhorn", tr.Title)
	assert.Equal(t, filepath.Join(dir, "airhorn.ogg"), tr.Locator)
	assert.True(t, tr.File)
	assert.False(t, tr.Search)

	_, err = c.Track("7")
	assert.True(t, errors.Is(err, ErrUnknownSound))
}

func TestCatalog_Pages(t *testing.T) {
	dir := t.TempDir()
	for i := range 60 {
		writeFiles(t, dir, fmt.Sprintf("clip%02d.mp3", i))
	}

	c, err := Load(dir)
	require.NoError(t, err)

	tests := []struct {
		name     string
		perPage  int
		expected []int
	}{
		{name: "discord button limit", perPage: 25, expected: []int{25, 25, 10}},
		{name: "exact division", perPage: 20, expected: []int{20, 20, 20}},
		{name: "zero means one page", perPage: 0, expected: []int{60}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := c.Pages(tt.perPage)
			sizes := make([]int, len(pages))
			for i, p := range pages {
				sizes[i] = len(p)
			}
			assert.Equal(t, tt.expected, sizes)
			assert.Equal(t, "clip00", pages[0][0].Label)
		})
	}
}
