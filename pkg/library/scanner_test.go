package library

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLibrary(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, f, []byte("x"), 0644))
	}
	return fs
}

func keys(t *testing.T, s *Scanner) []string {
	t.Helper()
	items, err := s.Scan()
	require.NoError(t, err)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key
	}
	return out
}

func TestScanOrderAndFilter(t *testing.T) {
	fs := buildLibrary(t,
		"/photos/b.jpg",
		"/photos/a.PNG",
		"/photos/notes.txt",
		"/photos/2019/summer/z.heic",
		"/photos/2019/summer/a.webp",
		"/photos/2019/c.TIF",
		"/photos/2018/x.jpeg",
		"/photos/.thumbs/cache.db",
	)

	got := keys(t, NewScanner(fs, "/photos", nil))
	assert.Equal(t, []string{
		"a.PNG",
		"b.jpg",
		"2018/x.jpeg",
		"2019/c.TIF",
		"2019/summer/a.webp",
		"2019/summer/z.heic",
	}, got)
}

func TestScanItemPaths(t *testing.T) {
	fs := buildLibrary(t, "/lib/album/p.jpg")

	items, err := NewScanner(fs, "/lib", nil).Scan()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "album/p.jpg", items[0].Key)
	assert.Equal(t, "/lib/album/p.jpg", items[0].Path)
}

func TestScanIsStable(t *testing.T) {
	fs := buildLibrary(t, "/p/3.jpg", "/p/1.jpg", "/p/2.jpg", "/p/d/4.jpg")
	s := NewScanner(fs, "/p", nil)
	assert.Equal(t, keys(t, s), keys(t, s))
}

func TestScanUnreadableRoot(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := NewScanner(fs, "/nowhere", nil).Scan()
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/file.jpg", []byte("x"), 0644))
	_, err = NewScanner(fs, "/file.jpg", nil).Scan()
	assert.Error(t, err)
}

func TestScanEmptyLibrary(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0755))

	n, err := NewScanner(fs, "/empty", nil).Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIsPhoto(t *testing.T) {
	s := NewScanner(afero.NewMemMapFs(), "/", nil)
	assert.True(t, s.IsPhoto("IMG_0001.JPG"))
	assert.True(t, s.IsPhoto("scan.tiff"))
	assert.False(t, s.IsPhoto("clip.mov"))
	assert.False(t, s.IsPhoto("jpg"))
}
