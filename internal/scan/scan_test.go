package scan

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSourceFs(t *testing.T, dir string, files ...string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(dir, 0o755))
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, f), []byte("x"), 0o644))
	}
	return fsys
}

func TestResolveDir(t *testing.T) {
	tests := []struct {
		base string
		rel  string
		want string
	}{
		{"/opt/coral/Tools", "../Coral", "/opt/coral/Coral"},
		{"/opt/coral/Tools", "../Coral/", "/opt/coral/Coral"},
		{"/opt/coral/Tools/", "./docs", "/opt/coral/Tools/docs"},
		{"/", "../Coral", "/Coral"},
		{"/does/not/exist", "src", "/does/not/exist/src"},
		{"/opt/coral/Tools", "/abs/path/../src", "/abs/src"},
	}
	for _, tt := range tests {
		t.Run(tt.base+"+"+tt.rel, func(t *testing.T) {
			got, err := ResolveDir(tt.base, tt.rel)
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestResolveDir_RelativeBase(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	got, err := ResolveDir("Tools", "../Coral")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "Coral"), got)
}

func TestExecutableDir(t *testing.T) {
	dir, err := ExecutableDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir), "expected absolute path, got %s", dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestList_SkipsDirectories(t *testing.T) {
	fsys := newSourceFs(t, "/src", "a.src", "b.txt", "c.src")
	require.NoError(t, fsys.Mkdir("/src/sub", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/src/sub/nested.src", []byte("x"), 0o644))

	names, err := List(fsys, "/src")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.src", "b.txt", "c.src"}, names)
}

func TestList_Empty(t *testing.T) {
	fsys := newSourceFs(t, "/src")

	names, err := List(fsys, "/src")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestList_MissingDir(t *testing.T) {
	fsys := afero.NewMemMapFs()

	_, err := List(fsys, "/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "expected ErrNotExist, got %v", err)
	assert.Contains(t, err.Error(), "/missing")
}

func TestList_NotADirectory(t *testing.T) {
	fsys := newSourceFs(t, "/src", "file.src")

	_, err := List(fsys, "/src/file.src")
	assert.Error(t, err)
}

func TestList_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.nim"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "pkg.nim"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.nim"), filepath.Join(dir, "link.nim")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "pkg.nim"), filepath.Join(dir, "dirlink.nim")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone.nim"), filepath.Join(dir, "dangling.nim")))

	names, err := List(afero.NewOsFs(), dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"real.nim", "link.nim"}, names)
}

func TestMatch(t *testing.T) {
	names := []string{"a.src", "b.txt", "c.src", "d.SRC", "src", "e.src.bak"}
	assert.Equal(t, []string{"a.src", "c.src"}, Match(names, ".src"))
}

func TestMatch_PreservesOrder(t *testing.T) {
	names := []string{"z.nim", "a.nim", "m.txt", "b.nim"}
	assert.Equal(t, []string{"z.nim", "a.nim", "b.nim"}, Match(names, ".nim"))
}

func TestMatch_NoMatches(t *testing.T) {
	assert.Empty(t, Match([]string{"a.txt"}, ".nim"))
	assert.Empty(t, Match(nil, ".nim"))
}

func TestScan(t *testing.T) {
	fsys := newSourceFs(t, "/src", "a.src", "b.txt", "c.src")
	require.NoError(t, fsys.Mkdir("/src/sub", 0o755))

	entries, matched, err := Scan(fsys, Source{Dir: "/src", Suffix: ".src"})
	require.NoError(t, err)
	assert.Equal(t, 3, entries)
	assert.ElementsMatch(t, []string{"a.src", "c.src"}, matched)
	for _, name := range matched {
		assert.True(t, strings.HasSuffix(name, ".src"), "unexpected match %s", name)
	}
}

func TestScan_MissingDirVersusEmpty(t *testing.T) {
	_, matched, err := Scan(afero.NewMemMapFs(), Source{Dir: "/nope", Suffix: ".src"})
	assert.Error(t, err)
	assert.Nil(t, matched)

	entries, matched, err := Scan(newSourceFs(t, "/src", "b.txt"), Source{Dir: "/src", Suffix: ".src"})
	assert.NoError(t, err)
	assert.Equal(t, 1, entries)
	assert.Empty(t, matched)
}
