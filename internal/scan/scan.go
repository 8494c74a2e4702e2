// Package scan resolves the source directory and lists the files to dispatch.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Source is a resolved source directory and the suffix its files must carry.
type Source struct {
	Dir    string
	Suffix string
}

// ExecutableDir returns the absolute, symlink-resolved directory holding the
// running binary.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return filepath.Dir(exe), nil
}

// ResolveDir joins rel onto base and returns the cleaned absolute path. An
// absolute rel is returned cleaned, ignoring base. The result depends only
// on the two inputs, never on what exists on disk.
func ResolveDir(base, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel), nil
	}
	abs, err := filepath.Abs(filepath.Join(base, rel))
	if err != nil {
		return "", fmt.Errorf("resolve %s against %s: %w", rel, base, err)
	}
	return abs, nil
}

// List returns the names of the regular files directly inside dir, in the
// order the directory enumeration yields them. Symlinks count as files when
// their target is a regular file.
func List(fsys afero.Fs, dir string) ([]string, error) {
	f, err := fsys.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("list source dir %s: %w", dir, err)
	}
	defer f.Close()

	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, fmt.Errorf("list source dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if isRegular(fsys, dir, info) {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

func isRegular(fsys afero.Fs, dir string, info fs.FileInfo) bool {
	if info.Mode()&fs.ModeSymlink == 0 {
		return info.Mode().IsRegular()
	}
	target, err := fsys.Stat(filepath.Join(dir, info.Name()))
	if err != nil {
		// Dangling link.
		return false
	}
	return target.Mode().IsRegular()
}

// Match keeps the names ending with suffix. The comparison is literal and
// case-sensitive; order is preserved.
func Match(names []string, suffix string) []string {
	matched := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, suffix) {
			matched = append(matched, name)
		}
	}
	return matched
}

// Scan lists src.Dir and returns the entry count and the names carrying
// src.Suffix.
func Scan(fsys afero.Fs, src Source) (entries int, matched []string, err error) {
	names, err := List(fsys, src.Dir)
	if err != nil {
		return 0, nil, err
	}
	return len(names), Match(names, src.Suffix), nil
}
