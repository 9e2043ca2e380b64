// Package loader registers namespace files found on disk with an
// environment.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

// Ext is the extension of template files.
const Ext = ".soy"

// Registrar is the part of *soy.Environment the loader needs.
type Registrar interface {
	AddFile(filename, source string) ([]string, error)
}

// LoadDir registers every template file below dir. See LoadFS.
func LoadDir(env Registrar, dir string) ([]string, error) {
	return LoadFS(env, os.DirFS(dir), ".")
}

// LoadFS walks root in fsys and registers every template file in lexical
// path order. It returns the names of all registered templates. The first
// file that fails to read or parse stops the walk; its error is returned
// wrapped with the file path.
func LoadFS(env Registrar, fsys fs.FS, root string) ([]string, error) {
	files, err := Files(fsys, root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, file := range files {
		source, err := fs.ReadFile(fsys, file)
		if err != nil {
			return names, fmt.Errorf("read %s: %w", file, err)
		}
		registered, err := env.AddFile(file, string(source))
		if err != nil {
			return names, fmt.Errorf("load %s: %w", file, err)
		}
		names = append(names, registered...)
	}
	return names, nil
}

// Files lists the template files below root, sorted.
func Files(fsys fs.FS, root string) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if path.Ext(p) == Ext {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
