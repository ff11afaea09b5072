/*
Package sandbox confines file access to a project root and gates side effects behind consent.

The root ("red box") is the nearest ancestor directory holding a red.tgsk marker.
Paths requested by scripts are virtual: "/" is the root, and relative paths are taken
from the script's current directory. Normalization is purely lexical, so symlinks and
the state of the disk play no part in deciding what is inside the box.

Side effects (exec, network, nested run, REPL) additionally pass the consent ("yellow") gate.
*/
package sandbox

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/tagspeak/tagspeak/tsapi"
)

// MarkerFilename marks a directory as a sandbox root.
const MarkerFilename = "red.tgsk"

// FindRoot looks for the marker file on the filesystem and returns the directory holding the first one found,
// searching directories upward.
//
// It searches from `join(basisPath,searchPath)` up to `basisPath`, inclusive.
// Invoking it with an empty string for `basisPath` and a derootified directory for `searchPath` is typical.
//
// If no root is found, it returns the empty string and a nil error.
// If errors are returned, they're due to filesystem IO.
//
// An fsys handle is required, but is typically `os.DirFS("/")` outside of tests.
//
// Errors:
//
//   - tagspeak-error-searching-filesystem -- when an unexpected error occurs traversing the search path
func FindRoot(fsys fs.FS, basisPath, searchPath string) (string, error) {
	// Our search loops over searchPath, popping a path segment off at the end of every round.
	searchAt := path.Clean(searchPath)
	for {
		dir := path.Join(basisPath, searchAt)
		_, err := fs.Stat(fsys, path.Join(dir, MarkerFilename))
		if err == nil {
			return dir, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			if searchAt == "." || searchAt == "/" {
				return "", nil
			}
			searchAt = path.Dir(searchAt)
			continue
		}
		// Whatever this error is, our search has blind spots: error out.
		return "", tsapi.ErrorSearchingFilesystem(MarkerFilename, err)
	}
}

// FindHostRoot runs FindRoot over the host filesystem starting at dir.
// The result is an absolute host path, or "" when there is no root.
//
// Errors:
//
//   - tagspeak-error-searching-filesystem -- when an unexpected error occurs traversing the search path
func FindHostRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", tsapi.ErrorSearchingFilesystem(MarkerFilename, err)
	}
	// os.DirFS wants unrooted paths.
	rel := filepath.ToSlash(abs)[1:]
	if rel == "" {
		rel = "."
	}
	found, err := FindRoot(os.DirFS("/"), "", rel)
	if err != nil || found == "" {
		return "", err
	}
	if found == "." {
		return "/", nil
	}
	return filepath.FromSlash("/" + found), nil
}
