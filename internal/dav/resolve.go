package dav

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot signals a path that escapes the dav's root directory;
// callers must map this to 404, not 403, so as not to disclose existence
// of anything outside the served tree.
var ErrOutsideRoot = errors.New("dav: path escapes root")

// resolve joins name (a request path, already percent-decoded by the
// net/http request parser) under root, neutralizing traversal, and — when
// allowSymlinks is false — applying a cheap lstat-then-canonicalize check
// so a symlink inside the tree can't be used to escape it.
func resolve(root, name string, allowSymlinks bool) (string, error) {
	clean := path.Clean("/" + name)
	full := filepath.Join(root, filepath.FromSlash(clean))
	if allowSymlinks {
		return full, nil
	}
	if err := checkContained(full, root); err != nil {
		return "", err
	}
	return full, nil
}

// checkContained performs the two-step check: a cheap Lstat first, and
// only canonicalizes (via EvalSymlinks) when a symlink is actually hit
// somewhere on the path, or when the parent directory itself resolves
// outside root through a symlinked ancestor.
func checkContained(full, root string) error {
	rootReal, err := filepath.EvalSymlinks(root)
	if err != nil {
		rootReal = root
	}
	info, err := os.Lstat(full)
	if err == nil && info.Mode()&os.ModeSymlink != 0 {
		real, err := filepath.EvalSymlinks(full)
		if err != nil {
			return ErrOutsideRoot
		}
		if !underRoot(real, rootReal) {
			return ErrOutsideRoot
		}
		return nil
	}
	// The target itself may not exist yet (PUT/MKCOL of a new resource);
	// check whether any existing ancestor directory is a symlink that
	// resolves outside root.
	dir := filepath.Dir(full)
	for {
		dirInfo, lerr := os.Lstat(dir)
		if lerr != nil {
			break // ancestor doesn't exist either; nothing more to check
		}
		if dirInfo.Mode()&os.ModeSymlink != 0 {
			real, err := filepath.EvalSymlinks(dir)
			if err != nil || !underRoot(real, rootReal) {
				return ErrOutsideRoot
			}
		}
		if dir == root || dir == string(filepath.Separator) || dir == filepath.Dir(dir) {
			break
		}
		dir = filepath.Dir(dir)
	}
	if !underRoot(full, root) {
		return ErrOutsideRoot
	}
	return nil
}

func underRoot(candidate, root string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
