package tools

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/semtexzv/termineer-sub001/errors"
)

// Policy layers configured glob restrictions on top of the working-directory
// sandbox. Hidden paths are invisible to every file tool; read-only paths
// reject writes.
type Policy struct {
	Hidden   []string
	ReadOnly []string
}

// CheckRead rejects hidden paths. rel is workdir-relative.
func (p Policy) CheckRead(rel string) error {
	hidden, err := matchAny(rel, p.Hidden)
	if err != nil {
		return err
	}
	if hidden {
		return &PermissionError{Path: rel, Reason: "path is hidden"}
	}
	return nil
}

// CheckWrite rejects hidden and read-only paths. rel is workdir-relative.
func (p Policy) CheckWrite(rel string) error {
	if err := p.CheckRead(rel); err != nil {
		return err
	}
	ro, err := matchAny(rel, p.ReadOnly)
	if err != nil {
		return err
	}
	if ro {
		return &PermissionError{Path: rel, Reason: "path is read-only"}
	}
	return nil
}

func matchAny(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern %q", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// ResolveWithin resolves p against root and verifies the result stays
// inside root after symlink resolution. It returns the absolute target and
// its root-relative form, or a PermissionError. The deepest existing
// ancestor is resolved so not-yet-created targets are still checked.
func ResolveWithin(root, p string) (abs string, rel string, err error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", "", errors.Wrapf(err, "cannot resolve working directory")
	}
	rootResolved, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", "", errors.Wrapf(err, "cannot resolve working directory %q", root)
	}

	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	target = filepath.Clean(target)

	resolved, err := resolveExisting(target)
	if err != nil {
		return "", "", err
	}

	rel, err = filepath.Rel(rootResolved, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", &PermissionError{Path: p, Reason: "resolves outside the working directory"}
	}
	return resolved, rel, nil
}

// resolveExisting evaluates symlinks over the longest existing prefix of
// path and reattaches the non-existing remainder.
func resolveExisting(path string) (string, error) {
	var tail []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "cannot resolve path %q", path)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", errors.New("cannot resolve path %q", path)
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}
