package content

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid content path")

// MediaPath resolves rel inside the media directory. Only existing regular
// files are returned.
func (l *Library) MediaPath(rel string) (string, error) {
	return l.resolve("media", rel, "")
}

// ScriptPath resolves rel inside the scripts directory. Only existing .py
// files are returned.
func (l *Library) ScriptPath(rel string) (string, error) {
	return l.resolve("scripts", rel, ".py")
}

func (l *Library) resolve(dir, rel, ext string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" || strings.ContainsRune(rel, 0) || filepath.IsAbs(rel) {
		return "", ErrInvalidPath
	}
	if ext != "" && !strings.EqualFold(filepath.Ext(rel), ext) {
		return "", ErrInvalidPath
	}
	base, err := filepath.Abs(filepath.Join(l.root, dir))
	if err != nil {
		return "", ErrInvalidPath
	}
	full := filepath.Join(base, filepath.FromSlash(rel))
	if !within(base, full) {
		return "", ErrInvalidPath
	}
	// Symlinks may point outside the tree.
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", ErrInvalidPath
	}
	if realBase, err := filepath.EvalSymlinks(base); err == nil && !within(realBase, resolved) {
		return "", ErrInvalidPath
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrInvalidPath
	}
	return resolved, nil
}

func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}
