package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StatePaths resolves the on-disk locations lensbot writes to: the bbolt
// database, the history index and the log file.
type StatePaths struct {
	// Root, when set, confines every path to that directory tree.
	Root string
}

// Resolve expands ~, makes the path absolute and rejects traversal.
func (sp StatePaths) Resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", errors.New("path contains null bytes")
	}
	for _, component := range strings.Split(filepath.ToSlash(path), "/") {
		if component == ".." {
			return "", errors.New("directory traversal not allowed")
		}
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	} else if strings.HasPrefix(path, "~") {
		return "", errors.New("invalid tilde usage")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot make path absolute: %w", err)
	}

	if sp.Root != "" {
		root, err := filepath.Abs(sp.Root)
		if err != nil {
			return "", fmt.Errorf("resolving root: %w", err)
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path %s is outside %s", abs, root)
		}
	}
	return abs, nil
}

// EnsureParent resolves a file path and creates its parent directory.
func (sp StatePaths) EnsureParent(path string) (string, error) {
	resolved, err := sp.Resolve(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", resolved)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}
	return resolved, nil
}
