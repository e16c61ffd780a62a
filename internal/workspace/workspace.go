// Package workspace owns the per-request scratch directory: creation,
// upload staging under a byte ceiling, path containment and teardown.
package workspace

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrUploadTooLarge = errors.New("workspace: upload too large")
	ErrPathEscape     = errors.New("workspace: path escapes workspace root")
	ErrBadFilename    = errors.New("workspace: invalid upload filename")
)

// FileUpload is one transport-encoded uploaded file record.
type FileUpload struct {
	Name   string `json:"name"`
	Base64 string `json:"base64"`
}

// Workspace is an ephemeral directory exclusively owned by one request.
type Workspace struct {
	root      string
	closeOnce sync.Once
	closeErr  error
}

// New creates a uniquely named scratch directory under baseDir, or the
// OS temp dir when baseDir is empty.
func New(baseDir string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	root := filepath.Join(baseDir, "toolhost-"+uuid.NewString())
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{root: root}, nil
}

func (w *Workspace) Root() string {
	return w.root
}

// Close removes the workspace tree. Safe to call more than once; only
// the first call does work.
func (w *Workspace) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = os.RemoveAll(w.root)
	})
	return w.closeErr
}

// Path joins elements under the workspace root, rejecting any result
// that would resolve outside it.
func (w *Workspace) Path(elem ...string) (string, error) {
	joined := filepath.Join(append([]string{w.root}, elem...)...)
	if !WithinRoot(joined, w.root) {
		return "", ErrPathEscape
	}
	return joined, nil
}

// Mkdir creates a subdirectory under the workspace root.
func (w *Workspace) Mkdir(name string) (string, error) {
	dir, err := w.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// Stage decodes uploaded records into the workspace. The running byte
// total is checked across the whole request; the first record pushing
// it past maxBytes aborts staging with ErrUploadTooLarge before any
// further decode or write. Client-supplied names are reduced to their
// bare filename so a crafted name cannot place a file outside the
// workspace. Returns staged paths grouped by field key, preserving
// per-key order, plus the total bytes written.
func (w *Workspace) Stage(files map[string][]FileUpload, maxBytes int64) (map[string][]string, int64, error) {
	staged := make(map[string][]string, len(files))
	var total int64

	for key, entries := range files {
		paths := make([]string, 0, len(entries))
		for _, entry := range entries {
			name := SanitizeFilename(entry.Name)
			if name == "" {
				return nil, total, fmt.Errorf("%w: files.%s.name", ErrBadFilename, key)
			}
			if strings.TrimSpace(entry.Base64) == "" {
				return nil, total, fmt.Errorf("files.%s.base64 is required", key)
			}
			raw, err := base64.StdEncoding.DecodeString(entry.Base64)
			if err != nil {
				return nil, total, fmt.Errorf("files.%s: decode %s: %w", key, name, err)
			}
			total += int64(len(raw))
			if total > maxBytes {
				return nil, total, ErrUploadTooLarge
			}
			dst, err := w.Path(name)
			if err != nil {
				return nil, total, err
			}
			if err := os.WriteFile(dst, raw, 0o600); err != nil {
				return nil, total, fmt.Errorf("stage %s: %w", name, err)
			}
			paths = append(paths, dst)
		}
		staged[key] = paths
	}
	return staged, total, nil
}

// SanitizeFilename strips any directory component and returns the bare
// name, or "" when nothing usable remains.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	// Client names may use either separator regardless of host OS.
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "/" {
		return ""
	}
	return base
}

// WithinRoot reports whether path is root itself or a descendant of it.
// Symlinks in existing ancestors are resolved before comparing.
func WithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath = resolveExisting(absPath)
	absRoot = resolveExisting(absRoot)

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting resolves symlinks for the longest existing prefix of
// path, re-joining the non-existing tail lexically.
func resolveExisting(path string) string {
	remainder := ""
	current := filepath.Clean(path)
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}
