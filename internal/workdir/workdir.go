package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const areaPattern = "paperbridge-*"

// Area is a process-scoped temporary tree. Every document gets its own
// Scratch directory below it.
type Area struct {
	root string
}

// Scratch is a per-document working directory. Release removes it.
type Scratch struct {
	dir string
}

// New creates a fresh area below parent. An empty parent uses os.TempDir.
func New(parent string) (*Area, error) {
	parent = strings.TrimSpace(parent)
	if parent == "" {
		parent = os.TempDir()
	}
	abs, err := filepath.Abs(parent)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	root, err := os.MkdirTemp(abs, areaPattern)
	if err != nil {
		return nil, err
	}
	return &Area{root: root}, nil
}

// Root returns the area directory.
func (a *Area) Root() string {
	return a.root
}

// Acquire creates a scratch directory whose name is derived from identity.
// Two acquisitions never share a directory, even for equal identities.
func (a *Area) Acquire(identity string) (*Scratch, error) {
	if a == nil {
		return nil, fmt.Errorf("work area is not configured")
	}
	dir, err := os.MkdirTemp(a.root, sanitize(identity)+"-*")
	if err != nil {
		return nil, err
	}
	return &Scratch{dir: dir}, nil
}

// Close removes the whole area.
func (a *Area) Close() error {
	if a == nil || a.root == "" {
		return nil
	}
	return os.RemoveAll(a.root)
}

// Dir returns the scratch directory.
func (s *Scratch) Dir() string {
	return s.dir
}

// Path returns name resolved inside the scratch directory. Names that would
// escape the directory are rejected.
func (s *Scratch) Path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("scratch file name is required")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("scratch file name must be relative: %s", name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid scratch file name: %s", name)
	}
	return filepath.Join(s.dir, clean), nil
}

// Sub creates a subdirectory inside the scratch directory.
func (s *Scratch) Sub(name string) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Release removes the scratch directory. Missing directories are ignored.
func (s *Scratch) Release() error {
	if s == nil || s.dir == "" {
		return nil
	}
	return os.RemoveAll(s.dir)
}

func sanitize(identity string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(identity) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		if b.Len() >= 48 {
			break
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "doc"
	}
	return out
}
