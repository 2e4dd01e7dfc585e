package transfer

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bft-labs/socklab/internal/domain"
)

// Root confines client paths to one directory.
type Root struct {
	dir string // absolute, symlinks resolved
}

// NewRoot returns a Root for dir, which must exist.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", dir)
	}
	return &Root{dir: canon}, nil
}

// Dir returns the root's filesystem path.
func (r *Root) Dir() string { return r.dir }

// Resolve joins p onto the virtual working directory cwd and returns the
// cleaned virtual path together with its location on disk. Absolute
// paths start at the root. The result never lies outside the root, even
// through symlinks.
func (r *Root) Resolve(cwd, p string) (virtual, real string, err error) {
	p = filepath.ToSlash(strings.TrimSpace(p))
	if path.IsAbs(p) {
		virtual = path.Clean(p)
	} else {
		virtual = path.Join("/", cwd, p)
	}
	real = filepath.Join(r.dir, filepath.FromSlash(virtual))
	if err := r.within(real); err != nil {
		return "", "", err
	}
	return virtual, real, nil
}

// within reports an error when real, after resolving symlinks on its
// longest existing prefix, falls outside the root.
func (r *Root) within(real string) error {
	canon := real
	if resolved, err := filepath.EvalSymlinks(real); err == nil {
		canon = resolved
	} else {
		check := real
		for {
			parent := filepath.Dir(check)
			if parent == check {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parent); err == nil {
				rel, _ := filepath.Rel(parent, real)
				canon = filepath.Join(resolved, rel)
				break
			}
			check = parent
		}
	}

	rel, err := filepath.Rel(r.dir, canon)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s escapes the root", domain.ErrInvalidPath, real)
	}
	return nil
}

// ResolveDir resolves p and checks that it names a directory.
func (r *Root) ResolveDir(cwd, p string) (virtual, real string, err error) {
	virtual, real, err = r.Resolve(cwd, p)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(real)
	if err != nil || !info.IsDir() {
		return "", "", fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidPath, virtual)
	}
	return virtual, real, nil
}

// ResolveFile resolves p and checks that it names a regular file.
func (r *Root) ResolveFile(cwd, p string) (virtual, real string, info os.FileInfo, err error) {
	virtual, real, err = r.Resolve(cwd, p)
	if err != nil {
		return "", "", nil, err
	}
	info, err = os.Stat(real)
	if err != nil || !info.Mode().IsRegular() {
		return "", "", nil, fmt.Errorf("%w: %s is not a file", domain.ErrInvalidPath, virtual)
	}
	return virtual, real, info, nil
}
