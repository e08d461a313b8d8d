package pathlib

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/indigo-web/origin/internal/uridecode"
	"github.com/indigo-web/utils/strcomp"
)

type Outcome uint8

const (
	// Resolved means the path is canonical and lies within the document root.
	Resolved Outcome = iota
	// Rejected means the request path is malformed or escapes the document root.
	Rejected
	// Forbidden means the path is inside the root, but its name is never served.
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	case Forbidden:
		return "forbidden"
	}

	return "unknown"
}

// Resolver maps request paths onto the filesystem below a fixed document root. It holds
// no mutable state and is safe for concurrent use. Nothing is cached: every call
// canonicalizes against the current filesystem state, as symlinks may change.
type Resolver struct {
	root string
	deny []string
}

// NewResolver canonicalizes the root once. The root must be an existing directory
func NewResolver(root string, deny []string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("document root: %w", err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("document root: %w", err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("document root: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("document root: %s is not a directory", canonical)
	}

	return &Resolver{
		root: canonical,
		deny: deny,
	}, nil
}

// Root returns the canonical document root
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the canonical filesystem path of the request path. The path is
// meaningful only if the outcome is Resolved
func (r *Resolver) Resolve(path string) (string, Outcome) {
	if len(path) == 0 || path[0] != '/' {
		return "", Rejected
	}

	decoded := uridecode.Decode(path)
	if strings.ContainsAny(decoded, "\x00\\") || strings.Contains(decoded, "..") {
		return "", Rejected
	}

	canonical, err := weakCanonical(filepath.Join(r.root, filepath.FromSlash(decoded)))
	if err != nil || !r.Contains(canonical) {
		return "", Rejected
	}

	if r.isForbidden(decoded) || r.IsForbidden(canonical) {
		return "", Forbidden
	}

	return canonical, Resolved
}

// Contains reports whether the canonical path is the root itself or lies below it
func (r *Resolver) Contains(canonical string) bool {
	if canonical == r.root {
		return true
	}

	return strings.HasPrefix(canonical, r.root) &&
		len(canonical) > len(r.root) && os.IsPathSeparator(canonical[len(r.root)])
}

// IsForbidden reports whether the canonical path lying within the root must never
// be served
func (r *Resolver) IsForbidden(canonical string) bool {
	if !r.Contains(canonical) {
		return true
	}

	return r.isForbidden(filepath.ToSlash(canonical[len(r.root):]))
}

// isForbidden checks a root-relative slash-separated path
func (r *Resolver) isForbidden(rel string) bool {
	if strings.Contains(rel, "/.") {
		return true
	}

	for _, segment := range strings.Split(rel, "/") {
		if strings.HasPrefix(segment, ".") || r.isDenied(segment) {
			return true
		}
	}

	return false
}

func (r *Resolver) isDenied(name string) bool {
	for _, denied := range r.deny {
		if strcomp.EqualFold(name, denied) {
			return true
		}
	}

	return false
}

// weakCanonical resolves symlinks of the deepest existing ancestor and appends the
// remaining non-existent suffix to it, so paths which don't exist yet still have
// a canonical form
func weakCanonical(path string) (string, error) {
	var suffix []string

	for {
		canonical, err := filepath.EvalSymlinks(path)
		if err == nil {
			return filepath.Join(append([]string{canonical}, suffix...)...), nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", err
		}

		suffix = append([]string{filepath.Base(path)}, suffix...)
		path = parent
	}
}
