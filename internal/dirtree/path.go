package dirtree

import (
	"strings"

	"github.com/nicolagi/dedupvfs/internal/vfserr"
)

// Path is the structured form of an inner path: an ordered sequence of name
// components, root-relative. The empty slice denotes the root itself.
type Path []string

// ParsePath converts the textual form of an inner path to its structured
// form. The textual grammar is: "" | "/" | [/]name(/name)*[/]. Two adjacent
// separators anywhere in the string make the path invalid.
//
// "" is the degenerate "no path given" form; callers that mean "current
// directory" resolve it themselves (DirTree has no cursor of its own; see
// vfs.VirtualFileSystem).
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	if strings.Contains(s, "//") {
		return nil, vfserr.ErrInvalidPath
	}
	trimmed := strings.Trim(s, "/")
	if trimmed == "" {
		return Path{}, nil
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" {
			return nil, vfserr.ErrInvalidPath
		}
	}
	return Path(parts), nil
}

// String renders p back to its textual form, always absolute (leading "/").
// The root path renders as "/".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	return "/" + strings.Join(p, "/")
}

// Name returns the last component, or "" for the root.
func (p Path) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns the path one level up. Calling Parent on the root returns
// the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	out := make(Path, len(p)-1)
	copy(out, p[:len(p)-1])
	return out
}

// Child returns the path of the named child of p.
func (p Path) Child(name string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = name
	return out
}

// IsRoot reports whether p denotes the root.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Contains reports whether other is p itself or lies within the subtree
// rooted at p.
func (p Path) Contains(other Path) bool {
	if len(other) < len(p) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Equal reports whether p and other denote the same path.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of p.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}
