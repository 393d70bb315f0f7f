package sdc

import (
	"fmt"
	"strings"

	"github.com/ardnew/sdcbridge/pkg"
)

// DefaultMountpoint is the display prefix of the card volume.
const DefaultMountpoint = "/sd"

// Path is a directory on the card volume. It is an immutable value;
// Enter and Up return new paths.
type Path struct {
	root  string
	elems []string
}

// NewPath returns the volume root displayed under mountpoint.
func NewPath(mountpoint string) Path {
	mountpoint = strings.TrimRight(mountpoint, "/")
	if mountpoint == "" {
		mountpoint = DefaultMountpoint
	}
	return Path{root: mountpoint}
}

// ParsePath parses a display path under mountpoint, such as
// "/sd/games/demo". Paths without the mountpoint prefix are taken
// relative to the volume root.
func ParsePath(mountpoint, s string) (Path, error) {
	p := NewPath(mountpoint)
	rest := s
	if s == p.root || strings.HasPrefix(s, p.root+"/") {
		rest = s[len(p.root):]
	}
	for _, e := range strings.Split(rest, "/") {
		switch e {
		case "", ".":
		case "..":
			if p.IsRoot() {
				return Path{}, fmt.Errorf("path %q: %w", s, pkg.ErrInvalidParameter)
			}
			p = p.Up()
		default:
			p = p.Enter(e)
		}
	}
	return p, nil
}

// Enter returns the subdirectory name of p.
func (p Path) Enter(name string) Path {
	elems := make([]string, len(p.elems), len(p.elems)+1)
	copy(elems, p.elems)
	return Path{root: p.root, elems: append(elems, name)}
}

// Up returns the parent of p. The root is its own parent.
func (p Path) Up() Path {
	if p.IsRoot() {
		return p
	}
	return Path{root: p.root, elems: p.elems[:len(p.elems)-1:len(p.elems)-1]}
}

// IsRoot reports whether p is the volume root.
func (p Path) IsRoot() bool {
	return len(p.elems) == 0
}

// Mountpoint returns the display prefix of p.
func (p Path) Mountpoint() string {
	return p.root
}

// String returns the display path, e.g. "/sd/games".
func (p Path) String() string {
	if p.IsRoot() {
		return p.root
	}
	return p.root + "/" + strings.Join(p.elems, "/")
}

// Volume returns the path within the volume, e.g. "/games".
func (p Path) Volume() string {
	return "/" + strings.Join(p.elems, "/")
}

// Join returns the volume path of name inside p.
func (p Path) Join(name string) string {
	if p.IsRoot() {
		return "/" + name
	}
	return p.Volume() + "/" + name
}

// Display returns the display path of name inside p.
func (p Path) Display(name string) string {
	return p.String() + "/" + name
}
