package sdc

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ardnew/sdcbridge/pkg"
)

// DefaultExtension is the image file extension shown in listings.
const DefaultExtension = ".st"

// ParentName is the synthesized entry leading to the parent directory.
const ParentName = ".."

// Entry is one line of a directory listing.
type Entry struct {
	Name string
	Size int64
	Dir  bool
}

// Browse changes the working directory and lists it. An empty target
// relists the current directory, ParentName moves up and any other name
// enters that subdirectory. The working directory is left unchanged on
// error.
//
// The returned listing replaces the previous one and stays valid until
// the next call; callers must not modify it.
func (c *Controller) Browse(target string) ([]Entry, error) {
	c.mutex.Lock()
	prev := c.cwd
	list, err := c.browseLocked(target)
	cwd := c.cwd
	c.mutex.Unlock()

	if err == nil {
		c.chdirHook(prev, cwd)
	}
	return list, err
}

func (c *Controller) browseLocked(target string) ([]Entry, error) {
	if c.fs == nil {
		return nil, pkg.ErrNotMounted
	}

	next := c.cwd
	switch target {
	case "", ".":
	case ParentName:
		next = c.cwd.Up()
	default:
		next = c.cwd.Enter(target)
	}

	c.listing = nil
	list, err := c.scan(next)
	if err != nil {
		return nil, fmt.Errorf("browse %s: %w", next, err)
	}
	c.cwd = next
	c.listing = list
	pkg.LogDebug(pkg.ComponentBrowse, "listing", "dir", next.String(), "entries", len(list))
	return list, nil
}

// Chdir makes the display path dir the working directory and lists it.
func (c *Controller) Chdir(dir string) ([]Entry, error) {
	p, err := ParsePath(c.opts.Mountpoint, dir)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	prev := c.cwd
	list, err := c.chdirLocked(p)
	c.mutex.Unlock()

	if err == nil {
		c.chdirHook(prev, p)
	}
	return list, err
}

func (c *Controller) chdirLocked(p Path) ([]Entry, error) {
	if c.fs == nil {
		return nil, pkg.ErrNotMounted
	}
	c.listing = nil
	list, err := c.scan(p)
	if err != nil {
		return nil, fmt.Errorf("chdir %s: %w", p, err)
	}
	c.cwd = p
	c.listing = list
	return list, nil
}

// chdirHook reports a working directory change. Caller must not hold mutex.
func (c *Controller) chdirHook(prev, cwd Path) {
	if c.opts.OnChdir != nil && prev.String() != cwd.String() {
		c.opts.OnChdir(cwd.String())
	}
}

// Cwd returns the working directory.
func (c *Controller) Cwd() Path {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.cwd
}

// Listing returns the most recent directory listing.
func (c *Controller) Listing() []Entry {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.listing
}

// scan lists dir: subdirectories and image files, hidden and system
// entries skipped, with a parent entry below the root. Caller holds mutex.
func (c *Controller) scan(dir Path) ([]Entry, error) {
	d, err := c.fs.OpenDir(dir.Volume())
	if err != nil {
		return nil, err
	}
	defer d.Close()

	list := []Entry{}
	if !dir.IsRoot() {
		list = append(list, Entry{Name: ParentName, Dir: true})
	}
	for {
		info, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if info.IsHidden() {
			continue
		}
		if !info.IsDir() && !hasExtension(info.Name, c.opts.Extension) {
			continue
		}
		list = append(list, Entry{Name: info.Name, Size: info.Size, Dir: info.IsDir()})
	}
	sortEntries(list)
	return list, nil
}

// hasExtension reports whether name ends in ext, ignoring case. The
// extension alone does not count as a name.
func hasExtension(name, ext string) bool {
	if ext == "" {
		return true
	}
	return len(name) > len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext)
}

// sortEntries orders directories before files, each group by name
// ignoring case.
func sortEntries(list []Entry) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Dir != b.Dir {
			return a.Dir
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}
