package sdc

import (
	"errors"
	"fmt"

	"github.com/ardnew/sdcbridge/fatfs"
	"github.com/ardnew/sdcbridge/pkg"
)

// DefaultLinkTableSize is the initial link table size in 32-bit items.
const DefaultLinkTableSize = 16

// TableAllocator provides storage for cluster link tables.
type TableAllocator interface {
	// Alloc returns a table of n items, or an error if none is available.
	Alloc(n int) ([]uint32, error)

	// Free releases a table returned by Alloc.
	Free(tbl []uint32)
}

// HeapAllocator allocates link tables from the Go heap. Limit, when
// positive, caps the size of a single table.
type HeapAllocator struct {
	Limit int
}

// Alloc implements TableAllocator.
func (h HeapAllocator) Alloc(n int) ([]uint32, error) {
	if n <= 0 || (h.Limit > 0 && n > h.Limit) {
		return nil, fmt.Errorf("link table of %d items: %w", n, pkg.ErrBufferTooSmall)
	}
	return make([]uint32, n), nil
}

// Free implements TableAllocator.
func (HeapAllocator) Free([]uint32) {}

// slot binds a drive to an open image. A slot with a table always has a
// file; a file may lack a table when link table construction failed.
type slot struct {
	file  *fatfs.File
	table []uint32
	path  string // Display path of the image
}

// SlotInfo describes the image bound to a drive.
type SlotInfo struct {
	Drive  Drive
	Path   string
	Size   int64
	Linked bool // Cluster lookups use the link table
}

// Open reports whether an image is bound.
func (s SlotInfo) Open() bool {
	return s.Path != ""
}

func (s *slot) info(d Drive) SlotInfo {
	info := SlotInfo{Drive: d, Path: s.path}
	if s.file != nil {
		info.Size = s.file.Size()
		info.Linked = s.file.Linked()
	}
	return info
}

// release frees the link table and closes the file. The slot is empty
// afterwards.
func (s *slot) release(alloc TableAllocator) {
	if s.table != nil {
		if s.file != nil {
			s.file.DetachLinkMap()
		}
		alloc.Free(s.table)
		s.table = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			pkg.LogDebug(pkg.ComponentSDC, "close image", "path", s.path, "error", err)
		}
		s.file = nil
	}
	s.path = ""
}

// buildLinkTable attaches a link table to file. The first attempt uses
// size items; if that is too small a second attempt uses the size the
// filesystem asked for. On any failure nil is returned, nothing stays
// allocated and the file keeps working through chain walks.
func buildLinkTable(file *fatfs.File, alloc TableAllocator, size int) []uint32 {
	tbl, err := allocTable(alloc, size)
	if err != nil {
		pkg.LogWarn(pkg.ComponentSDC, "link table allocation failed", "items", size, "error", err)
		return nil
	}
	err = file.CreateLinkMap(tbl)
	if errors.Is(err, fatfs.ResultNotEnoughCore) {
		need := int(tbl[0])
		alloc.Free(tbl)
		pkg.LogDebug(pkg.ComponentSDC, "link table too small", "items", size, "need", need)

		if tbl, err = allocTable(alloc, need); err != nil {
			pkg.LogWarn(pkg.ComponentSDC, "link table allocation failed", "items", need, "error", err)
			return nil
		}
		err = file.CreateLinkMap(tbl)
	}
	if err != nil {
		file.DetachLinkMap()
		alloc.Free(tbl)
		pkg.LogWarn(pkg.ComponentSDC, "link table unavailable, using cluster chain",
			"file", file.Name(), "error", err)
		return nil
	}
	pkg.LogDebug(pkg.ComponentSDC, "link table built", "file", file.Name(), "items", tbl[0])
	return tbl
}

func allocTable(alloc TableAllocator, n int) ([]uint32, error) {
	tbl, err := alloc.Alloc(n)
	if err != nil {
		return nil, err
	}
	if len(tbl) < n || n < 1 {
		alloc.Free(tbl)
		return nil, fmt.Errorf("link table of %d items: %w", n, pkg.ErrBufferTooSmall)
	}
	tbl[0] = uint32(n)
	return tbl, nil
}
