package fatfs

import (
	"fmt"
	"io"
)

// File is a read-only handle on a regular file.
type File struct {
	fs     *FS
	name   string
	sclust uint32   // First cluster, 0 for an empty file
	size   uint32   // File size in bytes
	fptr   uint32   // Read/write pointer
	clust  uint32   // Cluster of byte fptr-1, or sclust when fptr is 0
	cltbl  []uint32 // Attached link-map table, nil for chain walking
}

// Open opens the regular file at path for reading.
func (fsys *FS) Open(path string) (*File, error) {
	info, err := fsys.stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ResultNoFile
	}
	return &File{
		fs:     fsys,
		name:   info.Name,
		sclust: info.Cluster,
		size:   uint32(info.Size),
		clust:  info.Cluster,
	}, nil
}

// Name returns the name of the file's directory entry.
func (f *File) Name() string { return f.name }

// Size returns the file size in bytes.
func (f *File) Size() int64 { return int64(f.size) }

// Pos returns the current read position.
func (f *File) Pos() int64 { return int64(f.fptr) }

// Cluster returns the cluster holding byte Pos()-1, or the first cluster
// of the file when the position is zero. It is 0 for an empty file.
func (f *File) Cluster() uint32 { return f.clust }

// Linked reports whether a link-map table is attached.
func (f *File) Linked() bool { return f.cltbl != nil }

// Seek moves the read position to ofs, clamped to the file size.
func (f *File) Seek(ofs int64) error {
	if f.fs == nil {
		return ResultInvalidObject
	}
	if ofs < 0 {
		return ResultInvalidParameter
	}
	if ofs > int64(f.size) {
		ofs = int64(f.size)
	}
	pos := uint32(ofs)

	if f.cltbl != nil {
		if pos == 0 {
			f.fptr, f.clust = 0, f.sclust
			return nil
		}
		clst := f.mapCluster(pos - 1)
		if clst == 0 {
			f.fptr, f.clust = 0, f.sclust
			return ResultIntErr
		}
		f.fptr, f.clust = pos, clst
		return nil
	}

	if pos == 0 {
		f.fptr, f.clust = 0, f.sclust
		return nil
	}

	// The walk runs on locals; fptr and clust change together only once
	// it succeeds, so clust stays the cluster of byte fptr-1.
	bcs := uint32(f.fs.geo.ClusterBytes())
	var base, clst uint32
	if f.fptr > 0 && (pos-1)/bcs >= (f.fptr-1)/bcs {
		base = (f.fptr - 1) &^ (bcs - 1)
		clst = f.clust
	} else {
		clst = f.sclust
	}
	rem := pos - base

	if clst != 0 {
		for rem > bcs {
			next, err := f.fs.next(clst)
			if err == nil && next == endOfChain {
				err = ResultIntErr
			}
			if err != nil {
				f.fptr, f.clust = 0, f.sclust
				return err
			}
			clst = next
			rem -= bcs
		}
	}
	f.fptr, f.clust = pos, clst
	return nil
}

// mapCluster looks up the cluster holding byte ofs in the link map.
// It returns 0 when ofs lies beyond the mapped fragments.
func (f *File) mapCluster(ofs uint32) uint32 {
	cl := ofs / SectorSize / f.fs.geo.ClusterSize
	tbl := f.cltbl[1:]
	for len(tbl) > 0 {
		ncl := tbl[0]
		if ncl == 0 || len(tbl) < 2 {
			return 0
		}
		if cl < ncl {
			return cl + tbl[1]
		}
		cl -= ncl
		tbl = tbl[2:]
	}
	return 0
}

// Read reads up to len(p) bytes from the current position.
func (f *File) Read(p []byte) (int, error) {
	if f.fs == nil {
		return 0, ResultInvalidObject
	}
	remain := f.size - f.fptr
	if remain == 0 {
		return 0, io.EOF
	}
	if uint32(len(p)) > remain {
		p = p[:remain]
	}

	csize := f.fs.geo.ClusterSize
	n := 0
	for n < len(p) {
		if f.fptr%SectorSize == 0 && (f.fptr/SectorSize)%csize == 0 {
			if err := f.enterCluster(); err != nil {
				return n, err
			}
		}
		sect := f.fs.geo.ClusterToSector(f.clust)
		if sect == InvalidSector {
			return n, ResultIntErr
		}
		sect += (f.fptr / SectorSize) % csize
		if err := f.fs.moveWindow(sect); err != nil {
			return n, err
		}
		off := f.fptr % SectorSize
		c := copy(p[n:], f.fs.win[off:])
		n += c
		f.fptr += uint32(c)
	}
	return n, nil
}

// enterCluster selects the cluster for a read starting on a cluster boundary.
func (f *File) enterCluster() error {
	if f.fptr == 0 {
		f.clust = f.sclust
		return nil
	}
	if f.cltbl != nil {
		clst := f.mapCluster(f.fptr)
		if clst == 0 {
			return ResultIntErr
		}
		f.clust = clst
		return nil
	}
	next, err := f.fs.next(f.clust)
	if err != nil {
		return err
	}
	if next == endOfChain {
		return ResultIntErr
	}
	f.clust = next
	return nil
}

// CreateLinkMap fills tbl with the file's fragment map and attaches it.
// On entry tbl[0] holds the table capacity in items. On return tbl[0]
// holds the number of items required. When the capacity is too small the
// table is left detached and ResultNotEnoughCore is returned.
func (f *File) CreateLinkMap(tbl []uint32) error {
	if f.fs == nil {
		return ResultInvalidObject
	}
	if len(tbl) == 0 {
		return ResultInvalidParameter
	}
	tlen := tbl[0]
	if tlen > uint32(len(tbl)) {
		tlen = uint32(len(tbl))
	}

	ulen := uint32(2)
	idx := 1
	cl := f.sclust
	if cl != 0 {
		for {
			tcl, ncl := cl, uint32(0)
			ulen += 2
			for {
				pcl := cl
				ncl++
				next, err := f.fs.next(cl)
				if err != nil {
					return err
				}
				cl = next
				if cl != pcl+1 {
					break
				}
			}
			if ulen <= tlen {
				tbl[idx], tbl[idx+1] = ncl, tcl
				idx += 2
			}
			if cl == endOfChain {
				break
			}
		}
	}

	tbl[0] = ulen
	if ulen > tlen {
		return ResultNotEnoughCore
	}
	tbl[idx] = 0
	f.cltbl = tbl
	return nil
}

// DetachLinkMap drops any attached link map; seeks walk the chain again.
func (f *File) DetachLinkMap() {
	f.cltbl = nil
}

// Close releases the file handle. The link map is detached.
func (f *File) Close() error {
	if f.fs == nil {
		return fmt.Errorf("close %s: %w", f.name, ResultInvalidObject)
	}
	f.fs = nil
	f.cltbl = nil
	return nil
}
