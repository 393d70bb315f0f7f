package fatfs

import (
	"encoding/binary"
	"io"
	"strings"
	"unicode/utf16"
)

// Attr holds directory entry attribute bits.
type Attr uint8

// Attribute bits.
const (
	AttrReadOnly Attr = 0x01
	AttrHidden   Attr = 0x02
	AttrSystem   Attr = 0x04
	AttrVolume   Attr = 0x08
	AttrDir      Attr = 0x10
	AttrArchive  Attr = 0x20
	attrLFN      Attr = 0x0F
)

// Directory entry layout.
const (
	dirEntrySize = 32
	dirName      = 0
	dirAttr      = 11
	dirNTres     = 12
	dirFstClusHI = 20
	dirFstClusLO = 26
	dirFileSize  = 28
	deletedMark  = 0xE5
	lfnLast      = 0x40
	lfnChecksum  = 13
	ntresLowBase = 0x08
	ntresLowExt  = 0x10
)

// FileInfo describes a directory entry.
type FileInfo struct {
	Name    string
	Size    int64
	Attr    Attr
	Cluster uint32 // First cluster
}

// IsDir reports whether the entry is a directory.
func (fi FileInfo) IsDir() bool { return fi.Attr&AttrDir != 0 }

// IsHidden reports whether the entry is hidden or a system entry.
func (fi FileInfo) IsHidden() bool { return fi.Attr&(AttrHidden|AttrSystem) != 0 }

// Dir iterates the entries of a directory.
type Dir struct {
	fs     *FS
	sclust uint32 // 0 for the FAT16 root directory
	clust  uint32 // Current cluster
	sect   uint32 // Current sector
	ofs    uint32 // Byte offset of the next entry
	done   bool
}

// OpenDir opens the directory at path. Both "" and "/" name the root.
func (fsys *FS) OpenDir(path string) (*Dir, error) {
	info, err := fsys.stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ResultNoPath
	}
	return fsys.newDir(info.Cluster)
}

// Stat returns the entry for path.
func (fsys *FS) Stat(path string) (FileInfo, error) {
	return fsys.stat(path)
}

// newDir positions a directory iterator at its first entry.
func (fsys *FS) newDir(sclust uint32) (*Dir, error) {
	if fsys.typ == TypeFAT32 && sclust == 0 {
		sclust = fsys.dirBase
	}
	d := &Dir{fs: fsys, sclust: sclust, clust: sclust}
	if sclust == 0 {
		d.sect = fsys.dirBase
	} else {
		d.sect = fsys.geo.ClusterToSector(sclust)
		if d.sect == InvalidSector {
			return nil, ResultIntErr
		}
	}
	return d, nil
}

// advance moves to the next entry, following the cluster chain.
func (d *Dir) advance() error {
	d.ofs += dirEntrySize
	if d.ofs%SectorSize != 0 {
		return nil
	}
	d.sect++

	if d.sclust == 0 {
		if d.ofs/dirEntrySize >= d.fs.rootEnts {
			d.done = true
		}
		return nil
	}

	if (d.ofs/SectorSize)%d.fs.geo.ClusterSize == 0 {
		next, err := d.fs.next(d.clust)
		if err != nil {
			return err
		}
		if next == endOfChain {
			d.done = true
			return nil
		}
		d.clust = next
		d.sect = d.fs.geo.ClusterToSector(next)
	}
	return nil
}

// entry returns the raw 32-byte entry at the current position.
func (d *Dir) entry() ([]byte, error) {
	if err := d.fs.moveWindow(d.sect); err != nil {
		return nil, err
	}
	off := d.ofs % SectorSize
	return d.fs.win[off : off+dirEntrySize], nil
}

// Next returns the next visible entry. Dot entries and volume labels are
// skipped. It returns io.EOF after the last entry.
func (d *Dir) Next() (FileInfo, error) {
	var (
		lfn    [256]uint16
		lfnOrd uint8 // Next expected LFN sequence number; 0 when none pending
		lfnSum uint8
		lfnLen int
	)

	for !d.done {
		ent, err := d.entry()
		if err != nil {
			return FileInfo{}, err
		}
		c := ent[dirName]
		if c == 0 {
			d.done = true
			break
		}
		attr := Attr(ent[dirAttr])

		switch {
		case c == deletedMark:
			lfnOrd = 0

		case attr&0x3F == attrLFN:
			ord := c &^ lfnLast
			if c&lfnLast != 0 {
				lfnSum = ent[lfnChecksum]
				lfnLen = int(ord) * 13
				lfnOrd = ord
				clear(lfn[:])
			}
			if lfnOrd == 0 || ord != lfnOrd || ent[lfnChecksum] != lfnSum || ord == 0 || int(ord)*13 > len(lfn) {
				lfnOrd = 0
				break
			}
			pickLFN(lfn[(int(ord)-1)*13:], ent)
			lfnOrd--
			if lfnOrd == 0 {
				// All parts collected; mark with ord 0xFF until the SFN arrives.
				lfnOrd = 0xFF
			}

		case attr&AttrVolume != 0 || c == '.':
			lfnOrd = 0

		default:
			info := FileInfo{
				Attr: attr,
				Size: int64(binary.LittleEndian.Uint32(ent[dirFileSize:])),
				Cluster: uint32(binary.LittleEndian.Uint16(ent[dirFstClusHI:]))<<16 |
					uint32(binary.LittleEndian.Uint16(ent[dirFstClusLO:])),
			}
			if lfnOrd == 0xFF && sfnChecksum(ent[:11]) == lfnSum {
				info.Name = decodeLFN(lfn[:lfnLen])
			} else {
				info.Name = decodeSFN(ent)
			}
			if err := d.advance(); err != nil {
				return FileInfo{}, err
			}
			return info, nil
		}

		if err := d.advance(); err != nil {
			return FileInfo{}, err
		}
	}
	return FileInfo{}, io.EOF
}

// Close releases the directory iterator.
func (d *Dir) Close() error {
	d.done = true
	d.fs = nil
	return nil
}

// pickLFN copies the 13 UTF-16 characters of an LFN entry into dst.
func pickLFN(dst []uint16, ent []byte) {
	offsets := [13]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}
	for i, o := range offsets {
		dst[i] = binary.LittleEndian.Uint16(ent[o:])
	}
}

// decodeLFN converts a collected long name, stopping at the terminator.
func decodeLFN(name []uint16) string {
	for i, c := range name {
		if c == 0 || c == 0xFFFF {
			name = name[:i]
			break
		}
	}
	return string(utf16.Decode(name))
}

// decodeSFN formats an 8.3 name, honoring the NT lower-case flags.
func decodeSFN(ent []byte) string {
	base := strings.TrimRight(string(ent[0:8]), " ")
	ext := strings.TrimRight(string(ent[8:11]), " ")
	if base != "" && base[0] == 0x05 {
		base = "\xE5" + base[1:]
	}
	if ent[dirNTres]&ntresLowBase != 0 {
		base = strings.ToLower(base)
	}
	if ent[dirNTres]&ntresLowExt != 0 {
		ext = strings.ToLower(ext)
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// sfnChecksum computes the LFN checksum of an 11-byte short name.
func sfnChecksum(name []byte) uint8 {
	var sum uint8
	for _, c := range name[:11] {
		sum = (sum >> 1) + (sum << 7) + c
	}
	return sum
}

// SFNChecksum exposes the short-name checksum for volume builders.
func SFNChecksum(name []byte) uint8 {
	return sfnChecksum(name)
}

// stat resolves path to its directory entry. The root has no entry of
// its own and is reported as a directory with cluster 0.
func (fsys *FS) stat(path string) (FileInfo, error) {
	info := FileInfo{Name: "/", Attr: AttrDir}

	for _, name := range strings.Split(path, "/") {
		if name == "" || name == "." {
			continue
		}
		if !info.IsDir() {
			return FileInfo{}, ResultNoPath
		}
		dir, err := fsys.newDir(info.Cluster)
		if err != nil {
			return FileInfo{}, err
		}
		found := false
		for {
			ent, err := dir.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return FileInfo{}, err
			}
			if strings.EqualFold(ent.Name, name) {
				info = ent
				found = true
				break
			}
		}
		if !found {
			return FileInfo{}, ResultNoFile
		}
	}
	return info, nil
}
