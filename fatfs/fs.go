package fatfs

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/sdcbridge/pkg"
)

// Type identifies the FAT variant of a mounted volume.
type Type uint8

// Supported FAT variants.
const (
	TypeFAT16 Type = 16
	TypeFAT32 Type = 32
)

// Cluster count limits that decide the FAT variant.
const (
	clustMaxFAT12 = 0xFF5
	clustMaxFAT16 = 0xFFF5
	clustMaxFAT32 = 0x0FFFFFF5
)

// Boot sector and BPB offsets.
const (
	bsJmpBoot     = 0
	bpbBytsPerSec = 11
	bpbSecPerClus = 13
	bpbRsvdSecCnt = 14
	bpbNumFATs    = 16
	bpbRootEntCnt = 17
	bpbTotSec16   = 19
	bpbFATSz16    = 22
	bpbTotSec32   = 32
	bpbFATSz32    = 36
	bpbRootClus32 = 44
	bsFilSysType  = 54
	bsFilSysType3 = 82
	bs55AA        = 510
	mbrTable      = 446
	mbrEntrySize  = 16
)

// endOfChain is returned by next for the last cluster of a chain.
const endOfChain = 0xFFFFFFFF

// FS is a mounted FAT volume.
type FS struct {
	dev BlockDevice
	typ Type
	geo Geometry

	volBase  uint32 // First sector of the volume
	fatBase  uint32 // First sector of the first FAT
	dirBase  uint32 // Root directory start sector (FAT16) or cluster (FAT32)
	rootEnts uint32 // Root directory entries (FAT16)

	// Sector window shared by FAT and directory access.
	win      [SectorSize]byte
	winSect  uint32
	winValid bool
}

// Mount reads the volume boot record from dev. If sector 0 holds a
// partition table, the first partition with a FAT volume is used.
func Mount(dev BlockDevice) (*FS, error) {
	fsys := &FS{dev: dev}

	base, err := fsys.findVolume()
	if err != nil {
		return nil, err
	}
	if err := fsys.initFAT(base); err != nil {
		return nil, err
	}

	pkg.LogDebug(pkg.ComponentFS, "volume mounted",
		"type", fsys.typ,
		"base", fsys.volBase,
		"clusterSize", fsys.geo.ClusterSize,
		"dataStart", fsys.geo.DataStart,
		"entries", fsys.geo.Entries)

	return fsys, nil
}

// Geometry returns the data-area geometry.
func (fsys *FS) Geometry() Geometry {
	return fsys.geo
}

// Type returns the FAT variant.
func (fsys *FS) Type() Type {
	return fsys.typ
}

// findVolume returns the first sector of a FAT volume on the device.
func (fsys *FS) findVolume() (uint32, error) {
	switch fsys.checkFS(0) {
	case bootFAT:
		return 0, nil
	case bootDiskErr:
		return 0, ResultDiskErr
	case bootInvalid:
		return 0, ResultNoFilesystem
	}

	// Sector 0 carries a valid signature but no FAT: treat it as an MBR.
	var starts [4]uint32
	for i := range starts {
		entry := fsys.win[mbrTable+i*mbrEntrySize:]
		if entry[4] != 0 {
			starts[i] = binary.LittleEndian.Uint32(entry[8:12])
		}
	}
	for _, start := range starts {
		if start == 0 {
			continue
		}
		switch fsys.checkFS(start) {
		case bootFAT:
			return start, nil
		case bootDiskErr:
			return 0, ResultDiskErr
		}
	}
	return 0, ResultNoFilesystem
}

type bootStatus int

const (
	bootFAT     bootStatus = iota // FAT volume boot record
	bootNotFAT                    // Valid boot sector, not FAT (possibly MBR)
	bootInvalid                   // Not a boot sector
	bootDiskErr                   // Read failure
)

// checkFS classifies the sector at lba.
func (fsys *FS) checkFS(lba uint32) bootStatus {
	if err := fsys.moveWindow(lba); err != nil {
		return bootDiskErr
	}
	if binary.LittleEndian.Uint16(fsys.win[bs55AA:]) != 0xAA55 {
		return bootInvalid
	}
	switch fsys.win[bsJmpBoot] {
	case 0xEB, 0xE9, 0xE8:
		if string(fsys.win[bsFilSysType3:bsFilSysType3+5]) == "FAT32" ||
			string(fsys.win[bsFilSysType:bsFilSysType+3]) == "FAT" {
			return bootFAT
		}
	}
	return bootNotFAT
}

// initFAT parses the BPB of the volume at base, already in the window.
func (fsys *FS) initFAT(base uint32) error {
	w := fsys.win[:]

	if binary.LittleEndian.Uint16(w[bpbBytsPerSec:]) != SectorSize {
		return fmt.Errorf("sector size %d: %w",
			binary.LittleEndian.Uint16(w[bpbBytsPerSec:]), ResultNoFilesystem)
	}

	fasize := uint32(binary.LittleEndian.Uint16(w[bpbFATSz16:]))
	if fasize == 0 {
		fasize = binary.LittleEndian.Uint32(w[bpbFATSz32:])
	}
	nfats := uint32(w[bpbNumFATs])
	if nfats != 1 && nfats != 2 {
		return ResultNoFilesystem
	}
	fasize *= nfats

	csize := uint32(w[bpbSecPerClus])
	if csize == 0 || csize&(csize-1) != 0 {
		return ResultNoFilesystem
	}

	nrootdir := uint32(binary.LittleEndian.Uint16(w[bpbRootEntCnt:]))
	if nrootdir%(SectorSize/32) != 0 {
		return ResultNoFilesystem
	}

	tsect := uint32(binary.LittleEndian.Uint16(w[bpbTotSec16:]))
	if tsect == 0 {
		tsect = binary.LittleEndian.Uint32(w[bpbTotSec32:])
	}

	nrsv := uint32(binary.LittleEndian.Uint16(w[bpbRsvdSecCnt:]))
	if nrsv == 0 {
		return ResultNoFilesystem
	}

	sysect := nrsv + fasize + nrootdir/(SectorSize/32)
	if tsect < sysect {
		return ResultNoFilesystem
	}
	nclst := (tsect - sysect) / csize
	if nclst == 0 {
		return ResultNoFilesystem
	}

	switch {
	case nclst > clustMaxFAT32:
		return ResultNoFilesystem
	case nclst > clustMaxFAT16:
		fsys.typ = TypeFAT32
	case nclst > clustMaxFAT12:
		fsys.typ = TypeFAT16
	default:
		return fmt.Errorf("FAT12: %w", ResultNoFilesystem)
	}

	fsys.volBase = base
	fsys.fatBase = base + nrsv
	fsys.geo = Geometry{
		ClusterSize: csize,
		DataStart:   base + sysect,
		Entries:     nclst + 2,
	}

	if fsys.typ == TypeFAT32 {
		if nrootdir != 0 {
			return ResultNoFilesystem
		}
		fsys.dirBase = binary.LittleEndian.Uint32(w[bpbRootClus32:])
	} else {
		if nrootdir == 0 {
			return ResultNoFilesystem
		}
		fsys.dirBase = fsys.fatBase + fasize
		fsys.rootEnts = nrootdir
	}
	return nil
}

// moveWindow loads sector into the shared window.
func (fsys *FS) moveWindow(sector uint32) error {
	if fsys.winValid && fsys.winSect == sector {
		return nil
	}
	if err := fsys.dev.ReadSector(sector, fsys.win[:]); err != nil {
		fsys.winValid = false
		return fmt.Errorf("read sector %d: %w: %w", sector, err, ResultDiskErr)
	}
	fsys.winSect = sector
	fsys.winValid = true
	return nil
}

// next returns the FAT entry of clst: the following cluster, or
// endOfChain for the last cluster.
func (fsys *FS) next(clst uint32) (uint32, error) {
	if clst < 2 || clst >= fsys.geo.Entries {
		return 0, ResultIntErr
	}

	var val uint32
	switch fsys.typ {
	case TypeFAT16:
		if err := fsys.moveWindow(fsys.fatBase + clst/(SectorSize/2)); err != nil {
			return 0, err
		}
		val = uint32(binary.LittleEndian.Uint16(fsys.win[(clst*2)%SectorSize:]))
		if val >= 0xFFF8 {
			return endOfChain, nil
		}
	case TypeFAT32:
		if err := fsys.moveWindow(fsys.fatBase + clst/(SectorSize/4)); err != nil {
			return 0, err
		}
		val = binary.LittleEndian.Uint32(fsys.win[(clst*4)%SectorSize:]) & 0x0FFFFFFF
		if val >= 0x0FFFFFF8 {
			return endOfChain, nil
		}
	}

	if val < 2 || val >= fsys.geo.Entries {
		return 0, ResultIntErr
	}
	return val, nil
}

// String returns the FAT variant name.
func (t Type) String() string {
	switch t {
	case TypeFAT16:
		return "FAT16"
	case TypeFAT32:
		return "FAT32"
	}
	return "unknown"
}
