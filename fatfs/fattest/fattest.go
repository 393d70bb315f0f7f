// Package fattest builds small FAT16 and FAT32 volumes in memory for tests.
//
// A Builder collects directories and files, then lays them out in
// insertion order on a sparse [fatfs.MemoryDevice]. Files can be split
// into fragments so link-map code paths get exercised.
package fattest

import (
	"encoding/binary"
	"fmt"
	"path"
	"strings"
	"unicode/utf16"

	"github.com/ardnew/sdcbridge/fatfs"
)

// Default layout parameters.
const (
	DefaultFAT16Clusters = 5000
	DefaultFAT32Clusters = 66000
	DefaultRootEntries   = 512
	PartitionStart       = 63
)

// Options configures a volume.
type Options struct {
	Type        fatfs.Type // TypeFAT16 or TypeFAT32; defaults to FAT16
	ClusterSize uint32     // Sectors per cluster; defaults to 1
	Clusters    uint32     // Data clusters; defaults per type
	Partitioned bool       // Wrap the volume in an MBR partition
	Label       string     // Volume label entry written to the root
}

// FileOption adjusts a file entry.
type FileOption func(*node)

// Attr sets extra attribute bits on the entry.
func Attr(a fatfs.Attr) FileOption {
	return func(n *node) { n.attr |= a }
}

// Fragment leaves a free cluster after every run of n clusters.
func Fragment(n int) FileOption {
	return func(n2 *node) { n2.run = n }
}

type node struct {
	name     string
	attr     fatfs.Attr
	data     []byte
	run      int
	children []*node
	clusters []uint32
}

func (n *node) isDir() bool { return n.attr&fatfs.AttrDir != 0 }

// Builder accumulates a directory tree.
type Builder struct {
	opts  Options
	root  *node
	nodes map[string]*node

	dev      *fatfs.MemoryDevice
	base     uint32
	fatBase  uint32
	fatSize  uint32
	rootBase uint32
	data     uint32
	nextFree uint32
	fat      map[uint32]uint32
}

// New returns a builder for an empty volume.
func New(opts Options) *Builder {
	if opts.Type == 0 {
		opts.Type = fatfs.TypeFAT16
	}
	if opts.ClusterSize == 0 {
		opts.ClusterSize = 1
	}
	if opts.Clusters == 0 {
		opts.Clusters = DefaultFAT16Clusters
		if opts.Type == fatfs.TypeFAT32 {
			opts.Clusters = DefaultFAT32Clusters
		}
	}
	root := &node{name: "/", attr: fatfs.AttrDir}
	return &Builder{
		opts:  opts,
		root:  root,
		nodes: map[string]*node{"/": root},
		fat:   make(map[uint32]uint32),
	}
}

func clean(p string) string {
	return path.Clean("/" + p)
}

func (b *Builder) parent(p string) (*node, error) {
	dir := path.Dir(p)
	parent, ok := b.nodes[strings.ToLower(dir)]
	if !ok {
		return nil, fmt.Errorf("fattest: no directory %q", dir)
	}
	return parent, nil
}

func (b *Builder) add(p string, n *node) error {
	p = clean(p)
	key := strings.ToLower(p)
	if _, ok := b.nodes[key]; ok {
		return fmt.Errorf("fattest: %q exists", p)
	}
	parent, err := b.parent(p)
	if err != nil {
		return err
	}
	n.name = path.Base(p)
	parent.children = append(parent.children, n)
	b.nodes[key] = n
	return nil
}

// Mkdir adds a directory. Its parent must exist.
func (b *Builder) Mkdir(p string, opts ...FileOption) error {
	n := &node{attr: fatfs.AttrDir}
	for _, opt := range opts {
		opt(n)
	}
	return b.add(p, n)
}

// AddFile adds a regular file holding data.
func (b *Builder) AddFile(p string, data []byte, opts ...FileOption) error {
	n := &node{attr: fatfs.AttrArchive, data: data}
	for _, opt := range opts {
		opt(n)
	}
	return b.add(p, n)
}

// Clusters returns the cluster chain of an entry after Build.
func (b *Builder) Clusters(p string) []uint32 {
	if n, ok := b.nodes[strings.ToLower(clean(p))]; ok {
		return n.clusters
	}
	return nil
}

// Geometry returns the data-area geometry the volume is built with.
func (b *Builder) Geometry() fatfs.Geometry {
	b.layout()
	return fatfs.Geometry{
		ClusterSize: b.opts.ClusterSize,
		DataStart:   b.data,
		Entries:     b.opts.Clusters + 2,
	}
}

func (b *Builder) entryBytes() uint32 {
	if b.opts.Type == fatfs.TypeFAT32 {
		return 4
	}
	return 2
}

func (b *Builder) reserved() uint32 {
	if b.opts.Type == fatfs.TypeFAT32 {
		return 32
	}
	return 1
}

func (b *Builder) rootSectors() uint32 {
	if b.opts.Type == fatfs.TypeFAT32 {
		return 0
	}
	return DefaultRootEntries * 32 / fatfs.SectorSize
}

func (b *Builder) layout() {
	if b.opts.Partitioned {
		b.base = PartitionStart
	}
	b.fatSize = ((b.opts.Clusters+2)*b.entryBytes() + fatfs.SectorSize - 1) / fatfs.SectorSize
	b.fatBase = b.base + b.reserved()
	b.rootBase = b.fatBase + 2*b.fatSize
	b.data = b.rootBase + b.rootSectors()
}

func (b *Builder) totalSectors() uint32 {
	return b.data - b.base + b.opts.Clusters*b.opts.ClusterSize
}

// Build lays out the tree and returns the device.
func (b *Builder) Build() (*fatfs.MemoryDevice, error) {
	b.layout()
	b.dev = fatfs.NewMemoryDevice(b.base + b.totalSectors())
	b.nextFree = 2
	clear(b.fat)

	if b.opts.Partitioned {
		if err := b.writeMBR(); err != nil {
			return nil, err
		}
	}

	if b.opts.Type == fatfs.TypeFAT32 {
		b.root.clusters = b.alloc(b.dirClusters(b.root), 0)
	}
	if err := b.place(b.root); err != nil {
		return nil, err
	}
	if err := b.writeDir(b.root, nil); err != nil {
		return nil, err
	}
	if err := b.writeBoot(); err != nil {
		return nil, err
	}
	if err := b.writeFAT(); err != nil {
		return nil, err
	}
	return b.dev, nil
}

// place allocates clusters depth-first in insertion order and writes file data.
func (b *Builder) place(dir *node) error {
	for _, n := range dir.children {
		if n.isDir() {
			n.clusters = b.alloc(b.dirClusters(n), 0)
			if err := b.place(n); err != nil {
				return err
			}
			continue
		}
		cbytes := b.opts.ClusterSize * fatfs.SectorSize
		count := (uint32(len(n.data)) + cbytes - 1) / cbytes
		n.clusters = b.alloc(count, n.run)
		for i, c := range n.clusters {
			end := min(uint32(len(n.data)), uint32(i+1)*cbytes)
			if _, err := b.dev.WriteAt(n.data[uint32(i)*cbytes:end], b.clusterOffset(c)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) clusterOffset(c uint32) int64 {
	return int64(b.data+(c-2)*b.opts.ClusterSize) * fatfs.SectorSize
}

// alloc takes count clusters, skipping one after every run clusters.
func (b *Builder) alloc(count uint32, run int) []uint32 {
	if count == 0 {
		return nil
	}
	chain := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		if run > 0 && i > 0 && i%uint32(run) == 0 {
			b.nextFree++
		}
		chain = append(chain, b.nextFree)
		b.nextFree++
	}
	for i := 0; i < len(chain)-1; i++ {
		b.fat[chain[i]] = chain[i+1]
	}
	b.fat[chain[len(chain)-1]] = 0x0FFFFFFF
	return chain
}

// dirRecords builds the raw entries of a directory, including dot entries.
func (b *Builder) dirRecords(dir *node, parent *node) [][]byte {
	var recs [][]byte
	if dir == b.root {
		if b.opts.Label != "" {
			ent := make([]byte, 32)
			copy(ent, padName(strings.ToUpper(b.opts.Label), 11))
			ent[11] = byte(fatfs.AttrVolume)
			recs = append(recs, ent)
		}
	} else {
		var up uint32
		if parent != nil && parent != b.root {
			up = firstCluster(parent)
		}
		recs = append(recs, rawEntry([]byte(".          "), fatfs.AttrDir, 0, firstCluster(dir), 0))
		recs = append(recs, rawEntry([]byte("..         "), fatfs.AttrDir, 0, up, 0))
	}

	used := make(map[string]bool)
	for _, n := range dir.children {
		sfn, ntres, lfn := shortName(n.name, used)
		if lfn {
			recs = append(recs, lfnEntries(n.name, fatfs.SFNChecksum(sfn))...)
		}
		recs = append(recs, rawEntry(sfn, n.attr, ntres, firstCluster(n), uint32(len(n.data))))
	}
	return recs
}

func firstCluster(n *node) uint32 {
	if len(n.clusters) > 0 {
		return n.clusters[0]
	}
	return 0
}

// dirClusters sizes a directory, leaving room for an end marker.
func (b *Builder) dirClusters(dir *node) uint32 {
	recs := len(b.dirRecords(dir, nil))
	per := b.opts.ClusterSize * fatfs.SectorSize / 32
	n := (uint32(recs) + 1 + per - 1) / per
	return max(n, 1)
}

func (b *Builder) writeDir(dir *node, parent *node) error {
	recs := b.dirRecords(dir, parent)
	if dir == b.root && b.opts.Type == fatfs.TypeFAT16 {
		if len(recs) >= DefaultRootEntries {
			return fmt.Errorf("fattest: root directory full")
		}
		for i, r := range recs {
			if _, err := b.dev.WriteAt(r, int64(b.rootBase)*fatfs.SectorSize+int64(i)*32); err != nil {
				return err
			}
		}
	} else {
		per := int(b.opts.ClusterSize * fatfs.SectorSize / 32)
		for i, r := range recs {
			off := b.clusterOffset(dir.clusters[i/per]) + int64(i%per)*32
			if _, err := b.dev.WriteAt(r, off); err != nil {
				return err
			}
		}
	}
	for _, n := range dir.children {
		if n.isDir() {
			if err := b.writeDir(n, dir); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) writeBoot() error {
	sec := make([]byte, fatfs.SectorSize)
	sec[0], sec[1], sec[2] = 0xEB, 0x3C, 0x90
	copy(sec[3:11], "FATTEST ")
	binary.LittleEndian.PutUint16(sec[11:], fatfs.SectorSize)
	sec[13] = byte(b.opts.ClusterSize)
	binary.LittleEndian.PutUint16(sec[14:], uint16(b.reserved()))
	sec[16] = 2
	sec[21] = 0xF8
	binary.LittleEndian.PutUint32(sec[28:], b.base)

	total := b.totalSectors()
	if b.opts.Type == fatfs.TypeFAT32 {
		binary.LittleEndian.PutUint32(sec[32:], total)
		binary.LittleEndian.PutUint32(sec[36:], b.fatSize)
		binary.LittleEndian.PutUint32(sec[44:], b.root.clusters[0])
		binary.LittleEndian.PutUint16(sec[48:], 1)
		binary.LittleEndian.PutUint16(sec[50:], 6)
		sec[66] = 0x29
		copy(sec[71:82], padName("NO NAME", 11))
		copy(sec[82:90], "FAT32   ")
	} else {
		binary.LittleEndian.PutUint16(sec[17:], DefaultRootEntries)
		if total <= 0xFFFF {
			binary.LittleEndian.PutUint16(sec[19:], uint16(total))
		} else {
			binary.LittleEndian.PutUint32(sec[32:], total)
		}
		binary.LittleEndian.PutUint16(sec[22:], uint16(b.fatSize))
		sec[38] = 0x29
		copy(sec[43:54], padName("NO NAME", 11))
		copy(sec[54:62], "FAT16   ")
	}
	sec[510], sec[511] = 0x55, 0xAA
	_, err := b.dev.WriteAt(sec, int64(b.base)*fatfs.SectorSize)
	return err
}

func (b *Builder) writeFAT() error {
	eb := b.entryBytes()
	put := func(c, v uint32) error {
		buf := make([]byte, eb)
		if eb == 2 {
			if v == 0x0FFFFFFF {
				v = 0xFFFF
			}
			binary.LittleEndian.PutUint16(buf, uint16(v))
		} else {
			binary.LittleEndian.PutUint32(buf, v)
		}
		for copyIdx := uint32(0); copyIdx < 2; copyIdx++ {
			off := int64(b.fatBase+copyIdx*b.fatSize)*fatfs.SectorSize + int64(c*eb)
			if _, err := b.dev.WriteAt(buf, off); err != nil {
				return err
			}
		}
		return nil
	}
	if err := put(0, 0x0FFFFFF8); err != nil {
		return err
	}
	if err := put(1, 0x0FFFFFFF); err != nil {
		return err
	}
	for c, v := range b.fat {
		if err := put(c, v); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) writeMBR() error {
	sec := make([]byte, fatfs.SectorSize)
	entry := sec[446:]
	entry[4] = 0x0C
	if b.opts.Type == fatfs.TypeFAT16 {
		entry[4] = 0x06
	}
	binary.LittleEndian.PutUint32(entry[8:], b.base)
	binary.LittleEndian.PutUint32(entry[12:], b.totalSectors())
	sec[510], sec[511] = 0x55, 0xAA
	_, err := b.dev.WriteAt(sec, 0)
	return err
}

func rawEntry(name []byte, attr fatfs.Attr, ntres byte, clust, size uint32) []byte {
	ent := make([]byte, 32)
	copy(ent[0:11], name)
	ent[11] = byte(attr)
	ent[12] = ntres
	binary.LittleEndian.PutUint16(ent[20:], uint16(clust>>16))
	binary.LittleEndian.PutUint16(ent[26:], uint16(clust))
	binary.LittleEndian.PutUint32(ent[28:], size)
	return ent
}

func padName(s string, n int) []byte {
	b := []byte(strings.Repeat(" ", n))
	copy(b, s)
	return b
}

const sfnChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789$%'-_@~`!(){}^#&"

// shortName returns the 8.3 entry name for name, the NT case flags, and
// whether long-name entries are needed.
func shortName(name string, used map[string]bool) ([]byte, byte, bool) {
	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		base, ext = name[:i], name[i+1:]
	}

	fits := len(base) >= 1 && len(base) <= 8 && len(ext) <= 3 &&
		validSFN(strings.ToUpper(base)) && validSFN(strings.ToUpper(ext))
	if fits {
		var ntres byte
		caseOK := true
		for _, part := range []struct {
			s    string
			flag byte
		}{{base, 0x08}, {ext, 0x10}} {
			switch part.s {
			case strings.ToUpper(part.s):
			case strings.ToLower(part.s):
				ntres |= part.flag
			default:
				caseOK = false
			}
		}
		sfn := padName(strings.ToUpper(base), 8)
		sfn = append(sfn, padName(strings.ToUpper(ext), 3)...)
		if caseOK && !used[string(sfn)] {
			used[string(sfn)] = true
			return sfn, ntres, false
		}
	}

	basis := sanitize(base)
	if basis == "" {
		basis = "FILE"
	}
	ext = sanitize(ext)
	if len(ext) > 3 {
		ext = ext[:3]
	}
	for seq := 1; ; seq++ {
		tail := fmt.Sprintf("~%d", seq)
		stem := basis
		if len(stem)+len(tail) > 8 {
			stem = stem[:8-len(tail)]
		}
		sfn := padName(stem+tail, 8)
		sfn = append(sfn, padName(ext, 3)...)
		if !used[string(sfn)] {
			used[string(sfn)] = true
			return sfn, 0, true
		}
	}
}

func validSFN(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(sfnChars, r) {
			return false
		}
	}
	return true
}

func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch {
		case r == ' ' || r == '.':
		case strings.ContainsRune(sfnChars, r):
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// lfnEntries returns the long-name entries for name in on-disk order.
func lfnEntries(name string, sum uint8) [][]byte {
	chars := utf16.Encode([]rune(name))
	count := (len(chars) + 12) / 13
	padded := make([]uint16, count*13)
	for i := range padded {
		switch {
		case i < len(chars):
			padded[i] = chars[i]
		case i == len(chars):
			padded[i] = 0
		default:
			padded[i] = 0xFFFF
		}
	}

	offsets := [13]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}
	recs := make([][]byte, 0, count)
	for ord := count; ord >= 1; ord-- {
		ent := make([]byte, 32)
		ent[0] = byte(ord)
		if ord == count {
			ent[0] |= 0x40
		}
		ent[11] = 0x0F
		ent[13] = sum
		for i, o := range offsets {
			binary.LittleEndian.PutUint16(ent[o:], padded[(ord-1)*13+i])
		}
		recs = append(recs, ent)
	}
	return recs
}
