package fatfs

// InvalidSector is returned by ClusterToSector for clusters outside the volume.
const InvalidSector = 0

// Geometry describes the data area of a mounted volume. It is fixed at
// mount time.
type Geometry struct {
	ClusterSize uint32 // Sectors per cluster
	DataStart   uint32 // First sector of cluster 2
	Entries     uint32 // Number of FAT entries (clusters + 2)
}

// ClusterToSector returns the first physical sector of cluster c, or
// InvalidSector if c is not in [2, Entries).
func (g Geometry) ClusterToSector(c uint32) uint32 {
	c -= 2
	if g.Entries < 2 || c >= g.Entries-2 {
		return InvalidSector
	}
	return g.DataStart + g.ClusterSize*c
}

// ClusterBytes returns the size of a cluster in bytes.
func (g Geometry) ClusterBytes() int64 {
	return int64(g.ClusterSize) * SectorSize
}
