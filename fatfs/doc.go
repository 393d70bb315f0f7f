// Package fatfs implements the read-only filesystem access layer used by
// the bridge to locate disk images on the SD card.
//
// The package reads FAT16 and FAT32 volumes from any [BlockDevice]: the
// card behind the FPGA link, an image file, or memory. It exposes what
// sector translation needs and nothing more:
//
//   - [Geometry] and the cluster-to-sector translation
//   - [File] with a file pointer, the cluster under it, and sequential reads
//   - Cluster link maps for constant-time seeking ([File.CreateLinkMap])
//   - Directory enumeration with long file names
//
// # Cluster Link Maps
//
// A link map is a compact index of a file's cluster chain. The table
// layout is the one FatFs uses:
//
//	tbl[0]           capacity in entries (set by the caller)
//	tbl[1], tbl[2]   length and first cluster of fragment 1
//	...
//	tbl[n]           0 terminates the table
//
// When the table is too small, CreateLinkMap stores the required size in
// tbl[0] and returns [ResultNotEnoughCore], so the caller can grow the
// table and retry.
//
// # Concurrency
//
// An FS and its Files are not safe for concurrent use. Callers serialize
// all access to a mounted volume.
package fatfs
