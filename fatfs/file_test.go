package fatfs_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/ardnew/sdcbridge/fatfs"
	"github.com/ardnew/sdcbridge/fatfs/fattest"
	"github.com/ardnew/sdcbridge/pkg"
)

func TestFileRead(t *testing.T) {
	for _, typ := range []fatfs.Type{fatfs.TypeFAT16, fatfs.TypeFAT32} {
		t.Run(typ.String(), func(t *testing.T) {
			data := pattern(5000, 0x11)
			b := fattest.New(fattest.Options{Type: typ, ClusterSize: 2})
			if err := b.AddFile("image.st", data, fattest.Fragment(1)); err != nil {
				t.Fatal(err)
			}
			fsys := mustBuild(t, b)

			f, err := fsys.Open("/IMAGE.ST")
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer f.Close()

			if f.Size() != int64(len(data)) {
				t.Errorf("Size() = %d, want %d", f.Size(), len(data))
			}
			got, err := io.ReadAll(f)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Error("file content mismatch")
			}
			if f.Pos() != int64(len(data)) {
				t.Errorf("Pos() = %d, want %d", f.Pos(), len(data))
			}
		})
	}
}

func TestFileOpenErrors(t *testing.T) {
	b := fattest.New(fattest.Options{})
	if err := b.Mkdir("games"); err != nil {
		t.Fatal(err)
	}
	fsys := mustBuild(t, b)

	if _, err := fsys.Open("missing.st"); !errors.Is(err, fatfs.ResultNoFile) {
		t.Errorf("Open(missing) error = %v, want %v", err, fatfs.ResultNoFile)
	}
	if _, err := fsys.Open("games"); !errors.Is(err, fatfs.ResultNoFile) {
		t.Errorf("Open(dir) error = %v, want %v", err, fatfs.ResultNoFile)
	}
}

// fragmentedFile builds a four-cluster file whose clusters are each
// separated by a free cluster.
func fragmentedFile(t *testing.T) (*fatfs.FS, *fatfs.File, []uint32, []byte) {
	t.Helper()
	data := pattern(4*fatfs.SectorSize, 0x33)
	b := fattest.New(fattest.Options{})
	if err := b.AddFile("disk_a.st", data, fattest.Fragment(1)); err != nil {
		t.Fatal(err)
	}
	fsys := mustBuild(t, b)
	f, err := fsys.Open("disk_a.st")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return fsys, f, b.Clusters("disk_a.st"), data
}

func TestFileSeekCluster(t *testing.T) {
	_, f, chain, _ := fragmentedFile(t)
	if len(chain) != 4 {
		t.Fatalf("chain length = %d, want 4", len(chain))
	}

	tests := []struct {
		name string
		ofs  int64
		want uint32
	}{
		{"start", 0, chain[0]},
		{"end of first cluster", 512, chain[0]},
		{"first byte of second cluster", 513, chain[1]},
		{"sector 2 addressed as (2+1)*512", 3 * 512, chain[2]},
		{"backwards", 1024, chain[1]},
		{"last sector", 4 * 512, chain[3]},
		{"clamped past end", 99999, chain[3]},
	}

	for _, mode := range []string{"chain", "link map"} {
		t.Run(mode, func(t *testing.T) {
			if mode == "link map" {
				tbl := make([]uint32, 16)
				tbl[0] = uint32(len(tbl))
				if err := f.CreateLinkMap(tbl); err != nil {
					t.Fatalf("CreateLinkMap() error = %v", err)
				}
				defer f.DetachLinkMap()
			}
			for _, tt := range tests {
				if err := f.Seek(tt.ofs); err != nil {
					t.Fatalf("%s: Seek(%d) error = %v", tt.name, tt.ofs, err)
				}
				if got := f.Cluster(); got != tt.want {
					t.Errorf("%s: Cluster() = %d, want %d", tt.name, got, tt.want)
				}
			}
			if f.Pos() != f.Size() {
				t.Errorf("Pos() = %d after clamped seek, want %d", f.Pos(), f.Size())
			}
		})
	}
}

func TestFileSeekRead(t *testing.T) {
	_, f, _, data := fragmentedFile(t)

	for _, sector := range []int64{3, 0, 2, 1} {
		if err := f.Seek(sector * fatfs.SectorSize); err != nil {
			t.Fatalf("Seek() error = %v", err)
		}
		buf := make([]byte, fatfs.SectorSize)
		if _, err := io.ReadFull(f, buf); err != nil {
			t.Fatalf("ReadFull() error = %v", err)
		}
		want := data[sector*fatfs.SectorSize : (sector+1)*fatfs.SectorSize]
		if !bytes.Equal(buf, want) {
			t.Errorf("sector %d content mismatch", sector)
		}
	}

	if err := f.Seek(-1); !errors.Is(err, fatfs.ResultInvalidParameter) {
		t.Errorf("Seek(-1) error = %v, want %v", err, fatfs.ResultInvalidParameter)
	}
}

func TestCreateLinkMap(t *testing.T) {
	_, f, chain, _ := fragmentedFile(t)

	// Four fragments need 2 + 2*4 items.
	small := make([]uint32, 4)
	small[0] = 4
	err := f.CreateLinkMap(small)
	if !errors.Is(err, fatfs.ResultNotEnoughCore) {
		t.Fatalf("CreateLinkMap(4) error = %v, want %v", err, fatfs.ResultNotEnoughCore)
	}
	if small[0] != 10 {
		t.Errorf("required size = %d, want 10", small[0])
	}
	if f.Linked() {
		t.Error("Linked() = true after failed CreateLinkMap")
	}

	tbl := make([]uint32, small[0])
	tbl[0] = small[0]
	if err := f.CreateLinkMap(tbl); err != nil {
		t.Fatalf("CreateLinkMap(10) error = %v", err)
	}
	if !f.Linked() {
		t.Error("Linked() = false after CreateLinkMap")
	}
	want := []uint32{10, 1, chain[0], 1, chain[1], 1, chain[2], 1, chain[3], 0}
	for i := range want {
		if tbl[i] != want[i] {
			t.Errorf("tbl[%d] = %d, want %d", i, tbl[i], want[i])
		}
	}

	f.DetachLinkMap()
	if f.Linked() {
		t.Error("Linked() = true after DetachLinkMap")
	}
}

func TestCreateLinkMapContiguous(t *testing.T) {
	b := fattest.New(fattest.Options{Type: fatfs.TypeFAT32})
	if err := b.AddFile("harddisk.hd", pattern(10*fatfs.SectorSize, 1)); err != nil {
		t.Fatal(err)
	}
	fsys := mustBuild(t, b)
	f, err := fsys.Open("harddisk.hd")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tbl := make([]uint32, 4)
	tbl[0] = 4
	if err := f.CreateLinkMap(tbl); err != nil {
		t.Fatalf("CreateLinkMap() error = %v", err)
	}
	chain := b.Clusters("harddisk.hd")
	want := []uint32{4, 10, chain[0], 0}
	for i := range want {
		if tbl[i] != want[i] {
			t.Errorf("tbl[%d] = %d, want %d", i, tbl[i], want[i])
		}
	}
}

func TestEmptyFile(t *testing.T) {
	b := fattest.New(fattest.Options{})
	if err := b.AddFile("empty.st", nil); err != nil {
		t.Fatal(err)
	}
	fsys := mustBuild(t, b)
	f, err := fsys.Open("empty.st")
	if err != nil {
		t.Fatal(err)
	}

	if f.Cluster() != 0 {
		t.Errorf("Cluster() = %d, want 0", f.Cluster())
	}
	if _, err := f.Read(make([]byte, 16)); err != io.EOF {
		t.Errorf("Read() error = %v, want io.EOF", err)
	}
	tbl := []uint32{2, 0}
	if err := f.CreateLinkMap(tbl); err != nil {
		t.Errorf("CreateLinkMap() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := f.Close(); !errors.Is(err, fatfs.ResultInvalidObject) {
		t.Errorf("second Close() error = %v, want %v", err, fatfs.ResultInvalidObject)
	}
}

// flakyDevice fails reads with a medium timeout once its budget of
// good reads is spent. A negative budget never fails.
type flakyDevice struct {
	fatfs.BlockDevice
	budget int
}

func (d *flakyDevice) ReadSector(sector uint32, buf []byte) error {
	if d.budget == 0 {
		return fmt.Errorf("card busy: %w", pkg.ErrTimeout)
	}
	if d.budget > 0 {
		d.budget--
	}
	return d.BlockDevice.ReadSector(sector, buf)
}

func TestFileSeekChainError(t *testing.T) {
	const clusters = 600
	b := fattest.New(fattest.Options{})
	if err := b.AddFile("frag.st", make([]byte, clusters*fatfs.SectorSize), fattest.Fragment(1)); err != nil {
		t.Fatal(err)
	}
	mem, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	dev := &flakyDevice{BlockDevice: mem, budget: -1}
	fsys, err := fatfs.Mount(dev)
	if err != nil {
		t.Fatal(err)
	}
	f, err := fsys.Open("frag.st")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	chain := b.Clusters("frag.st")

	if err := f.Seek(10 * fatfs.SectorSize); err != nil {
		t.Fatal(err)
	}

	// The chain spans several FAT sectors; the walk reads one and then
	// times out on the next.
	dev.budget = 1
	err = f.Seek(500 * fatfs.SectorSize)
	if !errors.Is(err, pkg.ErrTimeout) || !errors.Is(err, fatfs.ResultDiskErr) {
		t.Fatalf("Seek() error = %v, want medium timeout disk error", err)
	}
	if f.Pos() != 0 || f.Cluster() != chain[0] {
		t.Errorf("after failed seek Pos() = %d Cluster() = %d, want 0 %d", f.Pos(), f.Cluster(), chain[0])
	}

	dev.budget = -1
	for _, ofs := range []int64{500, 501, 120, 599} {
		if err := f.Seek(ofs * fatfs.SectorSize); err != nil {
			t.Fatalf("Seek(%d) error = %v", ofs*fatfs.SectorSize, err)
		}
		if got, want := f.Cluster(), chain[ofs-1]; got != want {
			t.Errorf("Seek(%d sectors) Cluster() = %d, want %d", ofs, got, want)
		}
	}
}
