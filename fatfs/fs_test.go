package fatfs_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/ardnew/sdcbridge/fatfs"
	"github.com/ardnew/sdcbridge/fatfs/fattest"
)

// failingDevice fails every read.
type failingDevice struct{}

func (failingDevice) ReadSector(uint32, []byte) error { return io.ErrUnexpectedEOF }

func pattern(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i/fatfs.SectorSize) ^ seed ^ byte(i)
	}
	return data
}

func mustBuild(t *testing.T, b *fattest.Builder) *fatfs.FS {
	t.Helper()
	dev, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	fsys, err := fatfs.Mount(dev)
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	return fsys
}

func TestMount(t *testing.T) {
	tests := []struct {
		name string
		opts fattest.Options
	}{
		{"FAT16", fattest.Options{Type: fatfs.TypeFAT16}},
		{"FAT16 4-sector clusters", fattest.Options{Type: fatfs.TypeFAT16, ClusterSize: 4}},
		{"FAT32", fattest.Options{Type: fatfs.TypeFAT32}},
		{"FAT16 partitioned", fattest.Options{Type: fatfs.TypeFAT16, Partitioned: true}},
		{"FAT32 partitioned", fattest.Options{Type: fatfs.TypeFAT32, Partitioned: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := fattest.New(tt.opts)
			fsys := mustBuild(t, b)

			if fsys.Type() != tt.opts.Type {
				t.Errorf("Type() = %v, want %v", fsys.Type(), tt.opts.Type)
			}
			if got, want := fsys.Geometry(), b.Geometry(); got != want {
				t.Errorf("Geometry() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestMountErrors(t *testing.T) {
	t.Run("blank device", func(t *testing.T) {
		_, err := fatfs.Mount(fatfs.NewMemoryDevice(64))
		if !errors.Is(err, fatfs.ResultNoFilesystem) {
			t.Errorf("Mount() error = %v, want %v", err, fatfs.ResultNoFilesystem)
		}
	})

	t.Run("read failure", func(t *testing.T) {
		_, err := fatfs.Mount(failingDevice{})
		if !errors.Is(err, fatfs.ResultDiskErr) {
			t.Errorf("Mount() error = %v, want %v", err, fatfs.ResultDiskErr)
		}
	})

	t.Run("FAT12 rejected", func(t *testing.T) {
		dev, err := fattest.New(fattest.Options{Clusters: 1000}).Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if _, err := fatfs.Mount(dev); !errors.Is(err, fatfs.ResultNoFilesystem) {
			t.Errorf("Mount() error = %v, want %v", err, fatfs.ResultNoFilesystem)
		}
	})
}

func TestTypeString(t *testing.T) {
	if got := fatfs.TypeFAT16.String(); got != "FAT16" {
		t.Errorf("String() = %q, want FAT16", got)
	}
	if got := fatfs.TypeFAT32.String(); got != "FAT32" {
		t.Errorf("String() = %q, want FAT32", got)
	}
}

func TestMemoryDevice(t *testing.T) {
	dev := fatfs.NewMemoryDevice(4)
	buf := make([]byte, fatfs.SectorSize)

	if err := dev.ReadSector(1, buf); err != nil {
		t.Fatalf("ReadSector() error = %v", err)
	}
	if !bytes.Equal(buf, make([]byte, fatfs.SectorSize)) {
		t.Error("unwritten sector is not zero")
	}

	data := pattern(700, 0x5A)
	if _, err := dev.WriteAt(data, 300); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	got := make([]byte, len(data))
	if _, err := dev.ReadAt(got, 300); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("ReadAt() does not match WriteAt()")
	}

	if err := dev.ReadSector(4, buf); err != io.EOF {
		t.Errorf("ReadSector(4) error = %v, want io.EOF", err)
	}
	if err := dev.ReadSector(0, buf[:10]); err != io.ErrShortBuffer {
		t.Errorf("ReadSector(short) error = %v, want io.ErrShortBuffer", err)
	}
}
