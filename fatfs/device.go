package fatfs

import (
	"io"
	"os"
	"sync"
)

// SectorSize is the only sector size supported.
const SectorSize = 512

// BlockDevice is the sector-level storage a volume is mounted from.
type BlockDevice interface {
	// ReadSector reads one sector into buf, which holds at least SectorSize bytes.
	ReadSector(sector uint32, buf []byte) error
}

// MemoryDevice is a sparse in-memory block device. Sectors never written
// read as zeros.
type MemoryDevice struct {
	sectors map[uint32][]byte
	count   uint32
	mutex   sync.RWMutex
}

// NewMemoryDevice creates a memory device of count sectors.
func NewMemoryDevice(count uint32) *MemoryDevice {
	return &MemoryDevice{
		sectors: make(map[uint32][]byte),
		count:   count,
	}
}

// SectorCount returns the number of sectors.
func (m *MemoryDevice) SectorCount() uint32 {
	return m.count
}

// ReadSector reads one sector.
func (m *MemoryDevice) ReadSector(sector uint32, buf []byte) error {
	if len(buf) < SectorSize {
		return io.ErrShortBuffer
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if sector >= m.count {
		return io.EOF
	}
	if data, ok := m.sectors[sector]; ok {
		copy(buf, data)
	} else {
		clear(buf[:SectorSize])
	}
	return nil
}

// WriteSector writes one sector.
func (m *MemoryDevice) WriteSector(sector uint32, buf []byte) error {
	if len(buf) < SectorSize {
		return io.ErrShortBuffer
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if sector >= m.count {
		return io.EOF
	}
	data, ok := m.sectors[sector]
	if !ok {
		data = make([]byte, SectorSize)
		m.sectors[sector] = data
	}
	copy(data, buf)
	return nil
}

// ReadAt implements io.ReaderAt over the sector store.
func (m *MemoryDevice) ReadAt(p []byte, off int64) (int, error) {
	var buf [SectorSize]byte
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		if err := m.ReadSector(uint32(pos/SectorSize), buf[:]); err != nil {
			return n, err
		}
		n += copy(p[n:], buf[pos%SectorSize:])
	}
	return n, nil
}

// WriteAt implements io.WriterAt over the sector store.
func (m *MemoryDevice) WriteAt(p []byte, off int64) (int, error) {
	var buf [SectorSize]byte
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		sector := uint32(pos / SectorSize)
		if err := m.ReadSector(sector, buf[:]); err != nil {
			return n, err
		}
		c := copy(buf[pos%SectorSize:], p[n:])
		if err := m.WriteSector(sector, buf[:]); err != nil {
			return n, err
		}
		n += c
	}
	return n, nil
}

// FileDevice is a block device backed by an image file.
type FileDevice struct {
	file  *os.File
	count uint32
	mutex sync.RWMutex
}

// NewFileDevice opens an image file read-only.
func NewFileDevice(path string) (*FileDevice, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &FileDevice{
		file:  file,
		count: uint32(stat.Size() / SectorSize),
	}, nil
}

// SectorCount returns the number of whole sectors in the file.
func (f *FileDevice) SectorCount() uint32 {
	return f.count
}

// ReadSector reads one sector from the file.
func (f *FileDevice) ReadSector(sector uint32, buf []byte) error {
	if len(buf) < SectorSize {
		return io.ErrShortBuffer
	}
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	if f.file == nil {
		return os.ErrClosed
	}
	if sector >= f.count {
		return io.EOF
	}
	_, err := f.file.ReadAt(buf[:SectorSize], int64(sector)*SectorSize)
	return err
}

// ReadAt implements io.ReaderAt.
func (f *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	if f.file == nil {
		return 0, os.ErrClosed
	}
	return f.file.ReadAt(p, off)
}

// Close closes the underlying file.
func (f *FileDevice) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		return err
	}
	return nil
}
