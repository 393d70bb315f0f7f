package fatfs

import "testing"

func TestClusterToSector(t *testing.T) {
	geo := Geometry{ClusterSize: 4, DataStart: 100, Entries: 10}

	tests := []struct {
		name    string
		cluster uint32
		want    uint32
	}{
		{"first data cluster", 2, 100},
		{"third data cluster", 4, 108},
		{"last cluster", 9, 128},
		{"past end", 10, InvalidSector},
		{"cluster zero", 0, InvalidSector},
		{"cluster one", 1, InvalidSector},
		{"max value", 0xFFFFFFFF, InvalidSector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := geo.ClusterToSector(tt.cluster); got != tt.want {
				t.Errorf("ClusterToSector(%d) = %d, want %d", tt.cluster, got, tt.want)
			}
		})
	}
}

func TestClusterToSectorEmptyGeometry(t *testing.T) {
	var geo Geometry
	for _, c := range []uint32{0, 1, 2, 3} {
		if got := geo.ClusterToSector(c); got != InvalidSector {
			t.Errorf("ClusterToSector(%d) = %d, want %d", c, got, InvalidSector)
		}
	}
}

func TestClusterBytes(t *testing.T) {
	geo := Geometry{ClusterSize: 8}
	if got := geo.ClusterBytes(); got != 4096 {
		t.Errorf("ClusterBytes() = %d, want 4096", got)
	}
}

func TestResultError(t *testing.T) {
	tests := []struct {
		result Result
		want   string
	}{
		{ResultOK, "fatfs: ok"},
		{ResultNoFile, "fatfs: no file"},
		{ResultNotEnoughCore, "fatfs: not enough core"},
		{ResultInvalidParameter, "fatfs: invalid parameter"},
		{Result(99), "fatfs: unknown result"},
	}

	for _, tt := range tests {
		if got := tt.result.Error(); got != tt.want {
			t.Errorf("Result(%d).Error() = %q, want %q", int(tt.result), got, tt.want)
		}
	}
}

func TestNotEnoughCoreCode(t *testing.T) {
	if ResultNotEnoughCore != 17 {
		t.Errorf("ResultNotEnoughCore = %d, want 17", int(ResultNotEnoughCore))
	}
}

func TestSFNChecksum(t *testing.T) {
	// "HARDDI~1HD " as produced for "Harddisk Image.hd".
	name := []byte("HARDDI~1HD ")
	var want uint8
	for _, c := range name {
		want = ((want & 1) << 7) + (want >> 1) + c
	}
	if got := SFNChecksum(name); got != want {
		t.Errorf("SFNChecksum() = %#02x, want %#02x", got, want)
	}
}

func TestDecodeSFN(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		ntres byte
		want  string
	}{
		{"upper", "DISK_A  ST ", 0, "DISK_A.ST"},
		{"lower base", "DISK_A  ST ", ntresLowBase, "disk_a.ST"},
		{"lower both", "DISK_A  ST ", ntresLowBase | ntresLowExt, "disk_a.st"},
		{"no extension", "GAMES      ", 0, "GAMES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ent := make([]byte, dirEntrySize)
			copy(ent, tt.raw)
			ent[dirNTres] = tt.ntres
			if got := decodeSFN(ent); got != tt.want {
				t.Errorf("decodeSFN() = %q, want %q", got, tt.want)
			}
		})
	}
}
