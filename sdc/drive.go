package sdc

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/ardnew/sdcbridge/link"
	"github.com/ardnew/sdcbridge/pkg"
)

// Drive identifies a drive slot.
type Drive int

// Drive slots.
const (
	DriveA     Drive = iota // Floppy A:
	DriveB                  // Floppy B:
	DriveACSI0              // ACSI target 0
	DriveACSI1              // ACSI target 1

	NumDrives = 4
)

var driveNames = [NumDrives]string{"A:", "B:", "ACSI0", "ACSI1"}

// String returns the drive name.
func (d Drive) String() string {
	if d.Valid() {
		return driveNames[d]
	}
	return "drive" + strconv.Itoa(int(d))
}

// Valid reports whether d is a registry slot.
func (d Drive) Valid() bool {
	return d >= 0 && d < NumDrives
}

// IsFloppy reports whether d is a floppy slot. The core is told the size
// of images inserted into floppy slots.
func (d Drive) IsFloppy() bool {
	return d == DriveA || d == DriveB
}

// ParseDrive parses a drive name ("a", "b:", "acsi0") or slot number.
func ParseDrive(s string) (Drive, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ":")
	switch name {
	case "a":
		return DriveA, nil
	case "b":
		return DriveB, nil
	case "acsi0", "hd0":
		return DriveACSI0, nil
	case "acsi1", "hd1":
		return DriveACSI1, nil
	}
	if n, err := strconv.Atoi(name); err == nil && Drive(n).Valid() {
		return Drive(n), nil
	}
	return 0, fmt.Errorf("drive %q: %w", s, pkg.ErrInvalidDrive)
}

// driveForRequest maps status request bits to a drive. It reports false
// when no sector request bit is set. If several bits are set the lowest
// drive wins.
func driveForRequest(request uint8) (Drive, bool) {
	request &= link.RequestMask
	if request == 0 {
		return 0, false
	}
	return Drive(bits.TrailingZeros8(request)), true
}
