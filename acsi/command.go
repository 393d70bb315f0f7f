package acsi

import (
	"encoding/binary"
	"fmt"
)

// Command is a decoded ACSI command frame.
type Command struct {
	Opcode uint8
	Target uint8  // Byte 10 bits 7-5
	Device uint8  // LUN, byte 1 bits 7-5
	LBA    uint32 // Logical block address
	Length uint16 // Transfer length in sectors (or bytes for INQUIRY)
	Busy   bool   // Command pending
}

// ParseCommand decodes a 16-byte frame. READ (10) frames use the 10-byte
// address and length layout.
func ParseCommand(raw [FrameSize]byte) Command {
	cmd := Command{
		Opcode: raw[0],
		Target: raw[frameStatus] >> 5,
		Device: raw[1] >> 5,
		LBA:    uint32(raw[1]&0x1F)<<16 | uint32(raw[2])<<8 | uint32(raw[3]),
		Length: uint16(raw[4]),
		Busy:   raw[frameStatus]&frameBusy != 0,
	}
	if cmd.Opcode == OpRead10 {
		cmd.LBA = binary.BigEndian.Uint32(raw[2:6])
		cmd.Length = binary.BigEndian.Uint16(raw[7:9])
	}
	return cmd
}

// Frame encodes the command into a 16-byte frame.
func (c Command) Frame() [FrameSize]byte {
	var raw [FrameSize]byte
	raw[0] = c.Opcode
	raw[1] = c.Device << 5
	if c.Opcode == OpRead10 {
		binary.BigEndian.PutUint32(raw[2:6], c.LBA)
		binary.BigEndian.PutUint16(raw[7:9], c.Length)
	} else {
		raw[1] |= uint8(c.LBA>>16) & 0x1F
		raw[2] = uint8(c.LBA >> 8)
		raw[3] = uint8(c.LBA)
		raw[4] = uint8(c.Length)
	}
	raw[frameStatus] = c.Target << 5
	if c.Busy {
		raw[frameStatus] |= frameBusy
	}
	return raw
}

// String returns a short description for logging.
func (c Command) String() string {
	return fmt.Sprintf("ACSI%d.%d cmd %02x lba %d len %d", c.Target, c.Device, c.Opcode, c.LBA, c.Length)
}
