// Package acsi emulates ACSI hard disks backed by disk images.
//
// The FPGA core forwards ACSI command frames it receives from the
// emulated machine. Each 16-byte frame carries a 6-byte (or 10-byte)
// command descriptor block plus a status byte:
//
//	byte 0       opcode
//	byte 1       bits 7-5 device (LUN), bits 4-0 LBA high bits
//	bytes 2-3    LBA mid/low
//	byte 4       transfer length
//	byte 10      bits 7-5 target, bit 0 busy
//
// Targets 0 and 1 are bound to drive slots 2 and 3. Errors are never
// returned to the caller; they are reported to the emulated machine
// through the sense data picked up by the next REQUEST SENSE, as a real
// ACSI disk would.
//
// # Supported Commands
//
//   - TEST UNIT READY (0x00)
//   - REQUEST SENSE (0x03)
//   - READ (0x08) and READ (10) (0x28)
//   - SEEK (0x0B)
//   - INQUIRY (0x12)
//   - MODE SENSE (0x1A)
//
// Any other opcode is rejected with a negative acknowledge. Writes are
// not supported.
package acsi
