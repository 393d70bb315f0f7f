// Package link defines the byte-exchange transport between the
// microcontroller and the FPGA core.
//
// The transport is a framed, full-duplex exchange: a frame begins, the
// first byte selects a target subsystem, the second byte selects a
// command within that target, and every further byte shifted out
// returns one byte shifted in. Multi-byte integers are big-endian.
//
// # Interface Overview
//
// The [Bus] interface is the contract an implementation provides:
//
//   - Begin opens a frame and holds the bus until End
//   - Transfer exchanges a single byte
//   - End closes the frame
//
// [Frame] layers sticky error handling and big-endian helpers on top of
// a Bus so protocol code reads as a straight sequence of transfers:
//
//	f := link.Open(bus, link.TargetSDC, link.SDCStatus)
//	f.Tx(0)
//	request := f.Tx(0)
//	sector := f.ReadU32()
//	if err := f.Close(); err != nil {
//	    return err
//	}
//
// # Implementations
//
//   - [github.com/ardnew/sdcbridge/link/fifo]: named pipes to a core process
//   - [github.com/ardnew/sdcbridge/link/sim]: in-process simulated core
package link
