package link

import "encoding/binary"

// Frame is a single framed exchange on a Bus.
//
// Errors are sticky: after the first failed transfer all further
// transfers are skipped and return zero. Close always ends the frame
// and reports the first error.
type Frame struct {
	bus  Bus
	err  error
	open bool
}

// Open begins a frame addressed to target and sends the command byte.
func Open(bus Bus, target Target, cmd byte) *Frame {
	f := &Frame{bus: bus}
	if err := bus.Begin(); err != nil {
		f.err = err
		return f
	}
	f.open = true
	f.Tx(byte(target))
	f.Tx(cmd)
	return f
}

// Tx exchanges a single byte.
func (f *Frame) Tx(out byte) byte {
	if f.err != nil {
		return 0
	}
	in, err := f.bus.Transfer(out)
	if err != nil {
		f.err = err
		return 0
	}
	return in
}

// Write sends every byte of p, discarding the returned bytes.
func (f *Frame) Write(p []byte) {
	for _, b := range p {
		f.Tx(b)
	}
}

// Read fills p with bytes clocked in by sending zeros.
func (f *Frame) Read(p []byte) {
	for i := range p {
		p[i] = f.Tx(0)
	}
}

// WriteU32 sends v most-significant byte first.
func (f *Frame) WriteU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	f.Write(b[:])
}

// ReadU32 reads a big-endian 32-bit value.
func (f *Frame) ReadU32() uint32 {
	var b [4]byte
	f.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Err returns the first error encountered, if any.
func (f *Frame) Err() error {
	return f.err
}

// Close ends the frame and returns the first error encountered.
func (f *Frame) Close() error {
	if f.open {
		f.open = false
		if err := f.bus.End(); err != nil && f.err == nil {
			f.err = err
		}
	}
	return f.err
}
