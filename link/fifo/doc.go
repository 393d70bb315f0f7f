// Package fifo carries link frames over named pipes (FIFOs).
//
// It lets the bridge run against a core living in another process, such
// as the simulated core started by "sdcbridge core". Both sides share a
// directory holding three pipes:
//
//	/tmp/sdcbridge/
//	├── mcu_to_core    # frame messages from the bridge
//	├── core_to_mcu    # one reply per transferred byte
//	└── interrupts     # one byte per interrupt raised by the core
//
// # Message Format
//
// Every message on the data pipes starts with a three byte header
// [type, len_lo, len_hi] followed by len payload bytes:
//
//	0x01 begin   (no payload)
//	0x02 xfer    (one byte shifted out)
//	0x03 end     (no payload)
//	0x04 reply   (one byte shifted in)
//
// # Usage
//
// Bridge side:
//
//	bus := fifo.New("/tmp/sdcbridge", fifo.Options{})
//	if err := bus.Open(ctx); err != nil {
//	    return err
//	}
//	defer bus.Close()
//
// Core side, answering frames with any [link.Bus]:
//
//	err := fifo.Serve(ctx, "/tmp/sdcbridge", core)
package fifo
