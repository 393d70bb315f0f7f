package link

// Target selects the destination subsystem of a frame.
type Target uint8

// Frame targets.
const (
	TargetSys Target = 0x00 // System control (LEDs, buttons, IRQ, ACSI)
	TargetSDC Target = 0x03 // Storage subsystem
)

// String returns a human-readable target name.
func (t Target) String() string {
	switch t {
	case TargetSys:
		return "sys"
	case TargetSDC:
		return "sdc"
	default:
		return "unknown"
	}
}

// Storage subsystem commands.
const (
	SDCStatus   = 0x01 // Card status and pending core request
	SDCCoreRW   = 0x02 // Deliver physical sector for a core request
	SDCMCURead  = 0x03 // Microcontroller sector read
	SDCInserted = 0x04 // Image inserted/ejected notification
	SDCMCUWrite = 0x05 // Microcontroller sector write
)

// System control commands.
const (
	SysStatus     = 0x00 // Core magic and ID
	SysLEDs       = 0x01 // Board LEDs
	SysRGB        = 0x02 // RGB status LED
	SysButtons    = 0x03 // Button state
	SysSetValue   = 0x04 // Core configuration value
	SysIRQControl = 0x05 // Acknowledge and read pending interrupts
	SysACSIStatus = 0x06 // Read pending ACSI command frame
	SysACSIAck    = 0x07 // Acknowledge ACSI command
	SysACSIData   = 0x08 // ACSI data phase
)

// Card status bits returned by SDCStatus.
const (
	CardStatusReady = 0x80 // High nibble 0x8 means card initialized
	CardStatusMask  = 0xF0
	CardStatusBusy  = 0x02 // Card is transferring a sector
)

// CardType extracts the card type field from a status byte.
func CardType(status uint8) string {
	switch (status >> 2) & 3 {
	case 1:
		return "SDv1"
	case 2:
		return "SDv2"
	case 3:
		return "SDHCv2"
	default:
		return "UNKNOWN"
	}
}

// SectorSize is the fixed medium sector size.
const SectorSize = 512

// Bus is the byte-exchange transport to the FPGA core.
//
// Begin acquires the bus for one frame; implementations must serialize
// frames so that bytes from concurrent callers never interleave. Every
// Begin must be paired with End, even after a Transfer error.
type Bus interface {
	// Begin opens a frame.
	Begin() error

	// Transfer shifts out one byte and returns the byte shifted in.
	Transfer(out byte) (byte, error)

	// End closes the current frame and releases the bus.
	End() error
}

// Interrupter is implemented by transports that can signal pending core
// interrupts. The channel receives a value whenever the core raises its
// interrupt line; signals coalesce.
type Interrupter interface {
	IRQ() <-chan struct{}
}

// Interrupt bits reported by SysIRQControl.
const (
	IRQHID     = 0x02 // irq 1: input devices
	IRQStorage = 0x08 // irq 3: storage requests
)

// Request bits reported by SDCStatus.
const (
	RequestDriveA = 0x01
	RequestDriveB = 0x02
	RequestACSI0  = 0x04
	RequestACSI1  = 0x08
	RequestMask   = 0x0F
)

// ACSI frame layout.
const (
	ACSIFrameSize = 16
	ACSIBusy      = 0x01 // Byte 10 bit 0: command pending
)

// Core status magic returned by SysStatus.
const (
	CoreMagic0 = 0x5C
	CoreMagic1 = 0x42
)
