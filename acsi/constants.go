package acsi

// Command opcodes.
const (
	OpTestUnitReady = 0x00 // Test if unit is ready
	OpRequestSense  = 0x03 // Request sense data
	OpRead6         = 0x08 // Read sectors (6-byte)
	OpSeek          = 0x0B // Seek (no-op)
	OpInquiry       = 0x12 // Get device information
	OpModeSense     = 0x1A // Get mode parameters
	OpRead10        = 0x28 // Read sectors (10-byte)
)

// Sense keys.
const (
	SenseNoSense        = 0x00 // No error
	SenseNotReady       = 0x02 // Device not ready
	SenseMediumError    = 0x03 // Medium error
	SenseIllegalRequest = 0x05 // Illegal request
)

// Additional sense codes.
const (
	ASCNone             = 0x00 // No additional sense information
	ASCUnrecoveredRead  = 0x11 // Unrecovered read error
	ASCLUNNotSupported  = 0x25 // Logical unit not supported
	ASCMediumNotPresent = 0x3A // Medium not present
)

// Frame layout.
const (
	FrameSize    = 16
	frameStatus  = 10
	frameBusy    = 0x01
	SectorSize   = 512
	senseSize    = 18
	senseAddLen  = 0x0B
	inquirySize  = 64
	notPresent   = 0x7F // Peripheral qualifier: no device
	deviceTypeHD = 0x02
)

// Targets bound to drive slots.
const (
	MaxTargets = 2
	FirstSlot  = 2 // Slot bound to target 0
)

// Inquiry strings.
const (
	InquiryVendor   = "MiSTery "
	InquiryProduct  = "Harddisk Image  "
	InquiryRevision = "ATH "
	InquirySerial   = "12345678"
)
