package pkg

import "errors"

// Bridge errors.
var (
	// ErrTimeout indicates the medium or core never reported ready.
	ErrTimeout = errors.New("medium timeout")

	// ErrCancelled indicates a cancelled operation.
	ErrCancelled = errors.New("operation cancelled")

	// ErrProtocol indicates a malformed or unexpected link frame.
	ErrProtocol = errors.New("protocol error")

	// ErrNoCard indicates no SD card (or no matching core) answered the status poll.
	ErrNoCard = errors.New("sd card not ready")

	// ErrNotMounted indicates the volume has not been mounted.
	ErrNotMounted = errors.New("volume not mounted")

	// ErrNoImage indicates a sector request for a drive without an image.
	ErrNoImage = errors.New("no image associated with drive")

	// ErrInvalidDrive indicates a drive index outside the registry.
	ErrInvalidDrive = errors.New("invalid drive")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrAlreadyRunning indicates the service is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the service is not running.
	ErrNotRunning = errors.New("not running")

	// ErrNotConfigured indicates a component was used before initialization.
	ErrNotConfigured = errors.New("not configured")
)

// AckStatus represents the DMA status byte returned with an ACSI acknowledge.
type AckStatus uint8

// ACSI acknowledge status values.
const (
	AckStatusGood           AckStatus = 0x00 // Command completed
	AckStatusCheckCondition AckStatus = 0x02 // Sense data pending
)

// String returns a string representation of the acknowledge status.
func (s AckStatus) String() string {
	switch s {
	case AckStatusGood:
		return "good"
	case AckStatusCheckCondition:
		return "check condition"
	default:
		return "unknown"
	}
}
