package sdc

import "fmt"

// EventKind distinguishes the requests the core can raise.
type EventKind int

// Event kinds.
const (
	EventSector EventKind = iota // Sector address request for a drive
	EventACSI                    // ACSI command pending
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventSector:
		return "sector"
	case EventACSI:
		return "acsi"
	}
	return "unknown"
}

// Event is one pending core request read by [Controller.Poll].
type Event struct {
	Kind       EventKind
	Drive      Drive  // Valid for EventSector
	Sector     uint32 // Logical sector for EventSector
	Request    uint8  // Raw request bits
	CardStatus uint8  // Card status byte at poll time
}

// String returns a description for logging.
func (e Event) String() string {
	if e.Kind == EventSector {
		return fmt.Sprintf("%s sector %d", e.Drive, e.Sector)
	}
	return e.Kind.String()
}
