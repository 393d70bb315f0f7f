package acsi

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ardnew/sdcbridge/fatfs"
	"github.com/ardnew/sdcbridge/link"
	"github.com/ardnew/sdcbridge/pkg"
)

// Image is an open disk image as seen by the emulator.
type Image interface {
	Seek(ofs int64) error
	Read(p []byte) (int, error)
	Cluster() uint32
}

// Drives gives access to the images bound to drive slots.
type Drives interface {
	// WithImage calls fn with the image in slot while holding the access
	// serializer for the whole call. It returns pkg.ErrNoImage without
	// calling fn when the slot is empty.
	WithImage(slot int, fn func(img Image, geo fatfs.Geometry) error) error
}

// Emulator answers ACSI commands forwarded by the core.
type Emulator struct {
	bus    link.Bus
	drives Drives

	mutex sync.Mutex
	sense [8]sense // Pending sense per target

	sectorBuf [SectorSize]byte
	dataBuf   [inquirySize]byte
}

// New creates an emulator that exchanges frames on bus and reads sectors
// from drives.
func New(bus link.Bus, drives Drives) *Emulator {
	return &Emulator{bus: bus, drives: drives}
}

// Sense returns the pending sense key and additional sense code of target.
func (e *Emulator) Sense(target uint8) (key, asc uint8) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	s := e.sense[target&7]
	return s.key, s.asc
}

// Poll reads the pending command frame from the core.
func (e *Emulator) Poll() (Command, error) {
	var raw [FrameSize]byte
	f := link.Open(e.bus, link.TargetSys, link.SysACSIStatus)
	f.Tx(0)
	f.Read(raw[:])
	if err := f.Close(); err != nil {
		return Command{}, fmt.Errorf("acsi status: %w", err)
	}
	return ParseCommand(raw), nil
}

// Service polls for a command and executes it. It reports whether a
// command was pending.
func (e *Emulator) Service() (bool, error) {
	cmd, err := e.Poll()
	if err != nil {
		return false, err
	}
	if !cmd.Busy {
		return false, nil
	}
	return true, e.Execute(cmd)
}

// Execute runs one command and acknowledges it. Only link failures are
// returned; device errors are left in the target's sense data.
func (e *Emulator) Execute(cmd Command) error {
	if !cmd.Busy {
		return nil
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentACSI, "command",
		"target", cmd.Target,
		"device", cmd.Device,
		"opcode", cmd.Opcode,
		"lba", cmd.LBA,
		"length", cmd.Length)

	switch cmd.Opcode {
	case OpTestUnitReady:
		return e.handleTestUnitReady(cmd)
	case OpRequestSense:
		return e.handleRequestSense(cmd)
	case OpRead6, OpRead10:
		return e.handleRead(cmd)
	case OpSeek:
		e.clearSense(cmd)
		return e.ack(pkg.AckStatusGood)
	case OpInquiry:
		return e.handleInquiry(cmd)
	case OpModeSense:
		e.clearSense(cmd)
		return e.ack(pkg.AckStatusGood)
	default:
		pkg.LogWarn(pkg.ComponentACSI, "unsupported command", "opcode", cmd.Opcode)
		return e.nak()
	}
}

// present reports whether the command addresses an emulated disk.
func present(cmd Command) bool {
	return cmd.Device == 0 && cmd.Target < MaxTargets
}

func (e *Emulator) setSense(cmd Command, key, asc uint8) {
	e.sense[cmd.Target&7] = sense{key: key, asc: asc}
}

func (e *Emulator) clearSense(cmd Command) {
	e.sense[cmd.Target&7] = sense{}
}

// fail records sense data and acknowledges with check condition.
func (e *Emulator) fail(cmd Command, key, asc uint8) error {
	e.setSense(cmd, key, asc)
	return e.ack(pkg.AckStatusCheckCondition)
}

func (e *Emulator) handleTestUnitReady(cmd Command) error {
	if !present(cmd) {
		return e.fail(cmd, SenseIllegalRequest, ASCLUNNotSupported)
	}
	e.clearSense(cmd)
	return e.ack(pkg.AckStatusGood)
}

func (e *Emulator) handleRequestSense(cmd Command) error {
	n := marshalSense(e.dataBuf[:], e.sense[cmd.Target&7])
	if err := e.send(e.dataBuf[:n]); err != nil {
		return err
	}
	if err := e.ack(pkg.AckStatusGood); err != nil {
		return err
	}
	e.clearSense(cmd)
	return nil
}

func (e *Emulator) handleInquiry(cmd Command) error {
	n := marshalInquiry(e.dataBuf[:], cmd.Length, present(cmd))
	if err := e.send(e.dataBuf[:n]); err != nil {
		return err
	}
	e.clearSense(cmd)
	return e.ack(pkg.AckStatusGood)
}

// handleRead streams cmd.Length sectors under a single hold of the
// access serializer. A failing sector aborts the transfer.
func (e *Emulator) handleRead(cmd Command) error {
	if !present(cmd) {
		return e.fail(cmd, SenseIllegalRequest, ASCLUNNotSupported)
	}

	var linkErr error
	err := e.drives.WithImage(FirstSlot+int(cmd.Target), func(img Image, geo fatfs.Geometry) error {
		for i := uint32(0); i < uint32(cmd.Length); i++ {
			lba := cmd.LBA + i
			if err := img.Seek(int64(lba) * SectorSize); err != nil {
				return fmt.Errorf("seek sector %d: %w", lba, err)
			}
			n, err := io.ReadFull(img, e.sectorBuf[:])
			if err != nil {
				return fmt.Errorf("read sector %d (%d bytes): %w", lba, n, err)
			}
			// After reading, the current cluster holds this sector.
			physical := geo.ClusterToSector(img.Cluster()) + lba%geo.ClusterSize
			pkg.LogDebug(pkg.ComponentACSI, "sector translated",
				"target", cmd.Target,
				"sector", lba,
				"physical", physical)

			if err := e.send(e.sectorBuf[:]); err != nil {
				linkErr = err
				return err
			}
		}
		return nil
	})

	switch {
	case linkErr != nil:
		return linkErr
	case errors.Is(err, pkg.ErrNoImage):
		pkg.LogWarn(pkg.ComponentACSI, "read without image", "target", cmd.Target)
		return e.fail(cmd, SenseNotReady, ASCMediumNotPresent)
	case err != nil:
		pkg.LogWarn(pkg.ComponentACSI, "read failed", "target", cmd.Target, "error", err)
		return e.fail(cmd, SenseMediumError, ASCUnrecoveredRead)
	}
	e.clearSense(cmd)
	return e.ack(pkg.AckStatusGood)
}

// send streams data to the core.
func (e *Emulator) send(data []byte) error {
	f := link.Open(e.bus, link.TargetSys, link.SysACSIData)
	f.Write(data)
	if err := f.Close(); err != nil {
		return fmt.Errorf("acsi data: %w", err)
	}
	return nil
}

// ack completes the command with a DMA status.
func (e *Emulator) ack(status pkg.AckStatus) error {
	f := link.Open(e.bus, link.TargetSys, link.SysACSIAck)
	f.Tx(1)
	f.Tx(uint8(status))
	if err := f.Close(); err != nil {
		return fmt.Errorf("acsi ack: %w", err)
	}
	return nil
}

// nak rejects the command.
func (e *Emulator) nak() error {
	f := link.Open(e.bus, link.TargetSys, link.SysACSIAck)
	f.Tx(0)
	if err := f.Close(); err != nil {
		return fmt.Errorf("acsi nak: %w", err)
	}
	return nil
}
