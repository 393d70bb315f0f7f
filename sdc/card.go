package sdc

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/sdcbridge/fatfs"
	"github.com/ardnew/sdcbridge/link"
	"github.com/ardnew/sdcbridge/pkg"
)

// Card timing defaults.
const (
	DefaultReadyTimeout = 2 * time.Second
	DefaultBusyTimeout  = time.Second

	readyPollInterval = time.Millisecond
)

// Card is the SD card seen through the core's storage target. It
// implements [fatfs.BlockDevice].
type Card struct {
	bus         link.Bus
	busyTimeout time.Duration
}

var _ fatfs.BlockDevice = (*Card)(nil)

// NewCard creates a card on bus. Waits for an idle card give up after
// busyTimeout.
func NewCard(bus link.Bus, busyTimeout time.Duration) *Card {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	return &Card{bus: bus, busyTimeout: busyTimeout}
}

// Status returns the card status byte.
func (c *Card) Status() (uint8, error) {
	f := link.Open(c.bus, link.TargetSDC, link.SDCStatus)
	status := f.Tx(0)
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("card status: %w", err)
	}
	return status, nil
}

// WaitReady polls the card status until the card reports initialized or
// timeout elapses. The last status byte is returned in both cases.
func (c *Card) WaitReady(ctx context.Context, timeout time.Duration) (uint8, error) {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		status, err := c.Status()
		if err != nil {
			return 0, err
		}
		if status&link.CardStatusMask == link.CardStatusReady {
			return status, nil
		}
		if time.Now().After(deadline) {
			return status, fmt.Errorf("card status %#02x: %w", status, pkg.ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return status, fmt.Errorf("card ready: %w", pkg.ErrCancelled)
		case <-ticker.C:
		}
	}
}

// waitIdle busy-waits until the card finishes its current transfer.
func (c *Card) waitIdle() error {
	deadline := time.Now().Add(c.busyTimeout)
	for {
		status, err := c.Status()
		if err != nil {
			return err
		}
		if status&link.CardStatusBusy == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("card busy: %w", pkg.ErrTimeout)
		}
	}
}

// pollDone clocks zeros within an open frame until the core answers zero.
func (c *Card) pollDone(f *link.Frame) error {
	deadline := time.Now().Add(c.busyTimeout)
	for f.Tx(0) != 0 {
		if f.Err() != nil {
			return f.Err()
		}
		if time.Now().After(deadline) {
			return pkg.ErrTimeout
		}
	}
	return f.Err()
}

// ReadSector reads one physical card sector into buf.
func (c *Card) ReadSector(sector uint32, buf []byte) error {
	if len(buf) < link.SectorSize {
		return fmt.Errorf("read sector %d: %w", sector, pkg.ErrBufferTooSmall)
	}
	if err := c.waitIdle(); err != nil {
		return fmt.Errorf("read sector %d: %w", sector, err)
	}

	f := link.Open(c.bus, link.TargetSDC, link.SDCMCURead)
	f.WriteU32(sector)
	if err := c.pollDone(f); err != nil {
		f.Close()
		return fmt.Errorf("read sector %d: %w", sector, err)
	}
	f.Read(buf[:link.SectorSize])
	if err := f.Close(); err != nil {
		return fmt.Errorf("read sector %d: %w", sector, err)
	}
	return nil
}

// WriteSector writes one physical card sector from buf.
func (c *Card) WriteSector(sector uint32, buf []byte) error {
	if len(buf) < link.SectorSize {
		return fmt.Errorf("write sector %d: %w", sector, pkg.ErrBufferTooSmall)
	}
	if err := c.waitIdle(); err != nil {
		return fmt.Errorf("write sector %d: %w", sector, err)
	}

	f := link.Open(c.bus, link.TargetSDC, link.SDCMCUWrite)
	f.WriteU32(sector)
	f.Write(buf[:link.SectorSize])
	if err := c.pollDone(f); err != nil {
		f.Close()
		return fmt.Errorf("write sector %d: %w", sector, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write sector %d: %w", sector, err)
	}
	return nil
}
