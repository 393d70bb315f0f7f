// Package sysctrl talks to the system control target of the FPGA core:
// core identification, LEDs, the RGB status LED, buttons, configuration
// values and the interrupt controller.
//
// The [Dispatcher] turns interrupt line signals into calls on the
// subsystems whose interrupt bits are pending.
package sysctrl

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardnew/sdcbridge/link"
	"github.com/ardnew/sdcbridge/pkg"
)

// RGB indicator colors.
const (
	RGBFailed = 0x400000 // Red: no card or mount failed
	RGBReady  = 0x004000 // Green: card mounted
)

var coreNames = [...]string{"<unset>", "Atari ST", "C64"}

// CoreName returns the name of a core ID.
func CoreName(id uint8) string {
	if int(id) < len(coreNames) {
		return coreNames[id]
	}
	return fmt.Sprintf("core %d", id)
}

// Client issues system control commands.
type Client struct {
	bus link.Bus
}

// New creates a client on bus.
func New(bus link.Bus) *Client {
	return &Client{bus: bus}
}

// Status reads the core status and returns the core ID. It fails with
// pkg.ErrProtocol if the core does not answer with the expected magic.
func (c *Client) Status() (uint8, error) {
	f := link.Open(c.bus, link.TargetSys, link.SysStatus)
	f.Tx(0)
	b0 := f.Tx(0)
	b1 := f.Tx(0)
	id := f.Tx(0)
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("status: %w", err)
	}
	if b0 != link.CoreMagic0 || b1 != link.CoreMagic1 {
		return 0, fmt.Errorf("status magic %02x%02x: %w", b0, b1, pkg.ErrProtocol)
	}
	pkg.LogInfo(pkg.ComponentSys, "core detected", "id", id, "name", CoreName(id))
	return id, nil
}

// SetLEDs sets the board LEDs.
func (c *Client) SetLEDs(leds uint8) error {
	f := link.Open(c.bus, link.TargetSys, link.SysLEDs)
	f.Tx(leds)
	return f.Close()
}

// SetRGB sets the RGB status LED to a 0xRRGGBB color.
func (c *Client) SetRGB(rgb uint32) error {
	f := link.Open(c.bus, link.TargetSys, link.SysRGB)
	f.Tx(byte(rgb >> 16))
	f.Tx(byte(rgb >> 8))
	f.Tx(byte(rgb))
	return f.Close()
}

// Buttons returns the button state.
func (c *Client) Buttons() (uint8, error) {
	f := link.Open(c.bus, link.TargetSys, link.SysButtons)
	f.Tx(0)
	btns := f.Tx(0)
	return btns, f.Close()
}

// SetValue sets core configuration value id.
func (c *Client) SetValue(id, value uint8) error {
	pkg.LogDebug(pkg.ComponentSys, "set value", "id", string(rune(id)), "value", value)
	f := link.Open(c.bus, link.TargetSys, link.SysSetValue)
	f.Tx(id)
	f.Tx(value)
	return f.Close()
}

// IRQControl acknowledges the interrupt bits in ack and returns the
// pending interrupt bits.
func (c *Client) IRQControl(ack uint8) (uint8, error) {
	f := link.Open(c.bus, link.TargetSys, link.SysIRQControl)
	f.Tx(ack)
	pending := f.Tx(0)
	return pending, f.Close()
}

// Handler receives interrupt notifications for one subsystem.
type Handler interface {
	Interrupt()
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func()

// Interrupt calls f.
func (f HandlerFunc) Interrupt() { f() }

// Dispatcher routes pending interrupts to subsystem handlers.
type Dispatcher struct {
	client  *Client
	storage Handler
	hid     Handler

	mutex   sync.Mutex
	running bool
}

// NewDispatcher creates a dispatcher. Either handler may be nil.
func NewDispatcher(client *Client, storage, hid Handler) *Dispatcher {
	return &Dispatcher{client: client, storage: storage, hid: hid}
}

// Dispatch calls the handlers whose bits are set in pending.
func (d *Dispatcher) Dispatch(pending uint8) {
	if pending&link.IRQHID != 0 && d.hid != nil {
		d.hid.Interrupt()
	}
	if pending&link.IRQStorage != 0 && d.storage != nil {
		d.storage.Interrupt()
	}
}

// Service reads and acknowledges all pending interrupts, then dispatches them.
func (d *Dispatcher) Service() error {
	pending, err := d.client.IRQControl(0xFF)
	if err != nil {
		return fmt.Errorf("irq control: %w", err)
	}
	if pending != 0 {
		pkg.LogDebug(pkg.ComponentSys, "interrupts pending", "mask", pending)
	}
	d.Dispatch(pending)
	return nil
}

// Run services interrupts each time irq signals until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, irq <-chan struct{}) error {
	d.mutex.Lock()
	if d.running {
		d.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	d.running = true
	d.mutex.Unlock()

	defer func() {
		d.mutex.Lock()
		d.running = false
		d.mutex.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-irq:
			if err := d.Service(); err != nil {
				pkg.LogWarn(pkg.ComponentSys, "interrupt service failed", "error", err)
			}
		}
	}
}
