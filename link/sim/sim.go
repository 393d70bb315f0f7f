// Package sim provides an in-process simulated FPGA core.
//
// The simulated core answers every storage and system control command on
// a [link.Bus], backed by an SD card image. Tests and the demo command
// queue sector requests and ACSI command frames on it, then inspect what
// the bridge delivered back.
package sim

import (
	"io"
	"sync"

	"github.com/ardnew/sdcbridge/link"
	"github.com/ardnew/sdcbridge/pkg"
)

// Card is the SD card image behind the core.
type Card interface {
	io.ReaderAt
	io.WriterAt
}

// Options configures a simulated core.
type Options struct {
	CoreID        uint8 // Reported by the system status command
	CardStatus    uint8 // Status once initialized; defaults to ready SDHC
	NotReadyPolls int   // Status polls answered "not ready" before CardStatus
	BusyCycles    int   // Poll bytes answered busy before each MCU transfer completes
}

// DefaultCardStatus is an initialized SDHC card.
const DefaultCardStatus = link.CardStatusReady | 0x0C

// Delivery records a physical sector delivered for a core request.
type Delivery struct {
	Drive    int    // Requesting drive, -1 if no sector request was pending
	Sector   uint32 // Logical sector requested
	Physical uint32 // Physical sector delivered
}

// Insertion records an image inserted/ejected notification.
type Insertion struct {
	Drive uint8
	Size  uint32
}

// ACSIResult records the outcome of a queued ACSI command.
type ACSIResult struct {
	Command [link.ACSIFrameSize]byte
	Ack     bool
	Status  uint8
	Data    []byte
}

// Frame records one complete frame as seen by the core.
type Frame struct {
	Target link.Target
	Cmd    byte
	Out    []byte // Bytes received after the command byte
}

type request struct {
	acsi   bool
	drive  int
	sector uint32
	cmd    [link.ACSIFrameSize]byte
}

// Core is a simulated FPGA core. It implements [link.Bus] and
// [link.Interrupter].
type Core struct {
	card Card
	opts Options

	frameMutex sync.Mutex // Held from Begin to End
	mutex      sync.Mutex // Guards the state below

	// Current frame
	inFrame bool
	index   int
	target  link.Target
	cmd     byte
	out     []byte
	sector  [link.SectorSize]byte
	busy    int
	ready   bool
	dataPos int
	snap    uint8

	// Core state
	notReady   int
	cardStatus uint8
	queue      []request
	pending    uint8
	irq        chan struct{}
	acsiData   []byte

	leds       uint8
	rgb        uint32
	buttons    uint8
	values     map[byte]byte
	deliveries []Delivery
	insertions []Insertion
	results    []ACSIResult
	frames     []Frame
	reads      int
	writes     int
}

// New creates a simulated core backed by card.
func New(card Card, opts Options) *Core {
	if opts.CardStatus == 0 {
		opts.CardStatus = DefaultCardStatus
	}
	return &Core{
		card:       card,
		opts:       opts,
		notReady:   opts.NotReadyPolls,
		cardStatus: opts.CardStatus,
		irq:        make(chan struct{}, 1),
		values:     make(map[byte]byte),
	}
}

// Begin opens a frame. Frames from concurrent callers are serialized.
func (c *Core) Begin() error {
	c.frameMutex.Lock()
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.inFrame = true
	c.index = 0
	c.out = nil
	c.busy = 0
	c.ready = false
	c.dataPos = 0
	return nil
}

// Transfer exchanges one byte.
func (c *Core) Transfer(out byte) (byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.inFrame {
		return 0, pkg.ErrProtocol
	}
	i := c.index
	c.index++
	switch i {
	case 0:
		c.target = link.Target(out)
		return 0, nil
	case 1:
		c.cmd = out
		return 0, nil
	}
	c.out = append(c.out, out)
	return c.respond(i-2, out), nil
}

// End closes the frame and applies its effects.
func (c *Core) End() error {
	c.mutex.Lock()
	if !c.inFrame {
		c.mutex.Unlock()
		return pkg.ErrProtocol
	}
	c.inFrame = false
	if c.index >= 2 {
		c.frames = append(c.frames, Frame{
			Target: c.target,
			Cmd:    c.cmd,
			Out:    append([]byte(nil), c.out...),
		})
		c.finish()
	}
	c.mutex.Unlock()
	c.frameMutex.Unlock()
	return nil
}

// IRQ returns the interrupt signal channel.
func (c *Core) IRQ() <-chan struct{} {
	return c.irq
}

// raise sets the storage interrupt and signals listeners. Caller holds mutex.
func (c *Core) raise() {
	c.pending |= link.IRQStorage
	select {
	case c.irq <- struct{}{}:
	default:
	}
}

// RequestSector queues a core sector request for drive 0-3.
func (c *Core) RequestSector(drive int, sector uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.queue = append(c.queue, request{drive: drive, sector: sector})
	c.raise()
}

// SubmitACSI queues an ACSI command frame. The busy flag is set.
func (c *Core) SubmitACSI(cmd [link.ACSIFrameSize]byte) {
	cmd[10] |= link.ACSIBusy
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.queue = append(c.queue, request{acsi: true, cmd: cmd})
	c.raise()
}

// RaiseHID sets the input-device interrupt.
func (c *Core) RaiseHID() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.pending |= link.IRQHID
	select {
	case c.irq <- struct{}{}:
	default:
	}
}

// SetCardStatus changes the status byte reported for the card.
func (c *Core) SetCardStatus(status uint8) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cardStatus = status
}

// SetButtons sets the reported button state.
func (c *Core) SetButtons(b uint8) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.buttons = b
}

// Pending reports the number of queued requests.
func (c *Core) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.queue)
}

// Deliveries returns the physical sectors delivered so far.
func (c *Core) Deliveries() []Delivery {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]Delivery(nil), c.deliveries...)
}

// Insertions returns the inserted/ejected notifications so far.
func (c *Core) Insertions() []Insertion {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]Insertion(nil), c.insertions...)
}

// ACSIResults returns the completed ACSI commands.
func (c *Core) ACSIResults() []ACSIResult {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]ACSIResult(nil), c.results...)
}

// Frames returns every frame received.
func (c *Core) Frames() []Frame {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]Frame(nil), c.frames...)
}

// ResetFrames discards the recorded frames.
func (c *Core) ResetFrames() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.frames = nil
}

// RGB returns the last RGB indicator value.
func (c *Core) RGB() uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.rgb
}

// LEDs returns the last LED state.
func (c *Core) LEDs() uint8 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.leds
}

// Value returns a configuration value set by the bridge.
func (c *Core) Value(id byte) (byte, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, ok := c.values[id]
	return v, ok
}

// SectorIO returns the number of MCU sector reads and writes served.
func (c *Core) SectorIO() (reads, writes int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.reads, c.writes
}

// status returns the card status byte for one status poll.
func (c *Core) status() uint8 {
	if c.notReady > 0 {
		c.notReady--
		return 0
	}
	return c.cardStatus
}

func (c *Core) head() (request, bool) {
	if len(c.queue) == 0 {
		return request{}, false
	}
	return c.queue[0], true
}

// dequeue drops the head request and re-raises the interrupt if more
// requests are waiting.
func (c *Core) dequeue() {
	if len(c.queue) == 0 {
		return
	}
	c.queue = c.queue[1:]
	c.acsiData = nil
	if len(c.queue) > 0 {
		c.raise()
	}
}

func (c *Core) outU32(from int) uint32 {
	if len(c.out) < from+4 {
		return 0
	}
	b := c.out[from : from+4]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// respond returns the byte shifted in for argument position p.
func (c *Core) respond(p int, out byte) byte {
	switch c.target {
	case link.TargetSDC:
		return c.respondSDC(p)
	case link.TargetSys:
		return c.respondSys(p, out)
	}
	return 0
}

func (c *Core) respondSDC(p int) byte {
	switch c.cmd {
	case link.SDCStatus:
		switch {
		case p == 0:
			return c.status()
		case p == 1:
			if r, ok := c.head(); ok && !r.acsi {
				return 1 << r.drive
			}
			return 0
		case p <= 5:
			if r, ok := c.head(); ok && !r.acsi {
				return byte(r.sector >> (8 * (5 - p)))
			}
		}
		return 0

	case link.SDCMCURead:
		switch {
		case p < 3:
			return 0
		case p == 3:
			c.loadSector(c.outU32(0))
			c.busy = c.opts.BusyCycles
			return 0
		case c.busy > 0:
			c.busy--
			return 1
		case !c.ready:
			c.ready = true
			return 0
		case c.dataPos < link.SectorSize:
			b := c.sector[c.dataPos]
			c.dataPos++
			return b
		}
		return 0

	case link.SDCMCUWrite:
		switch {
		case p < 4+link.SectorSize-1:
			return 0
		case p == 4+link.SectorSize-1:
			c.storeSector(c.outU32(0), c.out[4:4+link.SectorSize])
			c.busy = c.opts.BusyCycles
			return 0
		case c.busy > 0:
			c.busy--
			return 1
		}
		return 0
	}
	return 0
}

func (c *Core) loadSector(sector uint32) {
	clear(c.sector[:])
	n, err := c.card.ReadAt(c.sector[:], int64(sector)*link.SectorSize)
	if err != nil && err != io.EOF {
		pkg.LogWarn(pkg.ComponentLink, "sim card read failed", "sector", sector, "n", n, "error", err)
	}
	c.reads++
}

func (c *Core) storeSector(sector uint32, data []byte) {
	if _, err := c.card.WriteAt(data, int64(sector)*link.SectorSize); err != nil {
		pkg.LogWarn(pkg.ComponentLink, "sim card write failed", "sector", sector, "error", err)
	}
	c.writes++
}

func (c *Core) respondSys(p int, out byte) byte {
	switch c.cmd {
	case link.SysStatus:
		switch p {
		case 1:
			return link.CoreMagic0
		case 2:
			return link.CoreMagic1
		case 3:
			return c.opts.CoreID
		}
	case link.SysButtons:
		if p == 1 {
			return c.buttons
		}
	case link.SysIRQControl:
		switch p {
		case 0:
			c.snap = c.pending
			c.pending &^= out
		case 1:
			return c.snap
		}
	case link.SysACSIStatus:
		if p >= 1 && p <= link.ACSIFrameSize {
			if r, ok := c.head(); ok && r.acsi {
				return r.cmd[p-1]
			}
		}
	}
	return 0
}

// finish applies the effects of a completed frame. Caller holds mutex.
func (c *Core) finish() {
	switch c.target {
	case link.TargetSDC:
		switch c.cmd {
		case link.SDCCoreRW:
			d := Delivery{Drive: -1, Physical: c.outU32(0)}
			if r, ok := c.head(); ok && !r.acsi {
				d.Drive, d.Sector = r.drive, r.sector
				c.dequeue()
			}
			c.deliveries = append(c.deliveries, d)
		case link.SDCInserted:
			if len(c.out) >= 5 {
				c.insertions = append(c.insertions, Insertion{Drive: c.out[0], Size: c.outU32(1)})
			}
		}

	case link.TargetSys:
		switch c.cmd {
		case link.SysLEDs:
			if len(c.out) >= 1 {
				c.leds = c.out[0]
			}
		case link.SysRGB:
			if len(c.out) >= 3 {
				c.rgb = uint32(c.out[0])<<16 | uint32(c.out[1])<<8 | uint32(c.out[2])
			}
		case link.SysSetValue:
			if len(c.out) >= 2 {
				c.values[c.out[0]] = c.out[1]
			}
		case link.SysACSIData:
			c.acsiData = append(c.acsiData, c.out...)
		case link.SysACSIAck:
			r, ok := c.head()
			if !ok || !r.acsi || len(c.out) == 0 {
				return
			}
			res := ACSIResult{Command: r.cmd, Ack: c.out[0] != 0, Data: c.acsiData}
			if res.Ack && len(c.out) >= 2 {
				res.Status = c.out[1]
			}
			c.results = append(c.results, res)
			c.dequeue()
		}
	}
}
