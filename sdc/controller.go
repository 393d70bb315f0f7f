package sdc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/sdcbridge/acsi"
	"github.com/ardnew/sdcbridge/fatfs"
	"github.com/ardnew/sdcbridge/link"
	"github.com/ardnew/sdcbridge/pkg"
	"github.com/ardnew/sdcbridge/sysctrl"
)

// Options configures a Controller.
type Options struct {
	Mountpoint    string         // Display prefix of the volume
	Extension     string         // Image extension shown by Browse
	LinkTableSize int            // Initial link table size in items
	ReadyTimeout  time.Duration  // Card initialization wait
	BusyTimeout   time.Duration  // Per-transfer busy wait
	Allocator     TableAllocator // Link table storage

	// Defaults are opened by Init, relative to the volume root. Empty
	// names are skipped.
	Defaults [NumDrives]string

	// OnImageChange, if set, is called after an image is opened or
	// ejected. path is empty after an eject.
	OnImageChange func(drive Drive, path string)

	// OnChdir, if set, is called after Browse or Chdir changes the
	// working directory, with the new display path.
	OnChdir func(dir string)
}

// DefaultOptions returns the standard controller configuration.
func DefaultOptions() Options {
	return Options{
		Mountpoint:    DefaultMountpoint,
		Extension:     DefaultExtension,
		LinkTableSize: DefaultLinkTableSize,
		ReadyTimeout:  DefaultReadyTimeout,
		BusyTimeout:   DefaultBusyTimeout,
		Allocator:     HeapAllocator{},
		Defaults:      [NumDrives]string{"disk_a.st", "disk_b.st", "harddisk.hd"},
	}
}

func (o *Options) setDefaults() {
	if o.Mountpoint == "" {
		o.Mountpoint = DefaultMountpoint
	}
	if o.LinkTableSize < 1 {
		o.LinkTableSize = DefaultLinkTableSize
	}
	if o.Allocator == nil {
		o.Allocator = HeapAllocator{}
	}
}

// Controller owns the mounted card volume and the drive registry and
// answers the core's storage requests.
type Controller struct {
	bus  link.Bus
	card *Card
	sys  *sysctrl.Client
	acsi *acsi.Emulator
	opts Options

	// Access serializer: guards every field below.
	mutex   sync.Mutex
	fs      *fatfs.FS
	slots   [NumDrives]slot
	cwd     Path
	listing []Entry

	irq     chan struct{}
	ready   atomic.Bool
	running atomic.Bool
}

// New creates a controller exchanging frames on bus.
func New(bus link.Bus, opts Options) *Controller {
	opts.setDefaults()
	c := &Controller{
		bus:  bus,
		card: NewCard(bus, opts.BusyTimeout),
		sys:  sysctrl.New(bus),
		opts: opts,
		cwd:  NewPath(opts.Mountpoint),
		irq:  make(chan struct{}, 1),
	}
	c.acsi = acsi.New(bus, c)
	return c
}

// Card returns the card the volume is mounted from.
func (c *Controller) Card() *Card {
	return c.card
}

// ACSI returns the hard disk emulator.
func (c *Controller) ACSI() *acsi.Emulator {
	return c.acsi
}

// Ready reports whether Init has completed.
func (c *Controller) Ready() bool {
	return c.ready.Load()
}

// Mount waits for the card and mounts its volume. The RGB indicator
// shows the outcome. Any open images are closed first.
func (c *Controller) Mount(ctx context.Context) error {
	c.mutex.Lock()
	c.unmount()
	c.mutex.Unlock()

	status, err := c.card.WaitReady(ctx, c.opts.ReadyTimeout)
	if err != nil {
		c.indicate(sysctrl.RGBFailed)
		return fmt.Errorf("%w: %w", pkg.ErrNoCard, err)
	}
	pkg.LogInfo(pkg.ComponentSDC, "card ready", "status", status, "type", link.CardType(status))

	c.mutex.Lock()
	defer c.mutex.Unlock()

	fsys, err := fatfs.Mount(c.card)
	if err != nil {
		c.indicate(sysctrl.RGBFailed)
		return fmt.Errorf("%w: %w", pkg.ErrNotMounted, err)
	}
	c.fs = fsys
	c.cwd = NewPath(c.opts.Mountpoint)
	c.listing = nil

	geo := fsys.Geometry()
	pkg.LogInfo(pkg.ComponentSDC, "volume mounted",
		"type", fsys.Type(),
		"cluster_sectors", geo.ClusterSize,
		"data_start", geo.DataStart)
	c.indicate(sysctrl.RGBReady)
	return nil
}

// unmount releases every slot and forgets the volume. Caller holds mutex.
func (c *Controller) unmount() {
	for d := range c.slots {
		c.slots[d].release(c.opts.Allocator)
	}
	c.fs = nil
	c.listing = nil
}

// Volume returns the mounted volume type and geometry.
func (c *Controller) Volume() (fatfs.Type, fatfs.Geometry, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.fs == nil {
		return 0, fatfs.Geometry{}, pkg.ErrNotMounted
	}
	return c.fs.Type(), c.fs.Geometry(), nil
}

func (c *Controller) indicate(rgb uint32) {
	if err := c.sys.SetRGB(rgb); err != nil {
		pkg.LogWarn(pkg.ComponentSDC, "set indicator", "rgb", rgb, "error", err)
	}
}

// Init mounts the card, opens the default images, services a request
// that may already be pending and marks the controller ready.
func (c *Controller) Init(ctx context.Context) error {
	if err := c.Mount(ctx); err != nil {
		return err
	}
	for d, name := range c.opts.Defaults {
		if name == "" {
			continue
		}
		if err := c.OpenImage(Drive(d), name); err != nil {
			pkg.LogInfo(pkg.ComponentSDC, "default image not opened",
				"drive", Drive(d), "name", name, "error", err)
		}
	}
	if err := c.HandleEvent(); err != nil {
		pkg.LogWarn(pkg.ComponentSDC, "initial request", "error", err)
	}
	c.ready.Store(true)
	return nil
}

// OpenImage binds the image name in the working directory to drive.
func (c *Controller) OpenImage(drive Drive, name string) error {
	return c.open(drive, func(cwd Path) Path { return cwd.Enter(name) })
}

// OpenImagePath binds the image at a display path, such as
// "/sd/games/demo.st", to drive.
func (c *Controller) OpenImagePath(drive Drive, path string) error {
	p, err := ParsePath(c.opts.Mountpoint, path)
	if err != nil {
		return err
	}
	if p.IsRoot() {
		return fmt.Errorf("open %q: %w", path, pkg.ErrInvalidParameter)
	}
	return c.open(drive, func(Path) Path { return p })
}

// open replaces the slot contents with the file resolve returns for the
// working directory. The last path element names the image. Resolution
// and open happen under one hold of the mutex.
func (c *Controller) open(drive Drive, resolve func(cwd Path) Path) error {
	if !drive.Valid() {
		return fmt.Errorf("open %s: %w", drive, pkg.ErrInvalidDrive)
	}

	c.mutex.Lock()
	info, err := c.openLocked(drive, resolve(c.cwd))
	c.mutex.Unlock()

	if err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentSDC, "image opened",
		"drive", drive,
		"path", info.Path,
		"size", info.Size,
		"linked", info.Linked)
	if c.opts.OnImageChange != nil {
		c.opts.OnImageChange(drive, info.Path)
	}
	return nil
}

func (c *Controller) openLocked(drive Drive, p Path) (SlotInfo, error) {
	if c.fs == nil {
		return SlotInfo{}, pkg.ErrNotMounted
	}
	if drive.IsFloppy() {
		if err := c.notifyInserted(drive, 0); err != nil {
			return SlotInfo{}, err
		}
	}

	s := &c.slots[drive]
	s.release(c.opts.Allocator)

	dir, name := p.Up(), p.elems[len(p.elems)-1]
	file, err := c.fs.Open(dir.Join(name))
	if err != nil {
		return SlotInfo{}, fmt.Errorf("open %s: %w", p, err)
	}
	s.file = file
	s.path = p.String()
	s.table = buildLinkTable(file, c.opts.Allocator, c.opts.LinkTableSize)

	if drive.IsFloppy() {
		if err := c.notifyInserted(drive, uint32(file.Size())); err != nil {
			s.release(c.opts.Allocator)
			return SlotInfo{}, err
		}
	}
	return s.info(drive), nil
}

// Eject unbinds the image from drive. Floppy ejects are reported to the
// core with size zero.
func (c *Controller) Eject(drive Drive) error {
	if !drive.Valid() {
		return fmt.Errorf("eject %s: %w", drive, pkg.ErrInvalidDrive)
	}
	c.mutex.Lock()
	c.slots[drive].release(c.opts.Allocator)
	var err error
	if drive.IsFloppy() && c.fs != nil {
		err = c.notifyInserted(drive, 0)
	}
	c.mutex.Unlock()

	if err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentSDC, "image ejected", "drive", drive)
	if c.opts.OnImageChange != nil {
		c.opts.OnImageChange(drive, "")
	}
	return nil
}

// Slot describes the image bound to drive.
func (c *Controller) Slot(drive Drive) (SlotInfo, error) {
	if !drive.Valid() {
		return SlotInfo{}, pkg.ErrInvalidDrive
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.slots[drive].info(drive), nil
}

// notifyInserted tells the core the size of the image in a floppy
// drive. Caller holds mutex.
func (c *Controller) notifyInserted(drive Drive, size uint32) error {
	f := link.Open(c.bus, link.TargetSDC, link.SDCInserted)
	f.Tx(byte(drive))
	f.WriteU32(size)
	if err := f.Close(); err != nil {
		return fmt.Errorf("inserted %s: %w", drive, err)
	}
	return nil
}

// Translate returns the physical card sector holding logical sector of
// the image in drive.
func (c *Controller) Translate(drive Drive, sector uint32) (uint32, error) {
	if !drive.Valid() {
		return 0, fmt.Errorf("translate %s: %w", drive, pkg.ErrInvalidDrive)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.fs == nil {
		return 0, pkg.ErrNotMounted
	}
	s := &c.slots[drive]
	if s.file == nil {
		return 0, fmt.Errorf("translate %s: %w", drive, pkg.ErrNoImage)
	}

	// The file's current cluster is that of the byte before the file
	// pointer, so seek one sector past the one wanted.
	if err := s.file.Seek((int64(sector) + 1) * link.SectorSize); err != nil {
		return 0, fmt.Errorf("translate %s sector %d: %w", drive, sector, err)
	}
	geo := c.fs.Geometry()
	base := geo.ClusterToSector(s.file.Cluster())
	if base == fatfs.InvalidSector {
		return 0, fmt.Errorf("translate %s sector %d: cluster %d: %w",
			drive, sector, s.file.Cluster(), fatfs.ResultIntErr)
	}
	return base + sector%geo.ClusterSize, nil
}

// WithImage implements [acsi.Drives].
func (c *Controller) WithImage(slot int, fn func(img acsi.Image, geo fatfs.Geometry) error) error {
	drive := Drive(slot)
	if !drive.Valid() {
		return fmt.Errorf("slot %d: %w", slot, pkg.ErrInvalidDrive)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.fs == nil {
		return fmt.Errorf("%w: %w", pkg.ErrNoImage, pkg.ErrNotMounted)
	}
	s := &c.slots[drive]
	if s.file == nil {
		return fmt.Errorf("%s: %w", drive, pkg.ErrNoImage)
	}
	return fn(s.file, c.fs.Geometry())
}

var _ acsi.Drives = (*Controller)(nil)

// Poll reads the card status frame and returns the pending request.
func (c *Controller) Poll() (Event, error) {
	f := link.Open(c.bus, link.TargetSDC, link.SDCStatus)
	status := f.Tx(0)
	request := f.Tx(0)
	sector := f.ReadU32()
	if err := f.Close(); err != nil {
		return Event{}, fmt.Errorf("poll: %w", err)
	}

	ev := Event{Kind: EventACSI, Request: request, CardStatus: status}
	if d, ok := driveForRequest(request); ok {
		ev.Kind, ev.Drive, ev.Sector = EventSector, d, sector
	}
	return ev, nil
}

// Handle services one event. A sector request for a drive without an
// image returns an error wrapping pkg.ErrNoImage and nothing is sent.
func (c *Controller) Handle(ev Event) error {
	switch ev.Kind {
	case EventSector:
		physical, err := c.Translate(ev.Drive, ev.Sector)
		if err != nil {
			return err
		}
		pkg.LogDebug(pkg.ComponentSDC, "sector translated",
			"drive", ev.Drive,
			"sector", ev.Sector,
			"physical", physical)

		f := link.Open(c.bus, link.TargetSDC, link.SDCCoreRW)
		f.WriteU32(physical)
		if err := f.Close(); err != nil {
			return fmt.Errorf("core rw: %w", err)
		}
		return nil

	case EventACSI:
		if _, err := c.acsi.Service(); err != nil {
			return fmt.Errorf("acsi: %w", err)
		}
		return nil
	}
	return fmt.Errorf("event %d: %w", ev.Kind, pkg.ErrNotSupported)
}

// HandleEvent polls for one event and handles it.
func (c *Controller) HandleEvent() error {
	ev, err := c.Poll()
	if err != nil {
		return err
	}
	return c.Handle(ev)
}

// Interrupt signals that the core has a storage request pending. It
// never blocks; signals raised before Run consumes them coalesce.
func (c *Controller) Interrupt() {
	select {
	case c.irq <- struct{}{}:
	default:
	}
}

var _ sysctrl.Handler = (*Controller)(nil)

// Run handles one event per interrupt signal until ctx is done. Signals
// arriving before Init completes are dropped.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return pkg.ErrAlreadyRunning
	}
	defer c.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.irq:
			if !c.Ready() {
				pkg.LogDebug(pkg.ComponentSDC, "request before ready ignored")
				continue
			}
			if err := c.HandleEvent(); err != nil {
				pkg.LogWarn(pkg.ComponentSDC, "request failed", "error", err)
			}
		}
	}
}

// Close ejects every image and forgets the volume.
func (c *Controller) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.unmount()
	c.ready.Store(false)
	return nil
}
