package fifo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ardnew/sdcbridge/link"
	"github.com/ardnew/sdcbridge/pkg"
)

// Message types.
const (
	msgBegin = 0x01
	msgXfer  = 0x02
	msgEnd   = 0x03
	msgReply = 0x04
)

// Header size for messages.
const headerSize = 3 // type (1) + length (2)

// maxPayload bounds a single message payload.
const maxPayload = 16

// FIFO file names.
const (
	fifoMCUToCore  = "mcu_to_core"
	fifoCoreToMCU  = "core_to_mcu"
	fifoInterrupts = "interrupts"
)

// pollInterval is the read deadline used while waiting for pipe data.
const pollInterval = 100 * time.Millisecond

// DefaultTimeout bounds the wait for a reply byte.
const DefaultTimeout = 2 * time.Second

// Options configures the bridge side of the pipe transport.
type Options struct {
	Timeout time.Duration // Reply timeout per transfer; DefaultTimeout if zero
}

// Bus implements [link.Bus] and [link.Interrupter] over named pipes.
type Bus struct {
	dir  string
	opts Options

	toCore   *os.File
	fromCore *os.File
	irqRead  *os.File

	frameMutex sync.Mutex // Held from Begin to End
	mutex      sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	opened     bool
	irq        chan struct{}
	done       chan struct{}

	readBuf  [headerSize + maxPayload]byte
	writeBuf [headerSize + maxPayload]byte
}

// New creates a pipe transport rooted at dir.
func New(dir string, opts Options) *Bus {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Bus{
		dir:  dir,
		opts: opts,
		irq:  make(chan struct{}, 1),
	}
}

// Dir returns the pipe directory.
func (b *Bus) Dir() string { return b.dir }

// Open creates the pipes if needed and opens them. The context bounds
// the lifetime of the transport.
func (b *Bus) Open(ctx context.Context) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.opened {
		return pkg.ErrAlreadyRunning
	}
	if err := createFIFOs(b.dir); err != nil {
		return err
	}

	var err error
	if b.toCore, err = openFIFO(b.dir, fifoMCUToCore); err != nil {
		b.cleanup()
		return err
	}
	if b.fromCore, err = openFIFO(b.dir, fifoCoreToMCU); err != nil {
		b.cleanup()
		return err
	}
	if b.irqRead, err = openFIFO(b.dir, fifoInterrupts); err != nil {
		b.cleanup()
		return err
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	b.opened = true
	go b.watchInterrupts(b.ctx, b.irqRead, b.done)

	pkg.LogInfo(pkg.ComponentLink, "fifo link opened", "dir", b.dir)
	return nil
}

// Close stops the interrupt watcher and closes the pipes.
func (b *Bus) Close() error {
	b.mutex.Lock()
	if !b.opened {
		b.mutex.Unlock()
		return pkg.ErrNotRunning
	}
	b.opened = false
	b.cancel()
	done := b.done
	b.mutex.Unlock()

	<-done

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.cleanup()
	pkg.LogInfo(pkg.ComponentLink, "fifo link closed", "dir", b.dir)
	return nil
}

func (b *Bus) cleanup() {
	for _, f := range []**os.File{&b.toCore, &b.fromCore, &b.irqRead} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
}

// IRQ returns the interrupt signal channel.
func (b *Bus) IRQ() <-chan struct{} {
	return b.irq
}

func (b *Bus) watchInterrupts(ctx context.Context, f *os.File, done chan struct{}) {
	defer close(done)
	var sig [1]byte
	for {
		if _, err := readWithContext(ctx, f, sig[:]); err != nil {
			if !errors.Is(err, context.Canceled) {
				pkg.LogWarn(pkg.ComponentLink, "interrupt pipe read failed", "error", err)
			}
			return
		}
		select {
		case b.irq <- struct{}{}:
		default:
		}
	}
}

// Begin opens a frame.
func (b *Bus) Begin() error {
	b.frameMutex.Lock()
	if err := b.send(msgBegin, nil); err != nil {
		b.frameMutex.Unlock()
		return err
	}
	return nil
}

// Transfer sends one byte and waits for the core's reply byte.
func (b *Bus) Transfer(out byte) (byte, error) {
	if err := b.send(msgXfer, []byte{out}); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(b.context(), b.opts.Timeout)
	defer cancel()

	typ, payload, err := readMessage(ctx, b.fromCore, b.readBuf[:])
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("fifo reply: %w", pkg.ErrTimeout)
		}
		return 0, err
	}
	if typ != msgReply || len(payload) != 1 {
		return 0, fmt.Errorf("fifo reply type %#02x len %d: %w", typ, len(payload), pkg.ErrProtocol)
	}
	return payload[0], nil
}

// End closes the frame.
func (b *Bus) End() error {
	defer b.frameMutex.Unlock()
	return b.send(msgEnd, nil)
}

func (b *Bus) context() context.Context {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

func (b *Bus) send(typ byte, payload []byte) error {
	b.mutex.Lock()
	f := b.toCore
	b.mutex.Unlock()
	if f == nil {
		return pkg.ErrNotConfigured
	}
	return writeMessage(f, b.writeBuf[:], typ, payload)
}

// Serve answers frames arriving in dir with core until ctx is cancelled.
// When core also implements [link.Interrupter], its interrupt signals are
// forwarded to the bridge.
func Serve(ctx context.Context, dir string, core link.Bus) error {
	if err := createFIFOs(dir); err != nil {
		return err
	}
	fromMCU, err := openFIFO(dir, fifoMCUToCore)
	if err != nil {
		return err
	}
	defer fromMCU.Close()
	toMCU, err := openFIFO(dir, fifoCoreToMCU)
	if err != nil {
		return err
	}
	defer toMCU.Close()
	irqWrite, err := openFIFO(dir, fifoInterrupts)
	if err != nil {
		return err
	}
	defer irqWrite.Close()

	if intr, ok := core.(link.Interrupter); ok {
		go forwardInterrupts(ctx, intr.IRQ(), irqWrite)
	}

	pkg.LogInfo(pkg.ComponentLink, "fifo core serving", "dir", dir)

	var readBuf, writeBuf [headerSize + maxPayload]byte
	inFrame := false
	for {
		typ, payload, err := readMessage(ctx, fromMCU, readBuf[:])
		if err != nil {
			if inFrame {
				core.End()
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		switch typ {
		case msgBegin:
			if inFrame {
				core.End()
			}
			if err := core.Begin(); err != nil {
				return fmt.Errorf("core begin: %w", err)
			}
			inFrame = true
		case msgXfer:
			if len(payload) != 1 {
				return fmt.Errorf("xfer len %d: %w", len(payload), pkg.ErrProtocol)
			}
			in, err := core.Transfer(payload[0])
			if err != nil {
				pkg.LogWarn(pkg.ComponentLink, "core transfer failed", "error", err)
			}
			if err := writeMessage(toMCU, writeBuf[:], msgReply, []byte{in}); err != nil {
				return err
			}
		case msgEnd:
			if inFrame {
				if err := core.End(); err != nil {
					pkg.LogWarn(pkg.ComponentLink, "core end failed", "error", err)
				}
				inFrame = false
			}
		default:
			pkg.LogWarn(pkg.ComponentLink, "unknown fifo message", "type", typ)
		}
	}
}

func forwardInterrupts(ctx context.Context, irq <-chan struct{}, f *os.File) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-irq:
			if _, err := f.Write([]byte{1}); err != nil {
				pkg.LogWarn(pkg.ComponentLink, "interrupt forward failed", "error", err)
				return
			}
		}
	}
}

// createFIFOs creates dir and any missing pipes in it.
func createFIFOs(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create fifo dir: %w", err)
	}
	for _, name := range []string{fifoMCUToCore, fifoCoreToMCU, fifoInterrupts} {
		path := filepath.Join(dir, name)
		if st, err := os.Stat(path); err == nil && st.Mode()&os.ModeNamedPipe != 0 {
			continue
		}
		os.Remove(path)
		if err := unix.Mkfifo(path, 0o666); err != nil && !errors.Is(err, unix.EEXIST) {
			return fmt.Errorf("mkfifo %s: %w", name, err)
		}
	}
	return nil
}

// openFIFO opens a pipe read-write and non-blocking so neither side
// waits for its peer to appear.
func openFIFO(dir, name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// readWithContext reads exactly len(buf) bytes, polling with short read
// deadlines so ctx is honored.
func readWithContext(ctx context.Context, f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		f.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := f.Read(buf[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			if os.IsTimeout(err) || errors.Is(err, io.EOF) {
				continue
			}
			return total, err
		}
	}
	return total, nil
}

// readMessage reads one [type, len_lo, len_hi, payload] message.
func readMessage(ctx context.Context, f *os.File, buf []byte) (byte, []byte, error) {
	if f == nil {
		return 0, nil, pkg.ErrNotConfigured
	}
	if _, err := readWithContext(ctx, f, buf[:headerSize]); err != nil {
		return 0, nil, err
	}
	typ := buf[0]
	length := int(binary.LittleEndian.Uint16(buf[1:3]))
	if length > len(buf)-headerSize {
		return 0, nil, pkg.ErrBufferTooSmall
	}
	payload := buf[headerSize : headerSize+length]
	if _, err := readWithContext(ctx, f, payload); err != nil {
		return 0, nil, err
	}
	return typ, payload, nil
}

// writeMessage sends one message in a single write.
func writeMessage(f *os.File, buf []byte, typ byte, payload []byte) error {
	if len(payload) > len(buf)-headerSize {
		return pkg.ErrBufferTooSmall
	}
	buf[0] = typ
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[headerSize:], payload)

	total := headerSize + len(payload)
	written := 0
	for written < total {
		n, err := f.Write(buf[written:total])
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

var (
	_ link.Bus         = (*Bus)(nil)
	_ link.Interrupter = (*Bus)(nil)
)
