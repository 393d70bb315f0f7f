package sysctrl

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardnew/sdcbridge/fatfs"
	"github.com/ardnew/sdcbridge/link"
	"github.com/ardnew/sdcbridge/link/sim"
	"github.com/ardnew/sdcbridge/pkg"
)

// scriptBus answers every transfer with a fixed byte sequence.
type scriptBus struct {
	replies []byte
	pos     int
}

func (b *scriptBus) Begin() error { return nil }
func (b *scriptBus) End() error   { return nil }
func (b *scriptBus) Transfer(byte) (byte, error) {
	if b.pos >= len(b.replies) {
		return 0, nil
	}
	r := b.replies[b.pos]
	b.pos++
	return r, nil
}

func TestStatus(t *testing.T) {
	core := sim.New(fatfs.NewMemoryDevice(1), sim.Options{CoreID: 2})
	id, err := New(core).Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if id != 2 {
		t.Errorf("Status() = %d, want 2", id)
	}
}

func TestStatusBadMagic(t *testing.T) {
	bus := &scriptBus{replies: []byte{0, 0, 0, 0x12, 0x34, 1}}
	if _, err := New(bus).Status(); !errors.Is(err, pkg.ErrProtocol) {
		t.Errorf("Status() error = %v, want %v", err, pkg.ErrProtocol)
	}
}

func TestCoreName(t *testing.T) {
	tests := []struct {
		id   uint8
		want string
	}{
		{0, "<unset>"},
		{1, "Atari ST"},
		{2, "C64"},
		{9, "core 9"},
	}
	for _, tt := range tests {
		if got := CoreName(tt.id); got != tt.want {
			t.Errorf("CoreName(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestClientCommands(t *testing.T) {
	core := sim.New(fatfs.NewMemoryDevice(1), sim.Options{})
	core.SetButtons(0x02)
	c := New(core)

	if err := c.SetRGB(RGBReady); err != nil {
		t.Fatal(err)
	}
	if core.RGB() != RGBReady {
		t.Errorf("RGB = %#06x, want %#06x", core.RGB(), RGBReady)
	}
	if err := c.SetLEDs(0x01); err != nil {
		t.Fatal(err)
	}
	if core.LEDs() != 0x01 {
		t.Errorf("LEDs = %#02x, want 0x01", core.LEDs())
	}
	if err := c.SetValue('S', 1); err != nil {
		t.Fatal(err)
	}
	if v, ok := core.Value('S'); !ok || v != 1 {
		t.Errorf("Value('S') = %d, %v", v, ok)
	}
	btns, err := c.Buttons()
	if err != nil || btns != 0x02 {
		t.Errorf("Buttons() = %#02x, %v", btns, err)
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name        string
		pending     uint8
		wantStorage int32
		wantHID     int32
	}{
		{"none", 0, 0, 0},
		{"storage", link.IRQStorage, 1, 0},
		{"hid", link.IRQHID, 0, 1},
		{"both", link.IRQStorage | link.IRQHID, 1, 1},
		{"unrelated bit", 0x01, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var storage, hid atomic.Int32
			d := NewDispatcher(nil,
				HandlerFunc(func() { storage.Add(1) }),
				HandlerFunc(func() { hid.Add(1) }))
			d.Dispatch(tt.pending)
			if storage.Load() != tt.wantStorage || hid.Load() != tt.wantHID {
				t.Errorf("storage = %d, hid = %d, want %d, %d",
					storage.Load(), hid.Load(), tt.wantStorage, tt.wantHID)
			}
		})
	}
}

func TestDispatchNilHandlers(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	d.Dispatch(0xFF)
}

func TestRun(t *testing.T) {
	core := sim.New(fatfs.NewMemoryDevice(1), sim.Options{})
	got := make(chan struct{}, 4)
	d := NewDispatcher(New(core), HandlerFunc(func() { got <- struct{}{} }), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, core.IRQ()) }()

	core.RequestSector(0, 1)
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("storage handler not called")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
